package staticreview_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/staticreview"
)

func TestCheckerFlagsTODOMarker(t *testing.T) {
	src := []byte(`package foo

// TODO: handle the edge case
func Bar() {}
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo.go", src)
	require.NoError(t, err)
	require.True(t, res.IsBlocking)
	require.Len(t, res.Violations, 1)
	require.Equal(t, "todo_marker", res.Violations[0].Pattern)
}

func TestCheckerFlagsHardcodedSecret(t *testing.T) {
	src := []byte(`package foo

var apiSecret = "sk_live_abcdefgh12345678"
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo.go", src)
	require.NoError(t, err)
	require.True(t, res.IsBlocking)
	require.Equal(t, "hardcoded_secret", res.Violations[0].Pattern)
}

func TestCheckerIgnoresPlaceholderSecret(t *testing.T) {
	src := []byte(`package foo

var apiSecret = "test_dummy_value_not_real"
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo.go", src)
	require.NoError(t, err)
	require.False(t, res.IsBlocking)
	require.Empty(t, res.Violations)
}

func TestCheckerIgnoresURLSuffixedSecretLikeName(t *testing.T) {
	src := []byte(`package foo

var tokenURL = "https://example.com/oauth/token/exchange/path"
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo.go", src)
	require.NoError(t, err)
	require.Empty(t, res.Violations)
}

func TestCheckerFlagsSwallowedError(t *testing.T) {
	src := []byte(`package foo

func Bar() error {
	_, err := doThing()
	if err != nil {
	}
	return nil
}

func doThing() (int, error) { return 0, nil }
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo.go", src)
	require.NoError(t, err)
	require.True(t, res.IsBlocking)
	require.Equal(t, "swallowed_error", res.Violations[0].Pattern)
}

func TestCheckerFlagsMissingAssertionInTestFile(t *testing.T) {
	src := []byte(`package foo_test

import "testing"

func TestNothing(t *testing.T) {
	x := 1
	_ = x
}
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo_test.go", src)
	require.NoError(t, err)
	require.True(t, res.IsBlocking)
	require.Equal(t, "missing_assertion", res.Violations[0].Pattern)
}

func TestCheckerAcceptsTestFileWithRequireCall(t *testing.T) {
	src := []byte(`package foo_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSomething(t *testing.T) {
	require.Equal(t, 1, 1)
}
`)
	c := staticreview.NewChecker(staticreview.DefaultConfig())
	res, err := c.CheckSource("foo_test.go", src)
	require.NoError(t, err)
	require.False(t, res.IsBlocking)
}
