package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersEverySubcommand(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "migrate", "reset-circuit", "seed"} {
		require.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}
