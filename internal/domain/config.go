package domain

// ConfigKey enumerates the bounded numeric keys from spec §6.
type ConfigKey string

const (
	KeyMaxGreenAttempts         ConfigKey = "max_green_attempts"
	KeyGreenRetryDelayMs        ConfigKey = "green_retry_delay_ms"
	KeyMaxGreenRetryTimeSeconds ConfigKey = "max_green_retry_time_seconds"
	KeyMaxInvocationsPerSession ConfigKey = "max_invocations_per_session"
	KeyBudgetWarningThreshold   ConfigKey = "budget_warning_threshold"
)

// ConfigBounds describes the default and clamp range for a known
// config key (spec §6). Bounded false means the key is never clamped
// and Min/Max are ignored, as for max_invocations_per_session /
// budget_warning_threshold which spec.md lists with no explicit bounds.
type ConfigBounds struct {
	Default int
	Min     int
	Max     int
	Bounded bool
}

var KnownConfig = map[ConfigKey]ConfigBounds{
	KeyMaxGreenAttempts:         {Default: 2, Min: 1, Max: 10, Bounded: true},
	KeyGreenRetryDelayMs:        {Default: 1000, Min: 0, Max: 10000, Bounded: true},
	KeyMaxGreenRetryTimeSeconds: {Default: 1800, Min: 60, Max: 7200, Bounded: true},
	KeyMaxInvocationsPerSession: {Default: 100, Bounded: false},
	KeyBudgetWarningThreshold:   {Default: 80, Bounded: false},
}

// Clamp applies the key's bounds to v, returning the clamped value and
// whether clamping occurred (spec §8: "Config read of an out-of-bounds
// value clamps to the nearest bound and logs a warning").
func (b ConfigBounds) Clamp(v int) (int, bool) {
	if !b.Bounded {
		return v, false
	}
	if v < b.Min {
		return b.Min, true
	}
	if v > b.Max {
		return b.Max, true
	}
	return v, false
}

type ConfigRow struct {
	Key   ConfigKey
	Value int
}
