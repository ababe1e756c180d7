// Package circuitbreaker implements the three-level circuit breaker
// hierarchy from spec.md §4.3/§4.4 (C3/C4): stage, worker, and system
// circuits, each a tagged-variant state machine (closed/open/half_open)
// persisted through store.Store with per-instance mutex + row version.
// Grounded on circuit_breaker/{stage,worker,system}.py and
// circuit_breaker_config.py in the original implementation.
package circuitbreaker

import "time"

// FailureMode controls how record_failure's consecutive-failure
// counter resets on success. "consecutive" zeroes the count on any
// success; "sliding_window" instead prunes failures older than
// SlidingWindowSeconds before checking the threshold, matching
// circuit_breaker_config.py's failure_mode literal.
type FailureMode string

const (
	FailureModeConsecutive   FailureMode = "consecutive"
	FailureModeSlidingWindow FailureMode = "sliding_window"
)

type StageConfig struct {
	MaxFailures            int
	RecoveryTimeout        time.Duration
	SkipToNextTask         bool
	RecordFailurePattern   bool
}

type WorkerConfig struct {
	MaxConsecutiveFailures int
	PauseDuration          time.Duration
	HalfOpenMaxRequests    int
	SuccessThreshold       int
	MaxExtensions          int
}

type SystemConfig struct {
	FailureThresholdPercent float64
	MonitoringWindow        time.Duration
	AutoRecoveryEnabled     bool
	RecoveryDelay           time.Duration
	MinWorkersForThreshold  int
	GracefulShutdownTimeout time.Duration
}

type Config struct {
	Stage  StageConfig
	Worker WorkerConfig
	System SystemConfig

	FailureMode               FailureMode
	SlidingWindowSeconds       int
	EnableNotifications        bool
	NotificationThrottleSeconds int
}

// DefaultConfig mirrors circuit_breaker_config.py's DEFAULT_CONFIG
// defaults exactly.
func DefaultConfig() Config {
	return Config{
		Stage: StageConfig{
			MaxFailures:          3,
			RecoveryTimeout:      5 * time.Minute,
			SkipToNextTask:       true,
			RecordFailurePattern: true,
		},
		Worker: WorkerConfig{
			MaxConsecutiveFailures: 3,
			PauseDuration:          5 * time.Minute,
			HalfOpenMaxRequests:    1,
			SuccessThreshold:       1,
			MaxExtensions:          3,
		},
		System: SystemConfig{
			FailureThresholdPercent: 50,
			MonitoringWindow:        5 * time.Minute,
			AutoRecoveryEnabled:     true,
			RecoveryDelay:           10 * time.Minute,
			MinWorkersForThreshold:  2,
			GracefulShutdownTimeout: 60 * time.Second,
		},
		FailureMode:                 FailureModeConsecutive,
		SlidingWindowSeconds:        60,
		EnableNotifications:         true,
		NotificationThrottleSeconds: 300,
	}
}
