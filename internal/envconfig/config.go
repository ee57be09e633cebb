// Package envconfig reads gpufft settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns the trimmed value of an environment variable, with
// surrounding quotes removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel is configured by GPUFFT_DEBUG: unset or false is INFO, true is
// DEBUG, and an integer n selects slog.Level(-4n).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("GPUFFT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// BoolWithDefault returns a reader for a boolean variable. Unparseable
// values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}

			return b
		}

		return defaultValue
	}
}

// Bool returns a reader for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a reader for a string variable.
func String(key, defaultValue string) func() string {
	return func() string {
		if s := Var(key); s != "" {
			return s
		}

		return defaultValue
	}
}

// Uint returns a reader for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}

		return defaultValue
	}
}

var (
	// Backend names the device backend Setup registers when none is.
	Backend = String("GPUFFT_BACKEND", "host")
	// HostMemoryMB limits the host device's memory. 0 means unlimited.
	HostMemoryMB = Uint("GPUFFT_HOST_MEMORY_MB", 0)
	// HostWorkers bounds the goroutines one host kernel launch uses. 0 means GOMAXPROCS.
	HostWorkers = Uint("GPUFFT_HOST_WORKERS", 0)
	// PlanCache makes the CLI reuse compiled plans across commands of one run.
	PlanCache = BoolWithDefault("GPUFFT_PLAN_CACHE")
)

// EnvVar describes one setting.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every setting with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GPUFFT_BACKEND":        {"GPUFFT_BACKEND", Backend(), "Device backend used when none is registered (host, webgpu)"},
		"GPUFFT_DEBUG":          {"GPUFFT_DEBUG", LogLevel(), "Show additional debug information (e.g. GPUFFT_DEBUG=1)"},
		"GPUFFT_HOST_MEMORY_MB": {"GPUFFT_HOST_MEMORY_MB", HostMemoryMB(), "Memory limit of the host device in MiB (0 = unlimited)"},
		"GPUFFT_HOST_WORKERS":   {"GPUFFT_HOST_WORKERS", HostWorkers(), "Goroutines per host kernel launch (0 = GOMAXPROCS)"},
		"GPUFFT_PLAN_CACHE":     {"GPUFFT_PLAN_CACHE", PlanCache(true), "Reuse compiled plans in the CLI (default: true)"},
	}
}

// Values returns every setting formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}

	return vals
}
