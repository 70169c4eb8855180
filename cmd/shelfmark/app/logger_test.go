package app

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDetermineLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		expected string
	}{
		{
			name:     "default",
			config:   &Config{},
			expected: "info",
		},
		{
			name:     "verbose",
			config:   &Config{Verbose: true},
			expected: "debug",
		},
		{
			name:     "quiet",
			config:   &Config{Quiet: true},
			expected: "warn",
		},
		{
			name:     "verbose and quiet",
			config:   &Config{Verbose: true, Quiet: true},
			expected: "warn",
		},
		{
			name:     "explicit level wins over verbose",
			config:   &Config{LogLevel: "error", Verbose: true},
			expected: "error",
		},
		{
			name:     "invalid explicit level falls back",
			config:   &Config{LogLevel: "loud"},
			expected: "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "")
			got := determineLogLevel(tt.config)
			if got != tt.expected {
				t.Errorf("determineLogLevel() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDetermineLogLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "trace")

	if got := determineLogLevel(&Config{}); got != "trace" {
		t.Errorf("determineLogLevel() = %q, want trace from LOG_LEVEL", got)
	}

	// Flags still outrank the environment.
	if got := determineLogLevel(&Config{Quiet: true}); got != "warn" {
		t.Errorf("determineLogLevel() = %q, want warn when quiet is set", got)
	}
}

func TestValidateLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected string
	}{
		{"trace", "trace"},
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"verbose", "info"},
		{"", "info"},
	}

	for _, tt := range tests {
		if got := validateLogLevel(tt.level); got != tt.expected {
			t.Errorf("validateLogLevel(%q) = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	logger := NewLogger(&Config{LogFormat: "json", LogOutput: "stderr"})
	if got := logger.GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("logger level = %v, want info", got)
	}

	quiet := NewLogger(&Config{Quiet: true, LogFormat: "json", LogOutput: "stderr"})
	if got := quiet.GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("quiet logger level = %v, want warn", got)
	}
}
