package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Mode selects which live backend endpoint a turn is sent to
type Mode string

const (
	ModeAdvisor   Mode = "advisor"
	ModeExecutive Mode = "executive"
)

// ParseMode converts a user-supplied string into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAdvisor:
		return ModeAdvisor, nil
	case ModeExecutive:
		return ModeExecutive, nil
	}
	return "", fmt.Errorf("unknown mode %q (want advisor or executive)", s)
}

// Config holds all application configuration
type Config struct {
	// Backend endpoints
	AdvisorURL   string
	ExecutiveURL string
	MockURL      string
	HealthURL    string

	// Routing
	Mode            Mode
	Mock            bool
	SupervisorNodes []string

	// Request settings, zero means no timeout
	RequestTimeout time.Duration

	// History settings
	HistoryPath    string
	MaxHistorySize int

	// Display
	ShowTraces bool

	// Mock server settings
	MockAddr  string
	MockTrace string
	MockDelay time.Duration
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		AdvisorURL:   "http://localhost:8001/api/chat",
		ExecutiveURL: "http://localhost:8001/api/executive-chat",
		MockURL:      "http://localhost:8001/api/mock-chat-golden",
		HealthURL:    "http://localhost:8001/api/health",

		Mode:            ModeAdvisor,
		Mock:            false,
		SupervisorNodes: []string{"Supervisor", "model"},

		RequestTimeout: 0,

		HistoryPath:    expandHome("~/.strategic-advisor/history.json"),
		MaxHistorySize: 10,

		ShowTraces: true,

		MockAddr:  ":8001",
		MockTrace: "golden_trace.json",
		MockDelay: 100 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for name, u := range map[string]string{
		"advisor URL":   c.AdvisorURL,
		"executive URL": c.ExecutiveURL,
		"mock URL":      c.MockURL,
	} {
		if u == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if len(c.SupervisorNodes) == 0 {
		return fmt.Errorf("at least one supervisor node is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.MaxHistorySize < 1 {
		return fmt.Errorf("max history must be at least 1")
	}
	if c.MockDelay < 0 {
		return fmt.Errorf("mock delay cannot be negative")
	}
	return nil
}

// Endpoint picks the URL for the next turn. Mock wins over mode.
func (c *Config) Endpoint(mode Mode, mock bool) string {
	if mock {
		return c.MockURL
	}
	if mode == ModeExecutive {
		return c.ExecutiveURL
	}
	return c.AdvisorURL
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir := getHomeDir()
		return homeDir + path[1:]
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = os.Getenv
