package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "advisor"

// AddFlags registers every configuration key on fs, using the defaults from NewConfig.
func AddFlags(fs *pflag.FlagSet) {
	def := NewConfig()

	fs.String("advisor-url", def.AdvisorURL, "Live advisor chat endpoint")
	fs.String("executive-url", def.ExecutiveURL, "Live executive chat endpoint")
	fs.String("mock-url", def.MockURL, "Golden trace mock endpoint")
	fs.String("health-url", def.HealthURL, "Backend health endpoint (empty disables the check)")
	fs.String("mode", string(def.Mode), "Backend mode (advisor, executive)")
	fs.Bool("mock", def.Mock, "Send turns to the mock endpoint")
	fs.StringSlice("supervisor-nodes", def.SupervisorNodes, "Node labels whose events carry the final answer")
	fs.Duration("request-timeout", def.RequestTimeout, "Overall request timeout (0 disables)")
	fs.String("history-path", def.HistoryPath, "Conversation history file")
	fs.Int("max-history", def.MaxHistorySize, "Number of sessions kept in the history file")
	fs.Bool("show-traces", def.ShowTraces, "Expand the agent reasoning log")
	fs.String("mock-addr", def.MockAddr, "Listen address for serve-mock")
	fs.String("mock-trace", def.MockTrace, "Golden trace file replayed by serve-mock")
	fs.Duration("mock-delay", def.MockDelay, "Delay between replayed frames")
}

// InitViper wires flags, environment and an optional YAML config file into v.
// A missing config file is not an error.
func InitViper(v *viper.Viper, fs *pflag.FlagSet, configFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.strategic-advisor")
		if xdg, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(xdg + "/strategic-advisor")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "failed to read config file")
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return errors.Wrap(err, "failed to bind flags")
	}
	return nil
}

// FromViper builds a validated Config from the values bound in v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewConfig()

	cfg.AdvisorURL = v.GetString("advisor-url")
	cfg.ExecutiveURL = v.GetString("executive-url")
	cfg.MockURL = v.GetString("mock-url")
	cfg.HealthURL = v.GetString("health-url")

	mode, err := ParseMode(v.GetString("mode"))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	cfg.Mock = v.GetBool("mock")
	if nodes := v.GetStringSlice("supervisor-nodes"); len(nodes) > 0 {
		cfg.SupervisorNodes = nodes
	}

	cfg.RequestTimeout = v.GetDuration("request-timeout")
	if p := v.GetString("history-path"); p != "" {
		cfg.HistoryPath = expandHome(p)
	}
	cfg.MaxHistorySize = v.GetInt("max-history")
	cfg.ShowTraces = v.GetBool("show-traces")

	cfg.MockAddr = v.GetString("mock-addr")
	cfg.MockTrace = v.GetString("mock-trace")
	cfg.MockDelay = v.GetDuration("mock-delay")

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
