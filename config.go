package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Log        LogConfig
	Daemon     DaemonConfig
	Connman    ConnmanConfig
	Speech     SpeechConfig
	Recognizer RecognizerConfig
	Flow       FlowConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DaemonConfig struct {
	Socket       string
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ConnmanConfig struct {
	Technology   string
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	AgentPath    string        `mapstructure:"agent_path"`
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
}

// SpeechConfig selects the TTS command. An empty command only logs.
type SpeechConfig struct {
	Command string
	Args    []string
	Timeout time.Duration
}

type RecognizerConfig struct {
	Source        string
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "wifispell")
}

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "wifispell.sock")
}

// loadConfig reads configuration from file and env. Env var overrides use
// prefix WIFISPELL_.
func loadConfig() (Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("daemon.socket", socketPath())
	v.SetDefault("daemon.poll_interval", time.Second)
	v.SetDefault("connman.technology", "/net/connman/technology/wifi")
	v.SetDefault("connman.call_timeout", 10*time.Second)
	v.SetDefault("connman.agent_path", "/net/connman/wifispell/agent")
	v.SetDefault("connman.agent_timeout", 2*time.Minute)
	v.SetDefault("speech.command", "espeak-ng")
	v.SetDefault("speech.args", []string{})
	v.SetDefault("speech.timeout", 30*time.Second)
	v.SetDefault("recognizer.source", "socket")
	v.SetDefault("recognizer.min_similarity", 0.5)
	v.SetDefault("flow.stop_word", "connect")
	v.SetDefault("flow.threshold", 0.5)
	v.SetDefault("flow.margin", 0.03)
	v.SetDefault("flow.pause", 200*time.Millisecond)

	v.SetConfigType("toml")

	if path := os.Getenv("WIFISPELL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("WIFISPELL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Recognizer.Source {
	case "socket", "stdin":
	default:
		return fmt.Errorf("recognizer.source must be socket or stdin, got %q", c.Recognizer.Source)
	}
	if c.Flow.Threshold < 0 || c.Flow.Threshold > 1 {
		return fmt.Errorf("flow.threshold %v out of range [0,1]", c.Flow.Threshold)
	}
	if c.Flow.Margin < 0 || c.Flow.Margin > 1 {
		return fmt.Errorf("flow.margin %v out of range [0,1]", c.Flow.Margin)
	}
	if c.Recognizer.MinSimilarity < 0 || c.Recognizer.MinSimilarity > 1 {
		return fmt.Errorf("recognizer.min_similarity %v out of range [0,1]", c.Recognizer.MinSimilarity)
	}
	if c.Connman.CallTimeout <= 0 || c.Connman.AgentTimeout <= 0 {
		return fmt.Errorf("connman timeouts must be positive")
	}
	if c.Daemon.PollInterval <= 0 {
		return fmt.Errorf("daemon.poll_interval must be positive, got %v", c.Daemon.PollInterval)
	}
	return nil
}

func newLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", cfg.Format)
	}
}
