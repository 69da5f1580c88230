// Package config loads cloudsh settings from the config file, the
// environment (CLOUDSH_*) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cloudfs/cloudsh/internal/core"
)

// EnvPrefix is prepended to every environment variable cloudsh reads.
const EnvPrefix = "CLOUDSH"

// PassphraseEnv holds the state database passphrase. It is never read from
// the config file.
const PassphraseEnv = EnvPrefix + "_PASSPHRASE"

// Config keys.
const (
	KeyBackend       = "backend"
	KeyFixture       = "fixture"
	KeyStateDir      = "state_dir"
	KeyOpTimeout     = "op_timeout"
	KeyLoginTimeout  = "login_timeout"
	KeyLogLevel      = "log_level"
	KeyPrompt        = "prompt"
	KeyReplaceRename = "replace_rename"
	KeyResume        = "resume"
)

// Config is the resolved configuration.
type Config struct {
	Backend      string
	Fixture      string
	StateDir     string
	OpTimeout    time.Duration
	LoginTimeout time.Duration
	LogLevel     string
	Prompt       string
	RenameMode   core.RenameMode
	Resume       bool

	Passphrase string
	// File is the config file that was read, if any.
	File string
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, "memory")
	v.SetDefault(KeyFixture, "")
	v.SetDefault(KeyStateDir, defaultStateDir())
	v.SetDefault(KeyOpTimeout, time.Duration(0))
	v.SetDefault(KeyLoginTimeout, time.Duration(0))
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyPrompt, "cloudsh> ")
	v.SetDefault(KeyReplaceRename, "differs")
	v.SetDefault(KeyResume, false)
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cloudsh"
	}
	return filepath.Join(home, ".cloudsh")
}

// ReadInConfig reads cfgFile, or config.yaml from $HOME/.config/cloudsh when
// cfgFile is empty. A missing default file is not an error.
func ReadInConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cloudsh"))
		}
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load resolves the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	mode, err := core.ParseRenameMode(v.GetString(KeyReplaceRename))
	if err != nil {
		return nil, err
	}

	opTimeout := v.GetDuration(KeyOpTimeout)
	loginTimeout := v.GetDuration(KeyLoginTimeout)
	if opTimeout < 0 || loginTimeout < 0 {
		return nil, fmt.Errorf("timeouts must not be negative")
	}

	cfg := &Config{
		Backend:      v.GetString(KeyBackend),
		Fixture:      v.GetString(KeyFixture),
		StateDir:     v.GetString(KeyStateDir),
		OpTimeout:    opTimeout,
		LoginTimeout: loginTimeout,
		LogLevel:     v.GetString(KeyLogLevel),
		Prompt:       v.GetString(KeyPrompt),
		RenameMode:   mode,
		Resume:       v.GetBool(KeyResume),
		Passphrase:   os.Getenv(PassphraseEnv),
		File:         v.ConfigFileUsed(),
	}
	if cfg.Backend == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyBackend)
	}
	return cfg, nil
}

// StatePath is the location of the local state database.
func (c *Config) StatePath() string {
	return filepath.Join(c.StateDir, "state.db")
}

// SessionOptions returns the core options derived from c.
func (c *Config) SessionOptions() core.Options {
	return core.Options{
		OpTimeout:    c.OpTimeout,
		LoginTimeout: c.LoginTimeout,
		RenameMode:   c.RenameMode,
	}
}

// BackendOptions returns the options passed to the backend factory.
func (c *Config) BackendOptions() map[string]interface{} {
	opts := make(map[string]interface{})
	if c.Fixture != "" {
		opts["fixture"] = c.Fixture
	}
	return opts
}
