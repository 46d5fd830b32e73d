// Package config reads user settings with viper: defaults set here, a TOML
// file at ~/.config/mxvc/config.toml (or --config), and MXVC_ environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendFS   = "fs"
	BackendBolt = "bolt"
)

// Settings are the typed values the repository layer uses.
type Settings struct {
	UserName  string
	UserEmail string

	// Hostname and Username are recorded in operation metadata.
	Hostname string
	Username string

	Backend     string
	LockTimeout time.Duration

	SkipEmptied   bool
	KeepDivergent bool

	// ImmutableBookmarks name bookmarks whose ancestors may not be
	// rewritten.
	ImmutableBookmarks []string

	SigningEnabled bool
	IdentityPath   string

	LogLevel  string
	LogFormat string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	host, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	home, _ := os.UserHomeDir()

	v.SetDefault("user.name", "")
	v.SetDefault("user.email", "")
	v.SetDefault("operation.hostname", host)
	v.SetDefault("operation.username", username)
	v.SetDefault("storage.backend", BackendFS)
	v.SetDefault("storage.lock_timeout", "10s")
	v.SetDefault("rebase.skip_emptied", false)
	v.SetDefault("rebase.keep_divergent", false)
	v.SetDefault("revsets.immutable_bookmarks", []string{})
	v.SetDefault("signing.enabled", false)
	v.SetDefault("signing.identity_path", filepath.Join(home, ".config", "mxvc", "identity.json"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding but no
// config file.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("MXVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads cfgFile, or the default location when cfgFile is empty.
// A missing default file is not an error.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(filepath.Join(home, ".config", "mxvc"))
		v.SetConfigType("toml")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// FromViper builds Settings from v.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		UserName:           v.GetString("user.name"),
		UserEmail:          v.GetString("user.email"),
		Hostname:           v.GetString("operation.hostname"),
		Username:           v.GetString("operation.username"),
		Backend:            v.GetString("storage.backend"),
		LockTimeout:        v.GetDuration("storage.lock_timeout"),
		SkipEmptied:        v.GetBool("rebase.skip_emptied"),
		KeepDivergent:      v.GetBool("rebase.keep_divergent"),
		ImmutableBookmarks: v.GetStringSlice("revsets.immutable_bookmarks"),
		SigningEnabled:     v.GetBool("signing.enabled"),
		IdentityPath:       v.GetString("signing.identity_path"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Default returns the settings used when nothing is configured.
func Default() *Settings {
	s, err := FromViper(New())
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return s
}

// Validate rejects unknown enum values.
func (s *Settings) Validate() error {
	switch s.Backend {
	case BackendFS, BackendBolt:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", s.Backend)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", s.LogFormat)
	}
	if s.LockTimeout <= 0 {
		return fmt.Errorf("storage.lock_timeout must be positive")
	}
	return nil
}
