package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SettingsName is the settings file name (without extension) looked up
// in the project directory, then in $HOME/.config/confsync.
const SettingsName = "confsync-settings"

// Settings are project-wide defaults that individual tracked documents
// may override.
type Settings struct {
	AccessMode      AccessMode `mapstructure:"accessMode"`
	SyncChildren    bool       `mapstructure:"syncChildren"`
	SyncAttachments bool       `mapstructure:"syncAttachments"`
	Store           string     `mapstructure:"store"`
	Workers         int        `mapstructure:"workers"`
}

// DefaultSettings returns the built-in defaults: read-only access, full
// recursion with attachments, the JSON store, four fetch workers.
func DefaultSettings() Settings {
	return Settings{
		AccessMode:      ReadOnly,
		SyncChildren:    true,
		SyncAttachments: true,
		Store:           "json",
		Workers:         4,
	}
}

// LoadSettings reads confsync-settings.yaml from the project directory
// or the user config directory. A missing file yields the defaults.
func LoadSettings(dir string) (Settings, error) {
	v := viper.New()
	v.SetConfigName(SettingsName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "confsync"))
	}

	defaults := DefaultSettings()
	v.SetDefault("accessMode", string(defaults.AccessMode))
	v.SetDefault("syncChildren", defaults.SyncChildren)
	v.SetDefault("syncAttachments", defaults.SyncAttachments)
	v.SetDefault("store", defaults.Store)
	v.SetDefault("workers", defaults.Workers)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if s.AccessMode != ReadWrite {
		s.AccessMode = ReadOnly
	}
	if s.Workers <= 0 {
		s.Workers = defaults.Workers
	}
	return s, nil
}
