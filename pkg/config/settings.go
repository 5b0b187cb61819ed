package config

import (
	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/linksync/pkg/errors"
)

// SettingsPath is the default path to the user's settings.
const SettingsPath = "~/.linksync.yaml"

// Settings contains the user's preferences. Every option defaults to true
// when the settings file doesn't exist.
type Settings struct {
	Version string `json:"version,omitempty"`

	// EnableAutomaticWarning asks the user before the first Automatic
	// execution of each session.
	EnableAutomaticWarning bool `json:"enableAutomaticWarning"`

	// NotifyViaLog logs a warning when a Notify link becomes out of date.
	NotifyViaLog bool `json:"notifyViaLog"`

	// ShowConfirmation shows the plan and asks for confirmation before
	// executing it from the command line.
	ShowConfirmation bool `json:"showConfirmation"`
}

func (s Settings) getVersion() string {
	return s.Version
}

// DefaultSettings returns the settings used when the user hasn't written any.
func DefaultSettings() Settings {
	return Settings{
		Version:                CurrentVersion,
		EnableAutomaticWarning: true,
		NotifyViaLog:           true,
		ShowConfirmation:       true,
	}
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// GetSettingsPath returns the expanded path to the settings file.
func GetSettingsPath() (string, error) {
	return homedirExpand(SettingsPath)
}

// ParseSettings parses the user's settings. The defaults are returned if
// the settings file doesn't exist.
func ParseSettings() (Settings, error) {
	path, err := GetSettingsPath()
	if err != nil {
		return Settings{}, errors.WithContext(err, "expand settings path")
	}

	settings := DefaultSettings()
	if err := parseConfig(path, &settings); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return DefaultSettings(), nil
		}
		return Settings{}, errors.WithContext(err, "parse")
	}
	return settings, nil
}

// WriteSettings writes the settings to the user's settings file.
func WriteSettings(settings Settings) error {
	path, err := GetSettingsPath()
	if err != nil {
		return errors.WithContext(err, "expand settings path")
	}

	if settings.Version == "" {
		settings.Version = CurrentVersion
	}
	return writeConfig(path, settings)
}
