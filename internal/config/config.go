// Package config persists user settings and export header templates.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"linescale-gui/internal/protocol"
)

const configDirName = "linescale-gui"
const settingsFileName = "settings.json"
const templatesFileName = "templates.json"

const (
	TransportSerial = "serial"
	TransportBLE    = "ble"
)

type Settings struct {
	Transport   string `json:"transport"`
	Port        string `json:"port"`
	BaudRate    int    `json:"baudRate"`
	BLEAddress  string `json:"bleAddress"`
	ShowLog     bool   `json:"showLog"`
	MetricsAddr string `json:"metricsAddr"`
	LogLevel    string `json:"logLevel"`
}

func Defaults() Settings {
	return Settings{
		Transport: TransportSerial,
		BaudRate:  protocol.DefaultBaudRate,
		ShowLog:   true,
		LogLevel:  "info",
	}
}

// Dir returns the path to the app's config directory, creating it if needed.
func Dir() (string, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get config dir")
	}
	dir := filepath.Join(appData, configDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create config dir")
	}
	return dir, nil
}

// Load reads settings from dir. Missing files and fields fall back to
// Defaults.
func Load(dir string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(filepath.Join(dir, settingsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, errors.Wrap(err, "failed to read settings")
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), errors.Wrap(err, "failed to parse settings")
	}
	if s.Transport != TransportBLE {
		s.Transport = TransportSerial
	}
	if s.BaudRate <= 0 {
		s.BaudRate = protocol.DefaultBaudRate
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	return s, nil
}

// Save writes settings to dir.
func Save(dir string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}
	if err := os.WriteFile(filepath.Join(dir, settingsFileName), data, 0644); err != nil {
		return errors.Wrap(err, "failed to write settings")
	}
	return nil
}

// LoadEnv loads an optional .env file into the process environment.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return errors.Wrap(godotenv.Load(existing...), "failed to load env file")
}

// ApplyEnv overrides s with LINESCALE_* variables that are set.
func ApplyEnv(s Settings, getenv func(string) string) Settings {
	if v := getenv("LINESCALE_PORT"); v != "" {
		s.Port = v
		s.Transport = TransportSerial
	}
	if v := getenv("LINESCALE_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.BaudRate = n
		}
	}
	if v := getenv("LINESCALE_BLE_ADDR"); v != "" {
		s.BLEAddress = v
		if getenv("LINESCALE_PORT") == "" {
			s.Transport = TransportBLE
		}
	}
	if v := getenv("LINESCALE_METRICS_ADDR"); v != "" {
		s.MetricsAddr = v
	}
	if v := getenv("LINESCALE_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	return s
}

// LoadTemplates reads saved header templates. Returns empty slice if file doesn't exist.
func LoadTemplates(dir string) ([]string, error) {
	path := filepath.Join(dir, templatesFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, "failed to read templates")
	}

	var templates []string
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, errors.Wrap(err, "failed to parse templates")
	}
	return templates, nil
}

// SaveTemplates writes templates to disk.
func SaveTemplates(dir string, templates []string) error {
	data, err := json.MarshalIndent(templates, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal templates")
	}

	path := filepath.Join(dir, templatesFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write templates")
	}
	return nil
}

// AddTemplate appends a trimmed header template. It reports false when the
// template is empty or already saved.
func AddTemplate(templates []string, t string) ([]string, bool) {
	t = strings.TrimSpace(t)
	if t == "" || slices.Contains(templates, t) {
		return templates, false
	}
	return append(templates, t), true
}

// RemoveTemplate returns templates without t.
func RemoveTemplate(templates []string, t string) []string {
	out := make([]string, 0, len(templates))
	for _, s := range templates {
		if s != t {
			out = append(out, s)
		}
	}
	return out
}
