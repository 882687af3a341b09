package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linescale-gui/internal/protocol"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestDefaultsUseDeviceBaudRate(t *testing.T) {
	assert.Equal(t, protocol.DefaultBaudRate, Defaults().BaudRate)
}

func TestSaveLoadSettings(t *testing.T) {
	dir := t.TempDir()
	want := Settings{Transport: TransportBLE, BLEAddress: "aa:bb", BaudRate: 115200, LogLevel: "debug"}
	require.NoError(t, Save(dir, want))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadFillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFileName), []byte(`{"transport":"usb","port":"/dev/ttyUSB0"}`), 0644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, TransportSerial, s.Transport)
	assert.Equal(t, "/dev/ttyUSB0", s.Port)
	assert.Equal(t, Defaults().BaudRate, s.BaudRate)
	assert.Equal(t, "info", s.LogLevel)
}

func TestLoadBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFileName), []byte("{"), 0644))

	s, err := Load(dir)
	assert.Error(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LINESCALE_BLE_ADDR":     "11:22:33:44:55:66",
		"LINESCALE_BAUD":         "bogus",
		"LINESCALE_METRICS_ADDR": ":9100",
	}
	s := ApplyEnv(Defaults(), func(k string) string { return env[k] })
	assert.Equal(t, TransportBLE, s.Transport)
	assert.Equal(t, "11:22:33:44:55:66", s.BLEAddress)
	assert.Equal(t, Defaults().BaudRate, s.BaudRate)
	assert.Equal(t, ":9100", s.MetricsAddr)

	env["LINESCALE_PORT"] = "COM3"
	env["LINESCALE_BAUD"] = "9600"
	s = ApplyEnv(Defaults(), func(k string) string { return env[k] })
	assert.Equal(t, TransportSerial, s.Transport)
	assert.Equal(t, "COM3", s.Port)
	assert.Equal(t, 9600, s.BaudRate)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LINESCALE_TEST_LOADENV=yes\n"), 0644))
	t.Setenv("LINESCALE_TEST_LOADENV", "")
	os.Unsetenv("LINESCALE_TEST_LOADENV")

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "yes", os.Getenv("LINESCALE_TEST_LOADENV"))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
}

func TestTemplatesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	got, err := LoadTemplates(dir)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, SaveTemplates(dir, []string{"Time,Load"}))
	got, err = LoadTemplates(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Time,Load"}, got)
}

func TestAddRemoveTemplate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  []string
		added bool
	}{
		{"new", "  Time,Dt,Load,Unit ", []string{"a,b,c,d", "Time,Dt,Load,Unit"}, true},
		{"duplicate", "a,b,c,d", []string{"a,b,c,d"}, false},
		{"blank", "   ", []string{"a,b,c,d"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, added := AddTemplate([]string{"a,b,c,d"}, tt.text)
			assert.Equal(t, tt.added, added)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, []string{"x"}, RemoveTemplate([]string{"x", "y"}, "y"))
	assert.Equal(t, []string{"x", "y"}, RemoveTemplate([]string{"x", "y"}, "z"))
}
