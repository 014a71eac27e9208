package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

// serviceOptions mirrors the shape of the main.go Options struct.
type serviceOptions struct {
	Config string `help:"Config file path"`

	Port         string   `toml:"server.port" env:"SERVER_PORT"`
	UpstreamHLS  string   `toml:"upstream.hls_url" env:"UPSTREAM_HLS_URL"`
	AuthUsername string   `toml:"auth.username" env:"AUTH_USERNAME"`
	Debug        bool     `toml:"server.debug" env:"SERVER_DEBUG"`
	MaxClients   int      `toml:"gateway.max_clients" env:"GATEWAY_MAX_CLIENTS"`
	Channels     []string `toml:"gateway.channels" env:"GATEWAY_CHANNELS"`
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9000"
debug = true

[upstream]
hls_url = "http://media.internal:8888/live"

[gateway]
max_clients = 500
channels = ["general", "announcements"]
`)

	opts := &serviceOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":9000" {
		t.Errorf("Port = %q, want %q", opts.Port, ":9000")
	}
	if opts.UpstreamHLS != "http://media.internal:8888/live" {
		t.Errorf("UpstreamHLS = %q", opts.UpstreamHLS)
	}
	if !opts.Debug {
		t.Error("Debug should be true")
	}
	if opts.MaxClients != 500 {
		t.Errorf("MaxClients = %d, want 500", opts.MaxClients)
	}
	want := []string{"general", "announcements"}
	if !reflect.DeepEqual(opts.Channels, want) {
		t.Errorf("Channels = %v, want %v", opts.Channels, want)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BROADCASTD_SERVER_PORT", ":9100")
	t.Setenv("BROADCASTD_SERVER_DEBUG", "true")
	t.Setenv("BROADCASTD_GATEWAY_MAX_CLIENTS", "250")
	t.Setenv("BROADCASTD_GATEWAY_CHANNELS", "general, prayer ,youth")

	opts := &serviceOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":9100" {
		t.Errorf("Port = %q, want %q", opts.Port, ":9100")
	}
	if !opts.Debug {
		t.Error("Debug should be true")
	}
	if opts.MaxClients != 250 {
		t.Errorf("MaxClients = %d, want 250", opts.MaxClients)
	}
	want := []string{"general", "prayer", "youth"}
	if !reflect.DeepEqual(opts.Channels, want) {
		t.Errorf("Channels = %v, want %v (comma values should be trimmed)", opts.Channels, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9000"

[auth]
username = "file-admin"
`)
	t.Setenv("BROADCASTD_SERVER_PORT", ":9200")

	opts := &serviceOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":9200" {
		t.Errorf("Port = %q, want env value %q", opts.Port, ":9200")
	}
	if opts.AuthUsername != "file-admin" {
		t.Errorf("AuthUsername = %q, file value should survive without an env override", opts.AuthUsername)
	}
}

func TestLoadConfigCLIFlagWins(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9000"
`)
	t.Setenv("BROADCASTD_SERVER_PORT", ":9200")

	cmd := &cobra.Command{}
	cmd.Flags().String("port", "", "")
	if err := cmd.Flags().Set("port", ":7777"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	opts := &serviceOptions{Config: path, Port: ":7777"}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":7777" {
		t.Errorf("Port = %q, explicitly set flag must beat file and env", opts.Port)
	}
}

func TestLookupTOML(t *testing.T) {
	file := map[string]any{
		"upstream": map[string]any{
			"hls_url": "http://media:8888/live",
			"timeouts": map[string]any{
				"poll": "4s",
			},
		},
		"port": ":8090",
	}

	cases := []struct {
		path string
		want any
	}{
		{"port", ":8090"},
		{"upstream.hls_url", "http://media:8888/live"},
		{"upstream.timeouts.poll", "4s"},
		{"missing", nil},
		{"upstream.missing", nil},
		{"port.not_a_table", nil},
	}
	for _, tc := range cases {
		if got := lookupTOML(file, tc.path); got != tc.want {
			t.Errorf("lookupTOML(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestApplyValues(t *testing.T) {
	var opts serviceOptions
	v := reflect.ValueOf(&opts).Elem()

	applyTOMLValue(v.FieldByName("Port"), ":8090")
	applyTOMLValue(v.FieldByName("Debug"), true)
	applyTOMLValue(v.FieldByName("MaxClients"), int64(42))
	applyTOMLValue(v.FieldByName("Channels"), []any{"a", "b"})

	if opts.Port != ":8090" || !opts.Debug || opts.MaxClients != 42 {
		t.Errorf("applyTOMLValue results: %+v", opts)
	}
	if !reflect.DeepEqual(opts.Channels, []string{"a", "b"}) {
		t.Errorf("Channels = %v", opts.Channels)
	}

	applyEnvValue(v.FieldByName("Port"), ":9090")
	applyEnvValue(v.FieldByName("Debug"), "false")
	applyEnvValue(v.FieldByName("MaxClients"), "17")

	if opts.Port != ":9090" || opts.Debug || opts.MaxClients != 17 {
		t.Errorf("applyEnvValue results: %+v", opts)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &serviceOptions{Config: filepath.Join(t.TempDir(), "absent.toml")}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing config file must not be an error: %v", err)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeConfigFile(t, `
[server
not toml
`)
	opts := &serviceOptions{Config: path}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail on a malformed config file")
	}
}

// loggingOptions matches the logging section of the main.go Options struct.
type loggingOptions struct {
	Config          string `help:"Config file path"`
	LoggingLevel    string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingEncoder  string `toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingLiveness string `toml:"logging.liveness" env:"LOGGING_LIVENESS"`
	LoggingGateway  string `toml:"logging.gateway" env:"LOGGING_GATEWAY"`
	LoggingAPI      string `toml:"logging.api" env:"LOGGING_API"`
}

func TestLoadLoggingModuleLevels(t *testing.T) {
	path := writeConfigFile(t, `
[logging]
level = "info"
format = "text"
encoder = "debug"
liveness = "debug"
gateway = "warn"
api = "error"
`)

	opts := &loggingOptions{
		Config:          path,
		LoggingLevel:    "info",
		LoggingFormat:   "text",
		LoggingEncoder:  "info",
		LoggingLiveness: "info",
		LoggingGateway:  "info",
		LoggingAPI:      "info",
	}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	cases := []struct {
		field string
		got   string
		want  string
	}{
		{"LoggingLevel", opts.LoggingLevel, "info"},
		{"LoggingFormat", opts.LoggingFormat, "text"},
		{"LoggingEncoder", opts.LoggingEncoder, "debug"},
		{"LoggingLiveness", opts.LoggingLiveness, "debug"},
		{"LoggingGateway", opts.LoggingGateway, "warn"},
		{"LoggingAPI", opts.LoggingAPI, "error"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.field, tc.got, tc.want)
		}
	}
}
