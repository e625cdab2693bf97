package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to config.toml in a temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[upstream]
user_agent = "news-proxy-test/1.0"
timeout_seconds = 60
idle_connections = 50
max_response_bytes = 1048576
allowed_hosts = ["NewsAPI.org", "gnews.io"]

[cors]
allow_origin = "https://example.github.io"

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Upstream.UserAgent != "news-proxy-test/1.0" {
		t.Errorf("Upstream.UserAgent = %q, want %q", cfg.Upstream.UserAgent, "news-proxy-test/1.0")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Upstream.MaxResponseBytes != 1048576 {
		t.Errorf("Upstream.MaxResponseBytes = %d, want %d", cfg.Upstream.MaxResponseBytes, 1048576)
	}
	if len(cfg.Upstream.AllowedHosts) != 2 || cfg.Upstream.AllowedHosts[0] != "newsapi.org" {
		t.Errorf("Upstream.AllowedHosts = %v, want [newsapi.org gnews.io]", cfg.Upstream.AllowedHosts)
	}
	if cfg.CORS.AllowOrigin != "https://example.github.io" {
		t.Errorf("CORS.AllowOrigin = %q, want %q", cfg.CORS.AllowOrigin, "https://example.github.io")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", cfg.FilePath(), path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.BodyMaxBytes != 1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 1024*1024)
	}
	if cfg.Upstream.UserAgent != DefaultUserAgent {
		t.Errorf("default Upstream.UserAgent = %q, want %q", cfg.Upstream.UserAgent, DefaultUserAgent)
	}
	if cfg.Upstream.TimeoutSeconds != 120 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 120)
	}
	if cfg.Upstream.MaxResponseBytes != 10*1024*1024 {
		t.Errorf("default Upstream.MaxResponseBytes = %d, want %d", cfg.Upstream.MaxResponseBytes, 10*1024*1024)
	}
	if len(cfg.Upstream.AllowedHosts) != 0 {
		t.Errorf("default Upstream.AllowedHosts = %v, want empty", cfg.Upstream.AllowedHosts)
	}
	if cfg.CORS.AllowOrigin != "*" {
		t.Errorf("default CORS.AllowOrigin = %q, want %q", cfg.CORS.AllowOrigin, "*")
	}
	if cfg.CORS.AllowMethods != "GET, POST, OPTIONS" {
		t.Errorf("default CORS.AllowMethods = %q, want %q", cfg.CORS.AllowMethods, "GET, POST, OPTIONS")
	}
	if cfg.CORS.AllowHeaders != "Content-Type" {
		t.Errorf("default CORS.AllowHeaders = %q, want %q", cfg.CORS.AllowHeaders, "Content-Type")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	// The package directory has no configs/ subdirectory, so the search comes up empty.
	if findConfig() != "" {
		t.Skip("a config file exists on a search path")
	}

	cfg, err := Load(&CLI{Port: 9100})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FilePath() != "" {
		t.Errorf("FilePath() = %q, want empty", cfg.FilePath())
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 9100)
	}
	if cfg.Upstream.UserAgent != DefaultUserAgent {
		t.Errorf("Upstream.UserAgent = %q, want %q", cfg.Upstream.UserAgent, DefaultUserAgent)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for malformed TOML, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     3000,
		LogLevel: "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid log level", "[log]\nlevel = \"verbose\"\n"},
		{"invalid log format", "[log]\nformat = \"xml\"\n"},
		{"negative port", "[server]\nport = -1\n"},
		{"port too large", "[server]\nport = 70000\n"},
		{"negative body_max_bytes", "[server]\nbody_max_bytes = -1\n"},
		{"negative timeout", "[upstream]\ntimeout_seconds = -5\n"},
		{"negative idle connections", "[upstream]\nidle_connections = -1\n"},
		{"negative max_response_bytes", "[upstream]\nmax_response_bytes = -1\n"},
		{"allowed host with scheme", "[upstream]\nallowed_hosts = [\"https://newsapi.org\"]\n"},
		{"allowed host with port", "[upstream]\nallowed_hosts = [\"newsapi.org:443\"]\n"},
		{"empty allowed host", "[upstream]\nallowed_hosts = [\"\"]\n"},
		{"rate limit enabled with zero rps", "[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.data)
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Fatal("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 5.5
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = false, want true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 5.5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want %v", cfg.Server.RateLimit.RequestsPerSecond, 5.5)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		enabled bool
		wantErr bool
	}{
		{"custom path", "/internal/metrics", true, false},
		{"no leading slash", "metrics", true, true},
		{"proxy root", "/", true, true},
		{"conflicts with healthz", "/healthz", true, true},
		{"conflicts with status subtree", "/proxy/status/metrics", true, true},
		{"disabled skips validation", "/healthz", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "[metrics]\npath = \"" + tt.path + "\"\n"
			if tt.enabled {
				data += "enabled = true\n"
			}
			_, err := Load(cliWithPath(writeConfig(t, data)))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpstreamConfig_HostAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		want    bool
	}{
		{"empty list allows anything", nil, "evil.example", true},
		{"listed host", []string{"newsapi.org"}, "newsapi.org", true},
		{"case insensitive", []string{"newsapi.org"}, "NewsAPI.org", true},
		{"unlisted host", []string{"newsapi.org"}, "evil.example", false},
		{"subdomain is not implied", []string{"newsapi.org"}, "api.newsapi.org", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &UpstreamConfig{AllowedHosts: tt.allowed}
			if got := c.HostAllowed(tt.host); got != tt.want {
				t.Errorf("HostAllowed(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions not meaningful on windows")
	}
	path := writeConfig(t, "")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := &Config{filePath: path}
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions not meaningful on windows")
	}
	path := writeConfig(t, "")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := &Config{filePath: path}
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got %q", buf.String())
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), second, first}); got != second {
		t.Errorf("findConfigInPaths() = %q, want %q", got, second)
	}
	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	c := &ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8080")
	}
}
