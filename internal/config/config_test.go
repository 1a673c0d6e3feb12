package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Upstream.Transport != "stdio" {
		t.Errorf("Upstream.Transport = %q, want %q", cfg.Upstream.Transport, "stdio")
	}
	if cfg.RateLimit.RequestsPerSecond != 100 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 100", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.RateLimit.BurstSize != 50 {
		t.Errorf("RateLimit.BurstSize = %v, want 50", cfg.RateLimit.BurstSize)
	}
}

func TestConfig_SetDefaults_SkipsWhenServersConfigured(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Upstream: UpstreamConfig{
			Servers: []UpstreamServerConfig{{Name: "a", Transport: "stdio", Command: "./a"}},
		},
	}
	cfg.SetDefaults()

	if cfg.Upstream.Transport != "" {
		t.Errorf("Upstream.Transport = %q, want empty (servers[] mode)", cfg.Upstream.Transport)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 9090},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         5,
		},
	}
	cfg.SetDefaults()

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host was overwritten: got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port was overwritten: got %d", cfg.Server.Port)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 {
		t.Errorf("RequestsPerSecond was overwritten: got %v", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.RateLimit.BurstSize != 5 {
		t.Errorf("BurstSize was overwritten: got %v", cfg.RateLimit.BurstSize)
	}
}

func TestConfig_SetDefaults_Audit(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()

	if cfg.Audit.ExportBatchSize != 100 {
		t.Errorf("ExportBatchSize = %d, want 100", cfg.Audit.ExportBatchSize)
	}
	if cfg.Audit.ExportIntervalSecs != 1 {
		t.Errorf("ExportIntervalSecs = %d, want 1", cfg.Audit.ExportIntervalSecs)
	}
}

func TestConfig_SetDefaults_Tracing(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()

	if cfg.Tracing.ServiceName != "mcp-guard" {
		t.Errorf("ServiceName = %q, want %q", cfg.Tracing.ServiceName, "mcp-guard")
	}
	if cfg.Tracing.SampleRate != 1 {
		t.Errorf("SampleRate = %v, want 1", cfg.Tracing.SampleRate)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcp-guard.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcp-guard.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "mcp-guard" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "mcp-guard"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "mcp-guard.yaml")
	ymlPath := filepath.Join(dir, "mcp-guard.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  port: 8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  port: 9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
