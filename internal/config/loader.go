package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for mcp-guard.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("mcp-guard")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MCP_GUARD_SERVER_PORT, etc.
	viper.SetEnvPrefix("MCP_GUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an mcp-guard config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "mcp-guard" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcp-guard"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "mcp-guard"))
		}
	} else {
		paths = append(paths, "/etc/mcp-guard")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for mcp-guard.yaml
// or .yml. Returns the full path of the first match, or empty string if
// none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcp-guard"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every config key Viper should accept as an
// environment variable override. Slice and struct-slice fields (servers,
// api_keys, scope_tool_mapping) are left to the config file; they are
// impractical to express as flat env vars.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("server.tls")

	_ = viper.BindEnv("upstream.transport")
	_ = viper.BindEnv("upstream.command")
	_ = viper.BindEnv("upstream.url")

	_ = viper.BindEnv("auth.jwt.mode")
	_ = viper.BindEnv("auth.jwt.secret")
	_ = viper.BindEnv("auth.jwt.jwks_url")
	_ = viper.BindEnv("auth.jwt.issuer")
	_ = viper.BindEnv("auth.jwt.audience")

	_ = viper.BindEnv("auth.oauth.provider")
	_ = viper.BindEnv("auth.oauth.client_id")
	_ = viper.BindEnv("auth.oauth.client_secret")

	_ = viper.BindEnv("auth.mtls.enabled")
	_ = viper.BindEnv("auth.mtls.identity_source")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.requests_per_second")
	_ = viper.BindEnv("rate_limit.burst_size")

	_ = viper.BindEnv("audit.enabled")
	_ = viper.BindEnv("audit.stdout")
	_ = viper.BindEnv("audit.file")
	_ = viper.BindEnv("audit.export_url")

	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("tracing.service_name")
	_ = viper.BindEnv("tracing.otlp_endpoint")
	_ = viper.BindEnv("tracing.sample_rate")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// not validate. Use this when the caller needs to inspect or mutate the
// config (e.g. apply CLI flag overrides) before validation runs.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or an empty string if no config file was found (env vars only).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
