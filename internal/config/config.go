// Package config provides the gateway's configuration schema and loader.
// Configuration lives outside the core request-processing pipeline: a
// single struct tree, viper-backed, validator-tagged.
package config

import "errors"

// Config is the top-level configuration tree: server, upstream,
// auth.{api_keys,jwt,oauth,mtls}, rate_limit, audit, tracing.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
}

// ServerConfig configures the HTTP listener. The gateway never terminates
// TLS itself (a reverse proxy in front of it does); TLS here only records
// that the channel in front of the gateway is already encrypted.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host" validate:"omitempty,hostname|ip"`
	Port int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	TLS  bool   `yaml:"tls" mapstructure:"tls"`
}

// UpstreamConfig configures either a single default upstream or a named
// multi-upstream set. The validator rejects a config that populates both the
// single-upstream fields (command/url) and Servers; it does not reject one
// that populates neither.
type UpstreamConfig struct {
	Transport string   `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=stdio http sse"`
	Command   string   `yaml:"command" mapstructure:"command"`
	Args      []string `yaml:"args" mapstructure:"args"`
	URL       string   `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	Servers []UpstreamServerConfig `yaml:"servers" mapstructure:"servers" validate:"omitempty,dive"`
}

// UpstreamServerConfig is one named route descriptor.
type UpstreamServerConfig struct {
	Name        string   `yaml:"name" mapstructure:"name" validate:"required"`
	PathPrefix  string   `yaml:"path_prefix" mapstructure:"path_prefix" validate:"omitempty,startswith=/"`
	Transport   string   `yaml:"transport" mapstructure:"transport" validate:"required,oneof=stdio http sse"`
	Command     string   `yaml:"command" mapstructure:"command"`
	Args        []string `yaml:"args" mapstructure:"args"`
	URL         string   `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	StripPrefix bool     `yaml:"strip_prefix" mapstructure:"strip_prefix"`
}

// AuthConfig configures the authentication multiplexer's providers.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
	JWT     JWTConfig      `yaml:"jwt" mapstructure:"jwt"`
	OAuth   OAuthConfig    `yaml:"oauth" mapstructure:"oauth"`
	MTLS    MTLSConfig     `yaml:"mtls" mapstructure:"mtls"`
}

// APIKeyConfig is one pre-shared-key record.
type APIKeyConfig struct {
	ID           string   `yaml:"id" mapstructure:"id" validate:"required"`
	KeyHash      string   `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`
	AllowedTools []string `yaml:"allowed_tools" mapstructure:"allowed_tools"`
	RateLimit    float64  `yaml:"rate_limit" mapstructure:"rate_limit" validate:"omitempty,gt=0"`
}

// JWTConfig configures the symmetric or asymmetric signed-token provider,
// selected by Mode.
type JWTConfig struct {
	Mode              string             `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=symmetric asymmetric"`
	Secret            string             `yaml:"secret" mapstructure:"secret"`
	JWKSURL           string             `yaml:"jwks_url" mapstructure:"jwks_url" validate:"omitempty,url"`
	Algorithms        []string           `yaml:"algorithms" mapstructure:"algorithms"`
	Issuer            string             `yaml:"issuer" mapstructure:"issuer" validate:"required_with=Mode"`
	Audience          string             `yaml:"audience" mapstructure:"audience" validate:"required_with=Mode"`
	UserIDClaim       string             `yaml:"user_id_claim" mapstructure:"user_id_claim"`
	ScopesClaim       string             `yaml:"scopes_claim" mapstructure:"scopes_claim"`
	LeewaySecs        int                `yaml:"leeway_secs" mapstructure:"leeway_secs" validate:"omitempty,min=0"`
	CacheDurationSecs int                `yaml:"cache_duration_secs" mapstructure:"cache_duration_secs" validate:"omitempty,min=0"`
	ScopeToolMapping  []ScopeMappingSpec `yaml:"scope_tool_mapping" mapstructure:"scope_tool_mapping" validate:"omitempty,dive"`
}

// OAuthConfig configures the delegated-authorization (PKCE) provider.
type OAuthConfig struct {
	Provider         string             `yaml:"provider" mapstructure:"provider"`
	ClientID         string             `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret     string             `yaml:"client_secret" mapstructure:"client_secret"`
	AuthorizationURL string             `yaml:"authorization_url" mapstructure:"authorization_url" validate:"omitempty,url"`
	TokenURL         string             `yaml:"token_url" mapstructure:"token_url" validate:"omitempty,url"`
	IntrospectionURL string             `yaml:"introspection_url" mapstructure:"introspection_url" validate:"omitempty,url"`
	UserInfoURL      string             `yaml:"userinfo_url" mapstructure:"userinfo_url" validate:"omitempty,url"`
	RedirectURI      string             `yaml:"redirect_uri" mapstructure:"redirect_uri" validate:"omitempty,url"`
	Scopes           []string           `yaml:"scopes" mapstructure:"scopes"`
	UserIDClaim      string             `yaml:"user_id_claim" mapstructure:"user_id_claim"`
	ScopeToolMapping []ScopeMappingSpec `yaml:"scope_tool_mapping" mapstructure:"scope_tool_mapping" validate:"omitempty,dive"`
}

// ScopeMappingSpec is one scope-to-tools entry, with an optional CEL
// condition narrowing when the mapping applies.
type ScopeMappingSpec struct {
	Scope     string   `yaml:"scope" mapstructure:"scope" validate:"required"`
	Tools     []string `yaml:"tools" mapstructure:"tools" validate:"required,min=1"`
	Condition string   `yaml:"condition" mapstructure:"condition"`
}

// MTLSConfig configures the client-certificate-via-trusted-proxy-header
// provider.
type MTLSConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	IdentitySource  string   `yaml:"identity_source" mapstructure:"identity_source" validate:"omitempty,oneof=common_name san_dns san_email"`
	AllowedTools    []string `yaml:"allowed_tools" mapstructure:"allowed_tools"`
	RateLimit       float64  `yaml:"rate_limit" mapstructure:"rate_limit" validate:"omitempty,gt=0"`
	TrustedProxyIPs []string `yaml:"trusted_proxy_ips" mapstructure:"trusted_proxy_ips"`
}

// RateLimitConfig configures the global token-bucket defaults; per-identity
// overrides come from APIKeyConfig.RateLimit/MTLSConfig.RateLimit.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"omitempty,gt=0"`
	BurstSize         float64 `yaml:"burst_size" mapstructure:"burst_size" validate:"omitempty,gt=0"`
}

// AuditConfig configures the audit sink's back end.
type AuditConfig struct {
	Enabled            bool     `yaml:"enabled" mapstructure:"enabled"`
	Stdout             bool     `yaml:"stdout" mapstructure:"stdout"`
	File               string   `yaml:"file" mapstructure:"file"`
	ExportURL          string   `yaml:"export_url" mapstructure:"export_url" validate:"omitempty,url"`
	ExportBatchSize    int      `yaml:"export_batch_size" mapstructure:"export_batch_size" validate:"omitempty,min=1"`
	ExportIntervalSecs int      `yaml:"export_interval_secs" mapstructure:"export_interval_secs" validate:"omitempty,min=1"`
	ExportHeaders      []string `yaml:"export_headers" mapstructure:"export_headers"`
}

// TracingConfig configures the trace-context pipeline stage.
type TracingConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	ServiceName      string  `yaml:"service_name" mapstructure:"service_name"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate       float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"omitempty,min=0,max=1"`
	PropagateContext bool    `yaml:"propagate_context" mapstructure:"propagate_context"`
}

// ErrUpstreamMutualExclusion is returned when both a single-upstream spec
// and a multi-upstream Servers list are configured.
var ErrUpstreamMutualExclusion = errors.New("upstream: specify a single transport/command/url or servers[], not both")

// SetDefaults applies the gateway's sensible defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Upstream.Transport == "" && len(c.Upstream.Servers) == 0 {
		c.Upstream.Transport = "stdio"
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 100
	}
	if c.RateLimit.BurstSize == 0 {
		c.RateLimit.BurstSize = 50
	}

	if c.Audit.ExportBatchSize == 0 {
		c.Audit.ExportBatchSize = 100
	}
	if c.Audit.ExportIntervalSecs == 0 {
		c.Audit.ExportIntervalSecs = 1
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "mcp-guard"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1
	}
}
