// Package gatewayerr defines the gateway's closed error taxonomy and the
// precedence rule used to pick one error out of several rejecting
// authentication providers.
package gatewayerr

// Kind is a member of the closed error taxonomy. Every error the pipeline
// surfaces to the client or records in an audit event carries exactly one
// Kind.
type Kind string

// Authentication kinds.
const (
	MissingCredentials  Kind = "MissingCredentials"
	InvalidAPIKey       Kind = "InvalidApiKey"
	InvalidJWT          Kind = "InvalidJwt"
	TokenExpired        Kind = "TokenExpired"
	InvalidIssuer       Kind = "InvalidIssuer"
	InvalidAudience     Kind = "InvalidAudience"
	IntrospectionFailed Kind = "IntrospectionFailed"
	InvalidState        Kind = "InvalidState"
	CertHeaderNotTrusted Kind = "CertHeaderNotTrusted"
	NoProviderConfigured Kind = "NoProviderConfigured"
)

// Authorization kinds.
const (
	ToolNotAuthorized Kind = "ToolNotAuthorized"
)

// Rate-limit kinds.
const (
	RateLimited Kind = "RateLimited"
)

// Routing kinds.
const (
	NoRoute        Kind = "NoRoute"
	ServerNotFound Kind = "ServerNotFound"
)

// Transport kinds.
const (
	Timeout          Kind = "Timeout"
	ConnectionClosed Kind = "ConnectionClosed"
	ProcessExited    Kind = "ProcessExited"
	IOError          Kind = "IoError"
	InvalidJSON      Kind = "InvalidJson"
)

// Config kind — boundary, not core, kept for completeness of the taxonomy.
const (
	InvalidConfig Kind = "InvalidConfig"
)

// Error is a tagged gateway error: a Kind plus an optional human-unsafe
// detail that is never surfaced to the client, only logged/audited.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// New builds an Error of the given kind with an internal-only detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// authRank orders authentication-error kinds from least to most specific.
// MissingCredentials is intentionally absent — it never outranks another
// kind and is only chosen when nothing else was returned.
var authRank = map[Kind]int{
	InvalidAPIKey:        1,
	InvalidIssuer:        2,
	InvalidAudience:      2,
	IntrospectionFailed:  2,
	NoProviderConfigured: 2,
	InvalidJWT:           3,
	TokenExpired:         4,
}

// MostSpecific applies the error-selection policy: given every error
// returned by a rejecting bearer provider, return the most specific
// non-MissingCredentials one; TokenExpired outranks InvalidJwt outranks
// InvalidApiKey. If every error is MissingCredentials (or the slice is
// empty), MissingCredentials is returned.
func MostSpecific(errs []*Error) *Error {
	var best *Error
	bestRank := -1
	for _, e := range errs {
		if e == nil || e.Kind == MissingCredentials {
			continue
		}
		rank, known := authRank[e.Kind]
		if !known {
			rank = 1
		}
		if rank > bestRank {
			best = e
			bestRank = rank
		}
	}
	if best == nil {
		return New(MissingCredentials, "no credential presented")
	}
	return best
}
