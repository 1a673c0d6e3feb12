package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/mcpguard/gateway/internal/keyset"
)

// PKCEHandler implements the /oauth/authorize and /oauth/callback endpoints.
type PKCEHandler struct {
	cfg      OAuthConfig
	oauth    *oauth2.Config
	states   *keyset.PKCEStore
	cache    *keyset.IntrospectionCache
	provider *DelegatedAuthProvider

	// callbackGroup deduplicates concurrent /callback requests carrying the
	// same code so a retried redirect doesn't redeem it twice.
	callbackGroup singleflight.Group
}

// NewPKCEHandler builds the handler. oauthCfg.AuthorizationURL/TokenURL feed
// the golang.org/x/oauth2 client directly. cache is the same introspection
// cache the provider consults, warmed here so the access token minted by
// the exchange is already resolved on the very next bearer request.
func NewPKCEHandler(cfg OAuthConfig, states *keyset.PKCEStore, cache *keyset.IntrospectionCache, provider *DelegatedAuthProvider) *PKCEHandler {
	return &PKCEHandler{
		cfg:      cfg,
		provider: provider,
		states:   states,
		cache:    cache,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationURL,
				TokenURL: cfg.TokenURL,
			},
		},
	}
}

func highEntropyToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Authorize handles GET /oauth/authorize?redirect_uri=&state=. The caller's
// own `state` parameter, if any, is not trusted as the PKCE state value —
// the gateway always mints its own high-entropy state and binds it to the
// client IP.
func (h *PKCEHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	verifier, err := highEntropyToken()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	state, err := highEntropyToken()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	redirectURI := r.URL.Query().Get("redirect_uri")
	clientIP := clientIPFromRequest(r)
	h.states.Put(state, verifier, redirectURI, clientIP)

	challenge := s256Challenge(verifier)
	authURL := h.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callbackResult is what a single-flighted callback resolution produces.
type callbackResult struct {
	redirectURI string
	sessionTok  string
}

// Callback handles GET /oauth/callback?code=&state=.
func (h *PKCEHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	clientIP := clientIPFromRequest(r)

	v, err, _ := h.callbackGroup.Do(state+"|"+code, func() (any, error) {
		return h.resolveCallback(r.Context(), code, state, clientIP)
	})
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid authorization callback")
		return
	}
	result := v.(callbackResult)

	if result.redirectURI != "" {
		http.Redirect(w, r, result.redirectURI+"#session_token="+result.sessionTok, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_token": result.sessionTok})
}

func (h *PKCEHandler) resolveCallback(ctx context.Context, code, state, clientIP string) (callbackResult, error) {
	rec, err := h.states.Take(state, clientIP)
	if err != nil {
		return callbackResult{}, err
	}

	tok, err := h.oauth.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", rec.Verifier),
	)
	if err != nil {
		return callbackResult{}, err
	}

	id, gerr := h.provider.Authenticate(ctx, tok.AccessToken)
	if gerr != nil {
		return callbackResult{}, gerr
	}
	h.cache.Put(TokenHash(tok.AccessToken), id, tok.Expiry)

	return callbackResult{redirectURI: rec.RedirectURI, sessionTok: tok.AccessToken}, nil
}

func clientIPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "error_id": uuid.New().String()})
}
