package transport

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/internal/observability"
	"github.com/billtrack/bff/model"
)

// JWTAuthenticator returns middleware that verifies the dashboard caller's
// bearer token against the identity provider's published keys and attaches
// the resulting RequestContext. The raw token rides along in that context
// because the gateway replays it to the billing backend; this service never
// holds credentials of its own.
func JWTAuthenticator(cfg config.IdentityConfig, jwks *JWKSClient) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(err.Error()))
				return
			}

			token, err := parser.Parse(raw, jwks.Keyfunc)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(authFailureReason(err)))
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				WriteError(w, model.NewUnauthorizedError("Invalid token"))
				return
			}

			ctx := model.WithRequestContext(r.Context(), identityContext(r, claims, raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the raw token from the Authorization header. The
// error text is surfaced to the caller verbatim.
func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("Missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errors.New("Invalid authorization header format")
	}
	return auth[len(prefix):], nil
}

// identityContext maps the verified claims and per-request headers onto the
// RequestContext consumed by handlers and forwarded by the gateway.
func identityContext(r *http.Request, claims jwt.MapClaims, rawToken string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID:     claimString(claims, "sub"),
		Email:         claimString(claims, "email"),
		Roles:         claimStringSlice(claims, "roles"),
		Claims:        map[string]any(claims),
		Token:         rawToken,
		Timezone:      r.Header.Get("X-Timezone"),
		Locale:        r.Header.Get("Accept-Language"),
		CorrelationID: CorrelationIDFrom(r.Context()),
		TraceID:       observability.TraceIDFromContext(r.Context()),
	}
}

// authFailureReason translates a parse failure into the message returned in
// the 401 envelope, without leaking library internals to the browser.
func authFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "Token missing required claim"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Invalid token"
	}
	// Keyfunc failures surface as unverifiable tokens; distinguish the two
	// cases an operator can act on.
	s := err.Error()
	switch {
	case strings.Contains(s, "signing method"):
		return "Disallowed signing algorithm"
	case strings.Contains(s, "signing key") || strings.Contains(s, "kid"):
		return "Unknown signing key"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	}
	return "Invalid token"
}

func claimString(claims map[string]any, key string) string {
	if claims == nil {
		return ""
	}
	v, _ := claims[key].(string)
	return v
}

func claimStringSlice(claims map[string]any, key string) []string {
	if claims == nil {
		return nil
	}
	raw, ok := claims[key].([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// JWKSClient caches the identity provider's signing keys. A stale set is
// preferred over none when the provider is unreachable, so token
// verification keeps working through short provider outages.
type JWKSClient struct {
	url             string
	httpClient      *http.Client
	ttl             time.Duration
	refreshCooldown time.Duration

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// NewJWKSClient builds a client for the provider's JWKS endpoint. Cached
// keys are considered fresh for ttl; a non-empty cache is never refetched
// more often than the cooldown.
func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	return &JWKSClient{
		url:             url,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		ttl:             ttl,
		refreshCooldown: 5 * time.Minute,
		keys:            make(map[string]crypto.PublicKey),
	}
}

// Keyfunc resolves a token's kid header against the cached key set. It has
// the jwt.Keyfunc signature so the parser can call it directly.
func (c *JWKSClient) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token header missing kid")
	}
	return c.GetKey(kid)
}

// GetKey returns the public key for the given key ID, refreshing the cache
// from the provider when the entry is missing or stale.
func (c *JWKSClient) GetKey(kid string) (crypto.PublicKey, error) {
	if key, fresh := c.cached(kid); fresh {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		if key, _ := c.cached(kid); key != nil {
			slog.Warn("jwks: refresh failed, serving cached key", "kid", kid, "error", err)
			return key, nil
		}
		return nil, fmt.Errorf("jwks: refresh: %w", err)
	}

	if key, _ := c.cached(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("jwks: unknown signing key %q", kid)
}

// cached returns the key for kid, if any, and whether the cache as a whole
// is still within its TTL.
func (c *JWKSClient) cached(kid string) (crypto.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := c.keys[kid]
	return key, key != nil && time.Since(c.fetchedAt) <= c.ttl
}

func (c *JWKSClient) refresh() error {
	c.mu.RLock()
	cooling := len(c.keys) > 0 && time.Since(c.fetchedAt) < c.refreshCooldown
	c.mu.RUnlock()
	if cooling {
		return nil
	}

	resp, err := c.httpClient.Get(c.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("jwks: parse: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("jwks: skipping unusable key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// jwk is the subset of RFC 7517 key fields this service understands: RSA
// and the NIST curves.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := keyField("n", k.N)
		if err != nil {
			return nil, err
		}
		e, err := keyField("e", k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := keyField("x", k.X)
		if err != nil {
			return nil, err
		}
		y, err := keyField("y", k.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func keyField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("missing %s", name)
	}
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return b, nil
}
