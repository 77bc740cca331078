// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-sharevault/internal/config"
)

// Identity is the authenticated caller.
type Identity struct {
	// Subject identifies the caller (user id, service name).
	Subject string

	// Claims holds the verified token claims, if any.
	Claims map[string]any

	// Attributes holds metadata about how the caller authenticated.
	Attributes map[string]string
}

// Authenticator authenticates an HTTP request.
type Authenticator interface {
	AuthenticateHTTP(r *http.Request) (*Identity, error)
	Name() string
}

type identityKey struct{}

// GetIdentity returns the identity stored by the authentication middleware.
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// NoopAuthenticator accepts every request as "anonymous".
type NoopAuthenticator struct{}

func (NoopAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	return &Identity{
		Subject:    "anonymous",
		Claims:     map[string]any{},
		Attributes: map[string]string{"auth_method": "noop", "remote_addr": r.RemoteAddr},
	}, nil
}

func (NoopAuthenticator) Name() string { return config.AuthNoop }

var (
	ErrMissingToken = errors.New("rest: no bearer token")
	ErrInvalidToken = errors.New("rest: invalid token")
)

// JWTConfig configures a JWTAuthenticator. Exactly one of Secret and
// PublicKey is required.
type JWTConfig struct {
	// Secret verifies HS256/HS384/HS512 tokens.
	Secret []byte

	// PublicKey verifies RS*, PS*, ES* or EdDSA tokens.
	PublicKey crypto.PublicKey

	// Issuer, when set, must equal the iss claim.
	Issuer string

	// Audience, when set, must intersect the aud claim.
	Audience []string

	// Algorithms restricts the accepted alg header values. Empty selects
	// the family matching the key.
	Algorithms []string

	// HeaderName defaults to Authorization.
	HeaderName string
}

// JWTAuthenticator verifies bearer tokens.
type JWTAuthenticator struct {
	key        any
	parser     *jwt.Parser
	issuer     string
	audience   []string
	headerName string
}

// NewJWTAuthenticator validates cfg and returns an authenticator.
func NewJWTAuthenticator(cfg *JWTConfig) (*JWTAuthenticator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rest: jwt config is required")
	}
	var key any
	switch {
	case len(cfg.Secret) > 0 && cfg.PublicKey != nil:
		return nil, fmt.Errorf("rest: jwt secret and public key are mutually exclusive")
	case len(cfg.Secret) > 0:
		key = cfg.Secret
	case cfg.PublicKey != nil:
		key = cfg.PublicKey
	default:
		return nil, fmt.Errorf("rest: jwt secret or public key is required")
	}

	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = defaultAlgorithms(key)
	}
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "Authorization"
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(algs), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &JWTAuthenticator{
		key:        key,
		parser:     jwt.NewParser(opts...),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		headerName: headerName,
	}, nil
}

func defaultAlgorithms(key any) []string {
	if _, ok := key.([]byte); ok {
		return []string{"HS256", "HS384", "HS512"}
	}
	return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
}

// AuthenticateHTTP verifies the bearer token of r.
func (a *JWTAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	header := r.Header.Get(a.headerName)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		token = header
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	id, err := a.validate(token)
	if err != nil {
		return nil, err
	}
	id.Attributes["remote_addr"] = r.RemoteAddr
	return id, nil
}

func (a *JWTAuthenticator) validate(raw string) (*Identity, error) {
	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if len(a.audience) > 0 {
		aud, err := claims.GetAudience()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		if !slices.ContainsFunc(aud, func(s string) bool { return slices.Contains(a.audience, s) }) {
			return nil, fmt.Errorf("%w: audience %v not accepted", ErrInvalidToken, []string(aud))
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	id := &Identity{
		Subject:    sub,
		Claims:     make(map[string]any, len(claims)),
		Attributes: map[string]string{"auth_method": "jwt"},
	}
	for k, v := range claims {
		id.Claims[k] = v
	}
	if name, ok := claims["name"].(string); ok {
		id.Attributes["display_name"] = name
	}
	return id, nil
}

func (a *JWTAuthenticator) Name() string { return config.AuthJWT }

// NewAuthenticator builds the authenticator selected by cfg. A disabled
// section yields a NoopAuthenticator.
func NewAuthenticator(cfg *config.AuthConfig) (Authenticator, error) {
	if cfg == nil || !cfg.Enabled || cfg.Type == "" || cfg.Type == config.AuthNoop {
		return NoopAuthenticator{}, nil
	}
	if cfg.Type != config.AuthJWT {
		return nil, fmt.Errorf("rest: unknown auth type %q", cfg.Type)
	}

	jc := &JWTConfig{
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Algorithms: cfg.JWT.Algorithms,
	}
	if cfg.JWT.Secret != "" {
		jc.Secret = []byte(cfg.JWT.Secret)
	} else {
		pub, err := loadPublicKey(cfg.JWT.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		jc.PublicKey = pub
	}
	return NewJWTAuthenticator(jc)
}

// loadPublicKey reads an RSA, ECDSA or Ed25519 public key in PEM form.
func loadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rest: read jwt public key: %w", err)
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("rest: %s holds no supported public key", path)
}
