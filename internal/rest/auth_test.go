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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/internal/config"
	"github.com/jeremyhahn/go-sharevault/internal/testutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  "svc-backup",
		"iss":  "sharevault-test",
		"aud":  []string{"sharevault"},
		"exp":  time.Now().Add(time.Hour).Unix(),
		"name": "Backup Service",
	}
}

func bearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestJWTAuthenticator_HMAC(t *testing.T) {
	a, err := NewJWTAuthenticator(&JWTConfig{
		Secret:   testSecret,
		Issuer:   "sharevault-test",
		Audience: []string{"sharevault", "other"},
	})
	require.NoError(t, err)
	assert.Equal(t, config.AuthJWT, a.Name())

	id, err := a.AuthenticateHTTP(bearer(signHS256(t, validClaims())))
	require.NoError(t, err)
	assert.Equal(t, "svc-backup", id.Subject)
	assert.Equal(t, "jwt", id.Attributes["auth_method"])
	assert.Equal(t, "Backup Service", id.Attributes["display_name"])

	mutate := func(f func(jwt.MapClaims)) string {
		c := validClaims()
		f(c)
		return signHS256(t, c)
	}
	tests := []struct {
		name  string
		token string
	}{
		{"expired", mutate(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() })},
		{"no expiry", mutate(func(c jwt.MapClaims) { delete(c, "exp") })},
		{"wrong issuer", mutate(func(c jwt.MapClaims) { c["iss"] = "elsewhere" })},
		{"wrong audience", mutate(func(c jwt.MapClaims) { c["aud"] = "elsewhere" })},
		{"no subject", mutate(func(c jwt.MapClaims) { delete(c, "sub") })},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.AuthenticateHTTP(bearer(tt.token))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other secret"))
		require.NoError(t, err)
		_, err = a.AuthenticateHTTP(bearer(tok))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := a.AuthenticateHTTP(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestJWTAuthenticator_RejectsAlgorithmSwitch(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	a, err := NewJWTAuthenticator(&JWTConfig{PublicKey: &priv.PublicKey})
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims()).SignedString(priv)
	require.NoError(t, err)
	_, err = a.AuthenticateHTTP(bearer(tok))
	require.NoError(t, err)

	_, err = a.AuthenticateHTTP(bearer(signHS256(t, validClaims())))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTAuthenticator_Rejects(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	for name, cfg := range map[string]*JWTConfig{
		"nil":      nil,
		"no key":   {},
		"both set": {Secret: testSecret, PublicKey: &priv.PublicKey},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewJWTAuthenticator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewAuthenticator(t *testing.T) {
	a, err := NewAuthenticator(&config.AuthConfig{Enabled: false, Type: config.AuthJWT})
	require.NoError(t, err)
	assert.IsType(t, NoopAuthenticator{}, a)

	id, err := a.AuthenticateHTTP(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "anonymous", id.Subject)

	_, err = NewAuthenticator(&config.AuthConfig{Enabled: true, Type: "ldap"})
	assert.Error(t, err)

	a, err = NewAuthenticator(&config.AuthConfig{
		Enabled: true,
		Type:    config.AuthJWT,
		JWT:     config.JWTConfig{Secret: string(testSecret)},
	})
	require.NoError(t, err)
	_, err = a.AuthenticateHTTP(bearer(signHS256(t, validClaims())))
	assert.NoError(t, err)

	t.Run("public key file", func(t *testing.T) {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		pemBytes, err := testutil.PublicKeyPEM(priv)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "jwt.pub")
		require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

		a, err := NewAuthenticator(&config.AuthConfig{
			Enabled: true,
			Type:    config.AuthJWT,
			JWT:     config.JWTConfig{PublicKeyFile: path, Algorithms: []string{"ES256"}},
		})
		require.NoError(t, err)

		tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims()).SignedString(priv)
		require.NoError(t, err)
		_, err = a.AuthenticateHTTP(bearer(tok))
		assert.NoError(t, err)
	})

	t.Run("missing public key file", func(t *testing.T) {
		_, err := NewAuthenticator(&config.AuthConfig{
			Enabled: true,
			Type:    config.AuthJWT,
			JWT:     config.JWTConfig{PublicKeyFile: filepath.Join(t.TempDir(), "absent.pem")},
		})
		assert.Error(t, err)
	})
}
