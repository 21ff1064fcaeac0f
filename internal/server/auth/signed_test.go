package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce  sync.Once
	rsaKey   *rsa.PrivateKey
	otherKey *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		if rsaKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if otherKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return rsaKey, otherKey
}

type testJWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksServer struct {
	*httptest.Server
	hits atomic.Int32
	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
	fail atomic.Bool
}

func newJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: keys}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		if s.fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}

		s.mu.Lock()
		set := struct {
			Keys []testJWK `json:"keys"`
		}{Keys: []testJWK{}}
		for kid, pk := range s.keys {
			set.Keys = append(set.Keys, testJWK{
				Kty: "RSA", Kid: kid, Use: "sig", Alg: "RS256",
				N: base64.RawURLEncoding.EncodeToString(pk.N.Bytes()),
				E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pk.E)).Bytes()),
			})
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKey(kid string, pk *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = pk
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(issuer string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":              "u1",
		"iss":              issuer,
		"exp":              time.Now().Add(time.Hour).Unix(),
		"custom:tenant_db": "tn_u1_acme_labs",
	}
}

func TestSignedTokenValidator_Valid(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL}, nil)

	p, err := v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "tn_u1_acme_labs", p.TenantBinding)
	assert.Equal(t, srv.URL, p.Claims["iss"])

	// cached key set: no second fetch
	_, err = v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestSignedTokenValidator_DefaultTenantFallback(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL, DefaultTenantDB: "tn_default"}, nil)

	claims := validClaims(srv.URL)
	delete(claims, "custom:tenant_db")

	p, err := v.Validate(context.Background(), signRS256(t, key, "k1", claims))
	require.NoError(t, err)
	assert.Equal(t, "tn_default", p.TenantBinding)
}

func TestSignedTokenValidator_CustomTenantClaim(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL, TenantClaim: "tenant"}, nil)

	claims := validClaims(srv.URL)
	claims["tenant"] = "tn_other"

	p, err := v.Validate(context.Background(), signRS256(t, key, "k1", claims))
	require.NoError(t, err)
	assert.Equal(t, "tn_other", p.TenantBinding)
}

func TestSignedTokenValidator_Failures(t *testing.T) {
	key, other := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL}, nil)

	expired := validClaims(srv.URL)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := validClaims(srv.URL)
	wrongIssuer["iss"] = "https://evil.example"

	noExp := validClaims(srv.URL)
	delete(noExp, "exp")

	noSub := validClaims(srv.URL)
	delete(noSub, "sub")

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(srv.URL)).SignedString([]byte("k"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  common.Kind
	}{
		{name: "expired", token: signRS256(t, key, "k1", expired), want: common.KindExpired},
		{name: "wrong key", token: signRS256(t, other, "k1", validClaims(srv.URL)), want: common.KindSignatureInvalid},
		{name: "unknown kid", token: signRS256(t, key, "k9", validClaims(srv.URL)), want: common.KindSignatureInvalid},
		{name: "wrong issuer", token: signRS256(t, key, "k1", wrongIssuer), want: common.KindSignatureInvalid},
		{name: "hmac algorithm", token: hs, want: common.KindSignatureInvalid},
		{name: "garbage", token: "not-a-token", want: common.KindMalformedCredential},
		{name: "missing exp", token: signRS256(t, key, "k1", noExp), want: common.KindMalformedCredential},
		{name: "missing sub", token: signRS256(t, key, "k1", noSub), want: common.KindMalformedCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Validate(context.Background(), tt.token)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Equal(t, tt.want, common.KindOf(err))
		})
	}
}

func TestSignedTokenValidator_RefreshesOnUnknownKid(t *testing.T) {
	key, other := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL}, nil)

	_, err := v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	require.NoError(t, err)

	// key rotation at the issuer
	srv.setKey("k2", &other.PublicKey)

	p, err := v.Validate(context.Background(), signRS256(t, other, "k2", validClaims(srv.URL)))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestSignedTokenValidator_ConcurrentFirstUse(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL}, nil)
	tok := signRS256(t, key, "k1", validClaims(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Validate(context.Background(), tok)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, srv.hits.Load(), int32(16))
	assert.GreaterOrEqual(t, srv.hits.Load(), int32(1))
}

func TestSignedTokenValidator_KeySetUnavailable(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	srv.fail.Store(true)
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL, MinRefreshInterval: time.Millisecond}, nil)
	t.Cleanup(v.Close)

	_, err := v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	assert.ErrorIs(t, err, common.ErrKeySetUnavailable)

	// recovers once the endpoint is back
	srv.fail.Store(false)
	_, err = v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	assert.NoError(t, err)
}

func TestSignedTokenValidator_UnknownKidRefreshIsThrottled(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL, MinRefreshInterval: time.Hour}, nil)
	t.Cleanup(v.Close)

	start := time.Now()
	for i := 0; i < 50; i++ {
		_, err := v.Validate(context.Background(), signRS256(t, key, fmt.Sprintf("rand-%d", i), validClaims(srv.URL)))
		assert.Equal(t, common.KindSignatureInvalid, common.KindOf(err))
	}
	assert.Less(t, time.Since(start), 5*time.Second, "throttled lookups must not wait for a refresh slot")

	// first download plus a single unknown-kid refresh
	assert.Equal(t, int32(2), srv.hits.Load())

	// cached keys keep working while refreshes are throttled
	p, err := v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestSignedTokenValidator_LeavesClientUntouched(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	client := &http.Client{}
	v := NewSignedTokenValidator(SignedConfig{Issuer: srv.URL, FetchTimeout: 2 * time.Second}, client)
	t.Cleanup(v.Close)

	_, err := v.Validate(context.Background(), signRS256(t, key, "k1", validClaims(srv.URL)))
	require.NoError(t, err)
	assert.Zero(t, client.Timeout)
}

func TestSignedTokenValidator_ExplicitJWKSURL(t *testing.T) {
	key, _ := testKeys(t)
	srv := newJWKSServer(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	v := NewSignedTokenValidator(SignedConfig{
		Issuer:  "https://issuer.example",
		JWKSURL: srv.URL + "/.well-known/jwks.json",
	}, nil)

	p, err := v.Validate(context.Background(), signRS256(t, key, "k1", validClaims("https://issuer.example")))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
}

func TestSignedTokenValidator_MissingIssuer(t *testing.T) {
	v := NewSignedTokenValidator(SignedConfig{}, nil)

	for i := 0; i < 3; i++ {
		_, err := v.Validate(context.Background(), "anything")
		assert.ErrorIs(t, err, common.ErrInitialization)
		assert.Equal(t, common.KindInitialization, common.KindOf(err))
	}
	assert.ErrorIs(t, v.EnsureInitialized(), common.ErrInitialization)
}
