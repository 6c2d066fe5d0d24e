package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Mesh/internal/domain"
)

const testSecret = "test-secret"

func futureClaims() IdentityClaims {
	return IdentityClaims{
		UserID:   "alice",
		Username: "Alice",
		Exp:      time.Now().Add(time.Hour).UnixMilli(),
	}
}

func TestIdentityToken_RoundTrip(t *testing.T) {
	token := MintIdentityToken(testSecret, futureClaims())

	claims, err := ParseIdentityToken(testSecret, token, time.Now())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "alice" || claims.Username != "Alice" {
		t.Fatalf("claims lost: %+v", claims)
	}
}

// flipChar swaps one character of the claims part for another base64url
// character, keeping the token well-formed but breaking the signature.
func flipChar(token string) string {
	b := []byte(token)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}

func TestIdentityToken_Rejections(t *testing.T) {
	good := MintIdentityToken(testSecret, futureClaims())

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"no dot", "garbage", ErrTokenMalformed},
		{"wrong secret", MintIdentityToken("other", futureClaims()), ErrTokenBadSig},
		{"tampered body", flipChar(good), ErrTokenBadSig},
		{"expired", MintIdentityToken(testSecret, IdentityClaims{
			UserID: "alice", Exp: time.Now().Add(-time.Minute).UnixMilli(),
		}), ErrTokenExpired},
	}
	for _, tc := range cases {
		if _, err := ParseIdentityToken(testSecret, tc.token, time.Now()); err != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})

	token := MintIdentityToken(testSecret, futureClaims())

	// Query param path, the one the WS upgrade uses.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/p?token="+token, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("query token: %d %q", w.Code, w.Body.String())
	}

	// Bearer header path.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer token: %d", w.Code)
	}

	// Missing and broken tokens are turned away.
	for _, raw := range []string{"/p", "/p?token=" + strings.Repeat("x", 20)} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, raw, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", raw, w.Code)
		}
	}
}

func TestAuthMiddleware_IdentityConstraints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// A correctly signed token still fails when the identity inside breaks
	// the user constraints.
	for _, claims := range []IdentityClaims{
		{UserID: "alice", Username: strings.Repeat("n", domain.MaxUsernameLen+1)},
		{UserID: "alice", Username: ""},
		{UserID: strings.Repeat("u", domain.MaxUserIDLen+1), Username: "Alice"},
	} {
		claims.Exp = time.Now().Add(time.Hour).UnixMilli()
		token := MintIdentityToken(testSecret, claims)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+token, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("claims %+v: expected 401, got %d", claims, w.Code)
		}
	}
}
