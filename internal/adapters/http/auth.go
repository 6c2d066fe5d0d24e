package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
)

// Identity tokens are minted by the account service that owns users and
// friendships; this server only verifies them. Shape: b64url(claims JSON)
// "." b64url(HMAC-SHA256 over the claims part).

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenBadSig    = errors.New("token signature mismatch")
	ErrTokenExpired   = errors.New("token expired")
)

type IdentityClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Exp      int64  `json:"exp"`
}

func sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func MintIdentityToken(secret string, claims IdentityClaims) string {
	payload, _ := json.Marshal(claims)
	body := base64.RawURLEncoding.EncodeToString(payload)
	sig := base64.RawURLEncoding.EncodeToString(sign(secret, payload))
	return body + "." + sig
}

func ParseIdentityToken(secret, token string, now time.Time) (IdentityClaims, error) {
	var claims IdentityClaims

	body, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return claims, ErrTokenMalformed
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return claims, ErrTokenMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return claims, ErrTokenMalformed
	}
	if !hmac.Equal(sig, sign(secret, payload)) {
		return claims, ErrTokenBadSig
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, ErrTokenMalformed
	}
	if claims.UserID == "" {
		return claims, ErrTokenMalformed
	}
	if claims.Exp != 0 && now.UnixMilli() > claims.Exp {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

// AuthMiddleware resolves the caller's identity from a bearer token or the
// token query param (browsers cannot set headers on a WS upgrade).
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		claims, err := ParseIdentityToken(secret, token, time.Now())
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("auth rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, err := domain.NewUser(domain.UserID(claims.UserID), claims.Username)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("auth rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user_id", string(user.ID))
		c.Set("username", user.Username)
		c.Next()
	}
}
