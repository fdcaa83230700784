package http

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const ActorContextKey = ContextKey("adminActor")

// AuthConfig holds the admin credentials. Either may be empty; with both empty every request is rejected.
type AuthConfig struct {
	JWTSecret  string
	APIKeyHash string // hex sha3-256 of the API key
}

// ActorFromContext returns who authenticated the request.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ActorContextKey).(string)
	return actor
}

// AdminAuthMiddleware accepts "Bearer <HS256 JWT>" or "ApiKey <key>".
func AdminAuthMiddleware(cfg AuthConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			scheme, credential, found := strings.Cut(authHeader, " ")
			if !found || credential == "" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			var actor string
			var ok bool
			switch scheme {
			case "Bearer":
				actor, ok = validateJWT(cfg.JWTSecret, credential)
			case "ApiKey":
				actor, ok = "api-key", validateAPIKey(cfg.APIKeyHash, credential)
			default:
				logger.WarnContext(r.Context(), "Unsupported Authorization scheme", "scheme", scheme)
				writeError(w, http.StatusUnauthorized, "Unsupported Authorization scheme")
				return
			}
			if !ok {
				logger.WarnContext(r.Context(), "Admin credential rejected", "scheme", scheme)
				writeError(w, http.StatusUnauthorized, "Invalid or expired credentials")
				return
			}

			ctx := context.WithValue(r.Context(), ActorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateJWT(secret, tokenString string) (string, bool) {
	if secret == "" {
		return "", false
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", false
	}
	if claims.Subject == "" {
		return "operator", true
	}
	return claims.Subject, true
}

func validateAPIKey(expectedHash, key string) bool {
	if expectedHash == "" {
		return false
	}
	got := HashAPIKey(key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(expectedHash))) == 1
}

// HashAPIKey returns the value to configure as the API key hash. The hash-api-key command prints it.
func HashAPIKey(key string) string {
	hash := sha3.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
