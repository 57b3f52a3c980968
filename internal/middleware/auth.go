package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/songforge/creditd/internal/contextkeys"
	"github.com/songforge/creditd/internal/handler"
)

// Auth creates a JWT verification middleware. Tokens are issued by the
// identity service; this middleware only verifies the signature and
// lifts the claims into the request context.
func Auth(jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "no token provided"})
				return
			}

			claims, err := verify(token, jwtSecret)
			if err != nil {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.UserID, claims.sub)
			ctx = context.WithValue(ctx, contextkeys.UserEmail, claims.email)
			ctx = context.WithValue(ctx, contextkeys.UserRole, claims.role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth lifts claims into the context when a valid token is
// present and lets the request through anonymously otherwise. Used by
// voucher validation, where anonymous browsing may preview a discount.
func OptionalAuth(jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if claims, err := verify(token, jwtSecret); err == nil {
					ctx := context.WithValue(r.Context(), contextkeys.UserID, claims.sub)
					ctx = context.WithValue(ctx, contextkeys.UserEmail, claims.email)
					ctx = context.WithValue(ctx, contextkeys.UserRole, claims.role)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenClaims struct {
	sub   string
	email string
	role  string
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func verify(tokenString, secret string) (*tokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	claims := &tokenClaims{}
	claims.sub, _ = mapClaims["sub"].(string)
	claims.email, _ = mapClaims["email"].(string)
	claims.role, _ = mapClaims["role"].(string)
	if claims.sub == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return claims, nil
}
