/**
 * @description
 * This file provides the authentication middleware for the API. Requests
 * carry an HS256-signed bearer token whose subject is the caller's account
 * id; the middleware validates the signature, parses the subject and places
 * the caller id on the request context for the handlers.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token parsing and signature validation.
 */
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const callerIDKey contextKey = "callerAccountID"

// AuthMiddleware validates the bearer token and injects the caller's account
// id into the request context. Requests without a valid token are rejected
// with 401 before reaching any handler.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				writeError(w, http.StatusUnauthorized, "token has no subject")
				return
			}
			callerID, err := strconv.ParseInt(subject, 10, 64)
			if err != nil || callerID <= 0 {
				writeError(w, http.StatusUnauthorized, "token subject is not an account id")
				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey, callerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCallerID extracts the authenticated caller's account id from the
// request context.
func GetCallerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(callerIDKey).(int64)
	return id, ok
}
