package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// AthleteIDKey is the context key for the authenticated athlete id
	AthleteIDKey ContextKey = "athlete_id"
	// AthleteNameKey is the context key for the athlete's display name
	AthleteNameKey ContextKey = "athlete_name"
)

// SessionTTL is how long an issued session token stays valid
const SessionTTL = 30 * 24 * time.Hour

// Claims are the session claims carried by an athlete's bearer token
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for an athlete. The token is handed to the
// frontend after the Strava OAuth callback and replaces any server-side
// session state.
func IssueToken(secret string, athleteID int64, name string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET not set")
	}

	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(athleteID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateToken checks a session token's signature and expiry and returns the
// athlete id and display name it carries.
func ValidateToken(secret, tokenString string) (int64, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return 0, "", fmt.Errorf("invalid token")
	}

	athleteID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid subject: %w", err)
	}
	return athleteID, claims.Name, nil
}

// publicPaths are API routes reachable without a session
var publicPaths = map[string]bool{
	"/api/ping":          true,
	"/api/auth/url":      true,
	"/api/auth/callback": true,
}

// Middleware returns an HTTP middleware that validates the bearer session
// token and puts the athlete's identity into the request context.
func Middleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for non-API routes (static files)
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "Unauthorized: missing bearer token", http.StatusUnauthorized)
			return
		}

		athleteID, name, err := ValidateToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Printf("Auth failed: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, AthleteIDKey, athleteID)
		ctx = context.WithValue(ctx, AthleteNameKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAthleteIDFromContext retrieves the athlete id from the context
func GetAthleteIDFromContext(ctx context.Context) (int64, bool) {
	athleteID, ok := ctx.Value(AthleteIDKey).(int64)
	return athleteID, ok
}

// GetAthleteNameFromContext retrieves the athlete display name from the context
func GetAthleteNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(AthleteNameKey).(string)
	return name, ok
}
