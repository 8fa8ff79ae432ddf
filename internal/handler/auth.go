package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
)

// Claims is the bearer token payload issued by the identity provider.
type Claims struct {
	Email  string `json:"email"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns an Authenticator for the shared secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Parse validates a token and returns the user it identifies.
func (a *Authenticator) Parse(token string) (model.User, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return model.User{}, err
	}
	if claims.Subject == "" {
		return model.User{}, errors.New("token has no subject")
	}
	return model.User{ID: claims.Subject, Email: claims.Email, Locale: claims.Locale}, nil
}

// Issue signs a token for user valid for ttl.
func (a *Authenticator) Issue(user model.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:  user.Email,
		Locale: user.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type userKey struct{}

// UserFrom returns the authenticated user, or the zero User on public routes.
func UserFrom(ctx context.Context) model.User {
	u, _ := ctx.Value(userKey{}).(model.User)
	return u
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller in the request context.
func RequireAuth(auth *Authenticator, tr Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				unauthorized(w, r, tr, "missing bearer token")
				return
			}

			user, err := auth.Parse(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, r, tr, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, tr Translator, details string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="activities"`)
	writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{
		Error:   "unauthorized",
		Message: tr.T(r.Header.Get("Accept-Language"), "error.unauthorized", nil),
		Details: details,
	})
}
