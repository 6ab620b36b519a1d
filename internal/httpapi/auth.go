package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload. LearnerID identifies the caller.
type Claims struct {
	LearnerID int64 `json:"learner_id"`
	jwt.RegisteredClaims
}

type learnerKey struct{}

// LearnerFrom returns the authenticated learner id stored by the auth
// middleware.
func LearnerFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(learnerKey{}).(int64)
	return id, ok
}

// WithLearner returns ctx carrying learnerID.
func WithLearner(ctx context.Context, learnerID int64) context.Context {
	return context.WithValue(ctx, learnerKey{}, learnerID)
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an authenticator. An empty issuer accepts any
// issuer claim.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for learnerID valid for ttl from now.
func (a *Authenticator) Issue(learnerID int64, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		LearnerID: learnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   fmt.Sprintf("%d", learnerID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token and returns the learner it names.
func (a *Authenticator) Verify(token string) (int64, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return 0, err
	}
	if !parsed.Valid || claims.LearnerID <= 0 {
		return 0, errors.New("token has no learner")
	}
	return claims.LearnerID, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// learner id in the request context. Websocket upgrades may pass the token
// in the access_token query parameter, since browsers cannot set headers
// on them.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authorization required"})
			return
		}

		learnerID, err := a.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token has expired"
			}
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: msg})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithLearner(r.Context(), learnerID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}
