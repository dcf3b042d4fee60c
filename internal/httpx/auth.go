package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type ctxKey int

const subjectKey ctxKey = iota

// Authenticator checks HS256 bearer tokens issued by the platform's auth
// service and puts the subject (platform user id) on the request context.
type Authenticator struct {
	Responder
	secret []byte
}

func NewAuthenticator(secret string, rs Responder) *Authenticator {
	return &Authenticator{Responder: rs, secret: []byte(secret)}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := a.subject(r.Header.Get("Authorization"))
		if err != nil {
			a.Logger.Debug("rejected bearer token", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			a.fail(w, r, apperr.New(apperr.CodeUnauthorized, "", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, sub)))
	})
}

func (a *Authenticator) subject(header string) (string, error) {
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return "", errors.New("missing bearer token")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// Sign issues a token for sub. Production tokens come from the auth service;
// this serves local tooling and tests.
func (a *Authenticator) Sign(sub string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Subject returns the authenticated user id, or "" outside the auth middleware.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}
