package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

type authContextKey struct{}

// withAuth stashes a verified credential on ctx so handlers downstream of
// rateLimited don't re-parse the bearer token.
func withAuth(ctx context.Context, cred mdflow.AuthCredential) context.Context {
	return context.WithValue(ctx, authContextKey{}, cred)
}

// authFromContext retrieves the credential rateLimited verified, if any.
func authFromContext(ctx context.Context) (mdflow.AuthCredential, bool) {
	cred, ok := ctx.Value(authContextKey{}).(mdflow.AuthCredential)
	return cred, ok
}

// ErrInvalidToken is returned when the bearer token fails signature or
// claim validation.
var ErrInvalidToken = errors.New("mdflow-engine: invalid auth token")

// claims is the minimal shape the Engine expects from the external auth
// subsystem's signed token: the learner's business id plus the two
// entitlement flags the run loop gates _sys_pay/_sys_login buttons on.
type claims struct {
	Mobile bool `json:"mobile,omitempty"`
	Paid   bool `json:"paid,omitempty"`
	jwt.RegisteredClaims
}

// authenticator verifies the bearer token the external auth subsystem
// issues and adapts it into a mdflow.AuthCredential (§6.1: "Authentication
// is external; the Engine receives user_bid from the request context").
// An empty secret disables verification and falls back to the X-User-Bid
// header, for local development only.
type authenticator struct {
	secret []byte
}

func newAuthenticator(secret string) *authenticator {
	return &authenticator{secret: []byte(secret)}
}

func (a *authenticator) authenticate(r *http.Request) (mdflow.AuthCredential, error) {
	if len(a.secret) == 0 {
		return mdflow.AuthCredential{UserBID: r.Header.Get("X-User-Bid"), Mobile: true, Paid: true}, nil
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if strings.TrimSpace(token) == "" {
		return mdflow.AuthCredential{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return mdflow.AuthCredential{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return mdflow.AuthCredential{}, ErrInvalidToken
	}
	return mdflow.AuthCredential{UserBID: c.Subject, Mobile: c.Mobile, Paid: c.Paid}, nil
}
