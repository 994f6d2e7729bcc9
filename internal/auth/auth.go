package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dreamware/designsync/internal/apperr"
)

// Rejection reasons written in the 401 body.
const (
	ReasonRequired = "authentication required"
	ReasonInvalid  = "invalid credential"
)

var (
	// ErrMissingCredential means the handshake carried no token at all.
	ErrMissingCredential = errors.New("credential missing")

	// ErrInvalidCredential covers malformed tokens, bad signatures, the wrong
	// algorithm and a missing userId claim.
	ErrInvalidCredential = errors.New("credential invalid")

	// ErrExpiredCredential means the token was well formed but past its exp.
	ErrExpiredCredential = errors.New("credential expired")
)

// Claims is the token payload. Only userId is required beyond exp.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Identity is the authenticated principal bound to a session.
type Identity struct {
	ExpiresAt time.Time
	UserID    string
}

// Authenticator verifies HS256 bearer tokens.
// Thread-safe: immutable after construction.
type Authenticator struct {
	clock  clock.Clock
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator returns an Authenticator for the shared secret.
// A nil clk uses the wall clock.
func NewAuthenticator(secret []byte, clk clock.Clock) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: secret is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	a := &Authenticator{clock: clk, secret: secret}
	a.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clk.Now),
	)
	return a, nil
}

// Authenticate verifies rawToken and returns the identity it carries.
//
// Returns:
//   - ErrMissingCredential for an empty token
//   - ErrExpiredCredential for an expired token
//   - ErrInvalidCredential for everything else that fails verification
//
// All errors are classified apperr.KindAuthentication.
func (a *Authenticator) Authenticate(rawToken string) (Identity, error) {
	if rawToken == "" {
		return Identity{}, reject(ErrMissingCredential, nil)
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, reject(ErrExpiredCredential, err)
	case err != nil:
		return Identity{}, reject(ErrInvalidCredential, err)
	case claims.UserID == "":
		return Identity{}, reject(ErrInvalidCredential, errors.New("userId claim missing"))
	}

	id := Identity{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

func reject(sentinel, cause error) error {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %v", sentinel, cause)
	}
	return &apperr.Error{Kind: apperr.KindAuthentication, Op: "authenticate", Msg: Reason(sentinel), Err: err}
}

// Reason maps an authentication error to the client-visible rejection text.
func Reason(err error) string {
	if errors.Is(err, ErrMissingCredential) {
		return ReasonRequired
	}
	return ReasonInvalid
}

// TokenFromRequest extracts the bearer credential from the Authorization
// header, falling back to the token query parameter because browsers cannot
// set headers on a WebSocket upgrade.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Issuer mints tokens with the same secret. Used by the dev CLI and tests.
type Issuer struct {
	clock  clock.Clock
	secret []byte
}

// NewIssuer returns an Issuer. A nil clk uses the wall clock.
func NewIssuer(secret []byte, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{clock: clk, secret: secret}
}

// Issue returns a signed token for userID valid for ttl.
func (i *Issuer) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: userID is required")
	}
	now := i.clock.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
