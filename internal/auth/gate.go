package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenTTL = 72 * time.Hour

// ErrUnauthorized is matched by every credential failure.
var ErrUnauthorized = errors.New("user is not authorized")

// AuthError carries the reason a credential was rejected.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthorized: %s: %v", e.Reason, e.Err)
	}
	return "unauthorized: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnauthorized) match any AuthError.
func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

func unauthorized(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

// Claims is the token payload. userId is the only claim handlers rely on.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// Identity is the verified caller.
type Identity struct {
	UserID    int64
	ExpiresAt time.Time
}

// Gate issues and verifies HS256 bearer tokens.
type Gate struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewGate creates a Gate with the provided secret.
func NewGate(secret string, ttl time.Duration) *Gate {
	if secret == "" {
		panic("auth gate requires non-empty secret")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Gate{
		secret: []byte(secret),
		issuer: "sugartrack",
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for issuing and verifying.
func (g *Gate) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// TTL returns the default token lifetime.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// IssueToken signs a token carrying userID. A zero ttl uses the gate default.
func (g *Gate) IssueToken(userID int64, ttl time.Duration) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("user id required")
	}
	if ttl == 0 {
		ttl = g.ttl
	}
	now := g.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    g.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks a credential taken from an Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func (g *Gate) Verify(credential string) (Identity, error) {
	token := BearerToken(credential)
	if token == "" {
		return Identity{}, unauthorized("missing credential", nil)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, unauthorized("token expired", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Identity{}, unauthorized("malformed token", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, unauthorized("invalid signature", err)
		default:
			return Identity{}, unauthorized("invalid token", err)
		}
	}
	if !parsed.Valid {
		return Identity{}, unauthorized("invalid token", nil)
	}
	if claims.UserID <= 0 {
		return Identity{}, unauthorized("missing userId claim", nil)
	}

	identity := Identity{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// BearerToken strips an optional "Bearer " prefix.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
