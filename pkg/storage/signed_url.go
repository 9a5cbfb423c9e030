package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

const tokenIssuer = "lesson-scheduler"

// DownloadClaims identify a stored export.
type DownloadClaims struct {
	RunID     string
	Path      string
	Format    string
	ExpiresAt time.Time
}

type downloadClaims struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	jwt.RegisteredClaims
}

// SignedURLSigner issues HS256 signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. ttl defaults to one day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Sign returns a token for claims, stamping the expiry.
func (s *SignedURLSigner) Sign(claims DownloadClaims) (string, time.Time, error) {
	if claims.RunID == "" || claims.Path == "" {
		return "", time.Time{}, fmt.Errorf("run id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &downloadClaims{
		Path:   claims.Path,
		Format: claims.Format,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   claims.RunID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of token. Expired tokens still
// return their claims.
func (s *SignedURLSigner) Verify(token string) (DownloadClaims, error) {
	if token == "" || len(s.secret) == 0 {
		return DownloadClaims{}, ErrInvalidToken
	}
	var wire downloadClaims
	_, err := jwt.ParseWithClaims(token, &wire, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := DownloadClaims{RunID: wire.Subject, Path: wire.Path, Format: wire.Format}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}
	switch {
	case err == nil:
		if claims.RunID == "" || claims.Path == "" {
			return DownloadClaims{}, ErrInvalidToken
		}
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return claims, ErrTokenExpired
	default:
		return DownloadClaims{}, ErrInvalidToken
	}
}
