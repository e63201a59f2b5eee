package capability

import (
	"errors"
	"fmt"
	"time"

	"livequiz/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSecret is returned when the issuer is built without a signing secret.
var ErrNoSecret = errors.New("moderator secret not configured")

const roleModerator = "moderator"

// Claims identifies the room a moderator token is valid for.
type Claims struct {
	RoomID string `json:"room_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies moderator capability tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token granting moderator rights over roomID. A non-positive ttl
// produces a token without expiry.
func (i *Issuer) Issue(roomID string) (string, error) {
	now := i.now()
	claims := Claims{
		RoomID: roomID,
		Role:   roleModerator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   i.issuer,
			Subject:  roomID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign moderator token: %w", err)
	}
	return token, nil
}

// Verify checks that token grants moderator rights for roomID.
func (i *Issuer) Verify(token, roomID string) error {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidCapability
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidCapability, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Role != roleModerator || claims.RoomID != roomID {
		return domain.ErrInvalidCapability
	}
	return nil
}
