// ABOUTME: Access token issuance and verification using HS256 JWTs
// ABOUTME: The kid header selects the current or previous signing key so rotation keeps in-flight tokens valid

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/epicevents/crm/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is used when the configured lifetime is zero.
const DefaultAccessTokenTTL = 30 * time.Minute

// SigningKey is an HMAC secret and the id stamped into tokens it signs.
type SigningKey struct {
	ID     string
	Secret []byte
}

// KeySet is the current signing key plus an optional previous key accepted during a rollover.
type KeySet struct {
	Current  SigningKey
	Previous *SigningKey
}

func (k KeySet) validate() error {
	if k.Current.ID == "" {
		return errors.New("current signing key id is required")
	}
	if len(k.Current.Secret) == 0 {
		return errors.New("current signing key secret is required")
	}
	if k.Previous == nil {
		return nil
	}
	if k.Previous.ID == "" || len(k.Previous.Secret) == 0 {
		return errors.New("previous signing key needs both id and secret")
	}
	if k.Previous.ID == k.Current.ID {
		return fmt.Errorf("previous signing key id %q duplicates the current key id", k.Previous.ID)
	}
	return nil
}

// Claims are the verified contents of an access token.
type Claims struct {
	SubjectID int64
	RoleID    store.RoleID
	ExpiresAt time.Time
	IssuedAt  time.Time
	KeyID     string
	TokenID   string
}

// accessClaims is the wire payload. sub and role_id are decimal strings.
type accessClaims struct {
	RoleID string `json:"role_id"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies access tokens. It is read-only after construction.
type TokenCodec struct {
	current SigningKey
	keys    map[string][]byte
	ttl     time.Duration
}

// NewTokenCodec returns a codec signing with keys.Current and verifying against
// keys.Current and keys.Previous. A zero ttl selects DefaultAccessTokenTTL.
func NewTokenCodec(keys KeySet, ttl time.Duration) (*TokenCodec, error) {
	if err := keys.validate(); err != nil {
		return nil, err
	}
	if ttl < 0 {
		return nil, fmt.Errorf("access token lifetime must be positive, got %s", ttl)
	}
	if ttl == 0 {
		ttl = DefaultAccessTokenTTL
	}

	c := &TokenCodec{
		current: keys.Current,
		keys:    map[string][]byte{keys.Current.ID: keys.Current.Secret},
		ttl:     ttl,
	}
	if keys.Previous != nil {
		c.keys[keys.Previous.ID] = keys.Previous.Secret
	}
	return c, nil
}

// TTL returns the access token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// CurrentKeyID returns the id of the key new tokens are signed with.
func (c *TokenCodec) CurrentKeyID() string {
	return c.current.ID
}

// Issue signs a token for subjectID with role, expiring at now + TTL.
func (c *TokenCodec) Issue(subjectID int64, role store.RoleID, now time.Time) (string, time.Time, error) {
	if subjectID <= 0 {
		return "", time.Time{}, fmt.Errorf("invalid subject id %d", subjectID)
	}

	expiresAt := ceilSecond(now.Add(c.ttl))
	claims := accessClaims{
		RoleID: strconv.Itoa(int(role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = c.current.ID

	signed, err := token.SignedString(c.current.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, key id, expiry and required claims at now.
// Failures wrap ErrInvalidCredential, except expiry which returns ErrExpiredCredential.
func (c *TokenCodec) Verify(tokenString string, now time.Time) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Expiry is checked below: a token is still valid at the instant exp.
		jwt.WithoutClaimsValidation(),
	)

	var claims accessClaims
	var keyID string
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		secret, ok := c.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		keyID = kid
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrInvalidCredential)
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, ErrExpiredCredential
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidCredential)
	}
	subjectID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subjectID <= 0 {
		return nil, fmt.Errorf("%w: malformed sub claim", ErrInvalidCredential)
	}

	if claims.RoleID == "" {
		return nil, fmt.Errorf("%w: missing role_id claim", ErrInvalidCredential)
	}
	roleID, err := strconv.Atoi(claims.RoleID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed role_id claim", ErrInvalidCredential)
	}

	out := &Claims{
		SubjectID: subjectID,
		RoleID:    store.RoleID(roleID),
		ExpiresAt: claims.ExpiresAt.Time,
		KeyID:     keyID,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// ceilSecond rounds t up to the next whole second. JWT NumericDate carries
// whole seconds only, so truncating would shorten the lifetime.
func ceilSecond(t time.Time) time.Time {
	if whole := t.Truncate(time.Second); whole.Before(t) {
		return whole.Add(time.Second)
	}
	return t
}
