// Package auth holds the token codec: HS256 JWT encoding and decoding with
// a key derived from the service secret.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

const (
	claimTokenID  = "jti"
	claimSubject  = "sub"
	claimIssuedAt = "iat"
	claimExpires  = "exp"
	claimNotAfter = "nbf"
	claimIssuer   = "iss"
	claimAudience = "aud"

	headerKeyID = "kid"
	keyLength   = 32
)

// reservedClaims may not appear in caller supplied claims and are stripped
// from decoded claims.
var reservedClaims = map[string]struct{}{
	claimTokenID:  {},
	claimIssuedAt: {},
	claimExpires:  {},
	claimNotAfter: {},
	claimIssuer:   {},
	claimAudience: {},
}

var errUnknownKey = errors.New("unknown signing key")

// Payload is the decoded content of a token.
type Payload struct {
	TokenID   string
	OwnerID   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	KeyID     string
	Claims    models.Claims
}

// Codec signs and verifies tokens with a single HS256 key.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	keyID  string
	key    []byte
	parser *jwt.Parser
}

// DeriveKey expands the master secret into the signing key for keyID.
func DeriveKey(secret []byte, keyID string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("tokenkeeper/"+keyID))
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// NewCodec builds a codec whose key is derived from secret and keyID.
func NewCodec(secret []byte, keyID string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	if keyID == "" {
		return nil, errors.New("empty key id")
	}
	key, err := DeriveKey(secret, keyID)
	if err != nil {
		return nil, err
	}
	return &Codec{
		keyID: keyID,
		key:   key,
		// time is judged by the lifecycle engine against the record
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// KeyID returns the id stamped into every token header.
func (c *Codec) KeyID() string { return c.keyID }

// CheckClaims rejects custom claims that collide with registered ones.
// sub is accepted only when it names ownerID.
func CheckClaims(claims models.Claims, ownerID string) error {
	for _, k := range claims.Keys() {
		if _, ok := reservedClaims[k]; ok {
			return fmt.Errorf("%w: %q is reserved", common.ErrInvalidClaims, k)
		}
	}
	if sub, ok := claims[claimSubject]; ok {
		if s, isString := sub.(string); !isString || s != ownerID {
			return fmt.Errorf("%w: sub does not match owner", common.ErrInvalidClaims)
		}
	}
	if err := claims.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidClaims, err)
	}
	return nil
}

// Encode signs p. Registered claims are taken from p's fields and override
// anything of the same name in p.Claims. Output is deterministic for a
// given payload since object keys are serialized in sorted order.
func (c *Codec) Encode(p Payload) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range p.Claims {
		mc[k] = v
	}
	mc[claimSubject] = p.OwnerID
	mc[claimTokenID] = p.TokenID
	mc[claimIssuedAt] = p.IssuedAt.Unix()
	mc[claimExpires] = p.ExpiresAt.Unix()
	if p.Issuer != "" {
		mc[claimIssuer] = p.Issuer
	}
	if len(p.Audience) > 0 {
		mc[claimAudience] = p.Audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	token.Header[headerKeyID] = c.keyID

	s, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Decode verifies the signature and extracts the payload. It never looks
// at time claims.
func (c *Codec) Decode(signed string) (*Payload, error) {
	mc := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(signed, mc, c.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrSignatureInvalid, err)
	}

	p := &Payload{KeyID: c.keyID}

	if p.TokenID, err = stringClaim(mc, claimTokenID); err != nil {
		return nil, err
	}
	if p.OwnerID, err = stringClaim(mc, claimSubject); err != nil {
		return nil, err
	}

	iat, err := mc.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("%w: bad iat", common.ErrMalformedToken)
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: bad exp", common.ErrMalformedToken)
	}
	p.IssuedAt = iat.UTC()
	p.ExpiresAt = exp.UTC()

	if p.Issuer, err = mc.GetIssuer(); err != nil {
		return nil, fmt.Errorf("%w: bad iss", common.ErrMalformedToken)
	}
	aud, err := mc.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: bad aud", common.ErrMalformedToken)
	}
	if len(aud) > 0 {
		p.Audience = []string(aud)
	}

	p.Claims = models.Claims{}
	for k, v := range mc {
		if _, ok := reservedClaims[k]; !ok {
			p.Claims[k] = v
		}
	}

	return p, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header[headerKeyID].(string)
	if kid != c.keyID {
		return nil, errUnknownKey
	}
	return c.key, nil
}

func stringClaim(mc jwt.MapClaims, name string) (string, error) {
	v, ok := mc[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %s", common.ErrMalformedToken, name)
	}
	return v, nil
}
