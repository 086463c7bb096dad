package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// TokenGenerator makes and verifies one-shot account tokens (email confirmation).
// A token is invalidated as soon as the account's password, confirmation or last login changes.
type TokenGenerator struct {
	salt    []byte
	secret  []byte
	timeout time.Duration
	nowFunc func() time.Time // mockable
}

func NewTokenGenerator(salt, secretKey string, timeout time.Duration) *TokenGenerator {
	return &TokenGenerator{
		salt:    []byte(salt),
		secret:  []byte(secretKey),
		timeout: timeout,
		nowFunc: time.Now,
	}
}

// EncodeUID base64 encodes given Account ID
func EncodeUID(acc Account) string {
	return base64.RawURLEncoding.EncodeToString([]byte(acc.ID))
}

// DecodeUID base64 decodes given UID. Anything but an encoded Account ID is an ErrInvalidToken.
func DecodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", ErrInvalidToken
	}
	id, err := uuid.ParseBytes(idBytes)
	if err != nil {
		return "", ErrInvalidToken
	}
	return id.String(), nil
}

// MakeToken generates a token for a given Account.
func (g *TokenGenerator) MakeToken(acc Account) string {
	return g.makeTokenWithTimestamp(acc, numDaysSince2001(g.nowFunc()))
}

// VerifyToken checks that a token for a given Account is valid.
func (g *TokenGenerator) VerifyToken(acc Account, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}

	data, err := b32.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	// check that token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(g.makeTokenWithTimestamp(acc, ts)), []byte(token)) == 0 {
		return ErrInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(time.Now()) - ts) > int(g.timeout/(24*time.Hour)) {
		return ErrTokenExpired
	}
	return nil
}

func (g *TokenGenerator) makeTokenWithTimestamp(acc Account, ts int) string {
	tsB32 := b32.EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, g.sign(hashValue(acc, ts)))
}

func (g *TokenGenerator) sign(val []byte) string {
	key := sha256.Sum256(append(append([]byte{}, g.salt...), g.secret...))
	h := hmac.New(sha256.New, key[:])
	_, _ = h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(acc Account, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(acc.ID)
	val.Write(acc.PasswordHash)
	if acc.ConfirmedAt != nil {
		val.WriteString(acc.ConfirmedAt.UTC().String())
	}
	if !acc.LastLogin.IsZero() {
		val.WriteString(acc.LastLogin.UTC().String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
