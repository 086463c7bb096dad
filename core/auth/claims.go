package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

const (
	tokenAudience = "Masomo Portals"
	TokenType     = "bearer"
)

var signingMethod = jwt.SigningMethodHS256

// Claims represents the authorization claims transmitted via a JWT.
// StandardClaims.Id holds the session ID; OrigIssuedAt bounds the refresh window.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         user.Role `json:"role,omitempty"`
	TenantID     string    `json:"tid,omitempty"`
}

func newClaims(conf *core.Config, sessionID string, acc user.Account, prof user.Profile, now time.Time, origIat ...int64) *Claims {
	nownix := now.Unix()
	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        sessionID,
			Issuer:    conf.AppName,
			Subject:   acc.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        acc.Email,
		Role:         prof.Role,
		TenantID:     prof.TenantID,
	}
}

// RefreshDeadline is the instant after which the claims can no longer be refreshed.
func (c *Claims) RefreshDeadline(conf *core.Config) time.Time {
	return time.Unix(c.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
}

// Deadline is the later of the token expiry and the refresh deadline.
func (c *Claims) Deadline(conf *core.Config) time.Time {
	if rd := c.RefreshDeadline(conf); rd.After(c.ExpiresAtTime()) {
		return rd
	}
	return c.ExpiresAtTime()
}

func (c *Claims) ExpiresAtTime() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// generateToken generates a signed JWT token string representing the Claims.
func generateToken(secret string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(signingMethod, claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// parseToken parses and verifies a signed token. Expired tokens are returned along with ErrTokenExpired,
// so that callers may still refresh them.
func parseToken(secret, tokenStr string, now time.Time) (*Claims, error) {
	claims := new(Claims)
	parser := &jwt.Parser{ValidMethods: []string{signingMethod.Alg()}, SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Id == "" || claims.Subject == "" || !claims.VerifyAudience(tokenAudience, true) {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(now.Unix(), true) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
