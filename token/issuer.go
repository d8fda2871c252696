package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
)

// Issuer mints access tokens. It backs the development REST backend.
type Issuer struct {
	signer Signer
	issuer string
	ttl    time.Duration
}

func NewIssuer(signer Signer, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{
		signer: signer,
		issuer: issuer,
		ttl:    ttl,
	}
}

// AccessToken creates an access token for subject expiring after the issuer TTL.
func (i *Issuer) AccessToken(subject string) (string, error) {
	return i.AccessTokenExpiringAt(subject, NowTimeFunc().Add(i.ttl))
}

// AccessTokenExpiringAt creates an access token for subject with an explicit expiry.
func (i *Issuer) AccessTokenExpiringAt(subject string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":        i.issuer,                    // The issuer of the token
		"sub":        subject,                     // The user the token was issued to
		"iat":        NowTimeFunc().Unix(),        // Issued At
		"exp":        exp.Unix(),                  // Expiry
		"jti":        uuid.New().String(),         // Unique token ID
		"token_type": "access",
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks that raw is an unexpired access token minted by this issuer and
// returns its subject.
func (i *Issuer) Verify(raw string) (string, error) {
	claims, err := Verify(i.signer, raw)
	if err != nil {
		return "", err
	}
	if iss, _ := claims.GetIssuer(); iss != i.issuer {
		return "", apperrors.Wrapf(apperrors.ErrInvalidToken, "unexpected issuer %q", iss)
	}
	if claims["token_type"] != "access" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidToken, "not an access token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidToken, "token has no subject")
	}
	return sub, nil
}
