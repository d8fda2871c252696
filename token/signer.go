package token

import (
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
)

// Signer signs and verifies JWT tokens. The client itself never verifies tokens;
// signers are used by the development backend and by tests that need real tokens.
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key used to verify token
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// Verify parses raw and checks its signature and registered claims.
func (h *HMACSigner) Verify(raw string) (jwt.MapClaims, error) {
	return Verify(h, raw)
}

// Verify checks the signature of raw with signer and validates its registered
// claims against NowTimeFunc. Failures wrap ErrTokenExpired or ErrInvalidToken.
func Verify(signer Signer, raw string) (jwt.MapClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, jwt.MapClaims{}, signer.GetVerificationKey,
		jwt.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, apperrors.Wrapf(apperrors.ErrTokenExpired, "[token.Verify] %v", err)
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "[token.Verify] %v", err)
	}
	if !parsed.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims from token")
	}
	return claims, nil
}
