package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/logger"
)

const (
	// tokenIssuer is stamped on every session token and required on parse.
	tokenIssuer = "nebula-migrate"

	// maxPasswordBytes is the longest input bcrypt hashes without truncating.
	maxPasswordBytes = 72
)

var (
	ErrTokenMalformed          = errors.New("malformed token")
	ErrTokenExpired            = errors.New("token is expired or not valid yet")
	ErrTokenInvalid            = errors.New("invalid token")
	ErrTokenClaimsInvalid      = errors.New("invalid token claims")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrForbidden               = errors.New("invalid api key")
	ErrUnexpectedSigningMethod = errors.New("unexpected token signing method")
	ErrPasswordTooLong         = fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
)

var customLog = logger.NewLogger()

// --- Passwords ---

// HashPassword returns the bcrypt hash stored for a new account.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		customLog.Warnf("Auth: Hashing password failed: %v", err)
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPasswordHash reports whether password matches hash. A hash that is not
// bcrypt at all counts as a mismatch and is logged.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
	default:
		customLog.Warnf("Auth: Stored password hash is unusable: %v", err)
	}
	return false
}

// --- Session tokens ---

// GenerateJWT signs a session token for userID that expires after ttl.
func GenerateJWT(userID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := models.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		customLog.Warnf("Auth: Signing token for user %s failed: %v", userID, err)
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

var parser = jwt.NewParser(
	jwt.WithIssuer(tokenIssuer),
	jwt.WithExpirationRequired(),
)

// ValidateJWT checks a session token and returns the user it was issued to.
// Library errors are folded into this package's sentinels.
func ValidateJWT(token, secret string) (string, error) {
	claims := &models.CustomClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		mapped := tokenError(err)
		customLog.Warnf("Auth: Rejected token: %v", err)
		return "", mapped
	}

	if claims.UserID == "" {
		customLog.Warnf("Auth: Token carries no user id")
		return "", ErrTokenClaimsInvalid
	}
	return claims.UserID, nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenExpired
	case errors.Is(err, ErrUnexpectedSigningMethod):
		return ErrUnexpectedSigningMethod
	default:
		return ErrTokenInvalid
	}
}
