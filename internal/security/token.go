package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"camtrap/internal/ids"
)

// AccessClaims carries the user and role. RegisteredClaims.ID is the token
// id used for revocation.
type AccessClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

func GenerateAccessToken(secret string, userID string, role string, ttl time.Duration) (IssuedToken, error) {
	now := time.Now()
	tokenID := ids.New()
	expires := now.Add(ttl)

	claims := AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Subject:   userID,
			ID:        tokenID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign jwt: %w", err)
	}
	return IssuedToken{Token: signed, ID: tokenID, ExpiresAt: expires}, nil
}

func ParseAccessToken(tokenStr string, secret string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
