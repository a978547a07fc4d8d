package auth

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, or expired credentials.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated identity attached to a request or a
// websocket connection. It is derived from the verified token only, never
// from client-supplied fields.
type Principal struct {
	UserID int64
	Role   string
}

// Claims mirrors the access token payload issued by the dorm auth service:
// the user id in the subject and the role as a custom claim.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens and resolves them to a Principal.
type Verifier interface {
	VerifyToken(token string) (Principal, error)
}

// JWTVerifier verifies HS256 tokens with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// VerifyToken parses and validates the token and extracts the Principal.
func (v *JWTVerifier) VerifyToken(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: userID, Role: claims.Role}, nil
}

// NewToken signs an access token for the given principal. The auth service
// owns token issuance in production; this is used by tests and debug tooling.
func NewToken(secret []byte, p Principal, opts ...func(*Claims)) (string, error) {
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(p.UserID, 10),
		},
	}
	for _, opt := range opts {
		opt(&claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
