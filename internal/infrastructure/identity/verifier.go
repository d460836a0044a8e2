// Package identity verifies the bearer tokens issued by the clinic backend
// and exposes the authenticated participant to the chat layers.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RolePatient = "patient"
	RoleStaff   = "staff"
)

// ErrTokenInvalid covers every verification failure: bad signature, expired,
// wrong issuer, malformed claims.
var ErrTokenInvalid = errors.New("identity: invalid token")

// Identity is the authenticated party behind a connection or request.
type Identity struct {
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// IsPatient reports whether the identity belongs to a patient (as opposed to
// clinic staff).
func (i Identity) IsPatient() bool { return i.Role == RolePatient }

// Verifier validates a bearer token and resolves the identity behind it.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// Claims is the token payload: subject carries the participant id, role the
// participant class.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with the backend's shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	role := RoleStaff
	if claims.Role == RolePatient {
		role = RolePatient
	}
	return Identity{ParticipantID: claims.Subject, Role: role}, nil
}

// GenerateToken mints a token for the given participant. The API server
// itself only verifies; this is used by tests and provisioning tooling.
func (v *JWTVerifier) GenerateToken(participantID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenSource extracts the bearer token from a request: the Authorization
// header, or the token query parameter as a fallback for browser WebSocket
// clients that cannot set headers.
func TokenSource(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}
