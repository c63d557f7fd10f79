package auth

import (
	"context"
	"errors"
	"fmt"

	"signalhub/internal/domain"
	"signalhub/pkg/e"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the access token the service reads. The role may
// sit at the top level or under app_metadata.
type Claims struct {
	Role        string `json:"role,omitempty"`
	AppMetadata struct {
		Role string `json:"role,omitempty"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 bearer tokens and turns them into principals.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.Principal, error) {
	const op = "auth.JWTVerifier.Verify"

	if token == "" {
		return domain.Principal{}, fmt.Errorf("%s: %w", op, e.ErrUnauthenticated)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%s: %w: %w", op, e.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%s: %w: %w", op, e.ErrUnauthenticated, errors.New("missing sub"))
	}

	return domain.Principal{ID: claims.Subject, Role: roleOf(claims)}, nil
}

// Issue signs a token for p. Used by tests and local tooling.
func (v *JWTVerifier) Issue(p domain.Principal, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = p.ID
	c := Claims{RegisteredClaims: claims}
	c.AppMetadata.Role = string(p.Role)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

func roleOf(c Claims) domain.Role {
	for _, r := range []string{c.AppMetadata.Role, c.Role} {
		switch domain.Role(r) {
		case domain.RoleAdmin, domain.RoleCitizen:
			return domain.Role(r)
		}
	}
	return domain.RoleCitizen
}
