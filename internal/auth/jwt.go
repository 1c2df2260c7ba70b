package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"livestream-chat/internal/errs"
)

// SubprotocolBearer is the Sec-WebSocket-Protocol marker that precedes a token.
const SubprotocolBearer = "bearer"

// Claims is the token payload issued by the auth service.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns a raw token into a Principal.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier builds a verifier. An empty issuer disables the iss check.
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

// Verify validates the signature and standard claims.
func (v *JWTVerifier) Verify(token string) (Principal, error) {
	if token == "" {
		return Principal{}, errs.ErrMissingToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, errs.ErrInvalidToken.Wrap(err)
	}
	if claims.Subject == "" {
		return Principal{}, errs.ErrInvalidToken.Wrap(errors.New("token has no subject"))
	}

	return Principal{UserID: claims.Subject, Name: claims.Name, Roles: claims.Roles}, nil
}

// Sign issues a token for claims. Used by tooling and tests.
func Sign(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromRequest extracts a bearer credential from a handshake request.
// Precedence: the "bearer, <token>" subprotocol pair, the token query
// parameter, then the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := tokenFromSubprotocol(r.Header.Values("Sec-WebSocket-Protocol")); token != "" {
		return token
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// BearerToken returns the credential of a "Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func tokenFromSubprotocol(values []string) string {
	var protocols []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
	}
	for i := 0; i+1 < len(protocols); i++ {
		if strings.EqualFold(protocols[i], SubprotocolBearer) {
			return protocols[i+1]
		}
	}
	return ""
}
