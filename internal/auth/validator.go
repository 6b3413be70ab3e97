package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pidro/roomserver/internal/logging"
)

// CustomClaims represents the JWT claims used for authentication. Subject
// resolves a connecting socket to a stable player-id; Name and Email are
// carried through for display purposes only and are never used as identity.
type CustomClaims struct {
	Scope string `json:"scope"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ErrShortSecret is returned by NewValidator when the shared secret is too
// weak to sign or verify HMAC tokens safely.
var ErrShortSecret = errors.New("jwt secret must be at least 32 characters")

// Validator validates bearer tokens against a single shared HMAC secret and
// signs the short-lived reconnect tokens issued after a disconnect, so a
// reconnecting client can prove it is the same player without re-running
// the full login flow.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator constructs a Validator around a shared secret. Unlike the
// JWKS-backed validators used by federated-identity services, this server
// is its own issuer: it signs every token it will later accept, so a single
// HMAC secret is sufficient and there is no key-rotation cache to warm.
func NewValidator(secret string) (*Validator, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	return &Validator{secret: []byte(secret), issuer: "pidro-roomserver"}, nil
}

// keyFunc rejects any non-HMAC signing method before returning the
// verification key. ValidateToken also restricts the parser to HS256, and the
// parser applies that check before calling keyFunc, so keyFunc is a second
// line of defence against whatever algorithm a caller selects in "alg".
func (v *Validator) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.secret, nil
}

// ValidateToken parses and validates a bearer token, returning its claims.
func (v *Validator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("failed to cast claims to CustomClaims")
	}
	return claims, nil
}

// SignReconnectToken issues a short-lived token identifying playerID under
// the "reconnect" scope. Only tests call it: the transport hands no token to
// a disconnecting client, and a reconnecting socket authenticates with any
// bearer token ValidateToken accepts.
func (v *Validator) SignReconnectToken(playerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Scope: "reconnect",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	// Example: ALLOWED_ORIGINS="http://localhost:3000,https://your-app.com"
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		// Provide sensible defaults for local development if the env var isn't set.
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}

// MockValidator is a development-only token validator that accepts any token
type MockValidator struct{}

func (m *MockValidator) ValidateToken(tokenString string) (*CustomClaims, error) {
	// For development, parse the JWT token to extract the real 'sub' claim
	// This ensures the player-id matches between client and server.
	var subject, name, email string

	// Parse JWT token (format: header.payload.signature)
	parts := strings.Split(tokenString, ".")
	if len(parts) == 3 {
		// Decode the payload (base64 URL encoded)
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err == nil {
			var claims map[string]interface{}
			if json.Unmarshal(payload, &claims) == nil {
				if sub, ok := claims["sub"].(string); ok {
					subject = sub
				}
				if n, ok := claims["name"].(string); ok {
					name = n
				}
				if e, ok := claims["email"].(string); ok {
					email = e
				}
				logging.Info(context.Background(), "MockValidator parsed JWT", zap.String("subject", subject), zap.String("name", name), zap.String("email", logging.RedactEmail(email)))
			}
		}
	}

	// Fallback to default if parsing failed
	if subject == "" {
		subject = "dev-user-123"
	}
	if name == "" {
		name = "Dev User"
	}
	if email == "" {
		email = "dev@example.com"
	}

	claims := &CustomClaims{
		Name:  name,
		Email: email,
	}
	claims.Subject = subject
	return claims, nil
}
