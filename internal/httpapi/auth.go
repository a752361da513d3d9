package httpapi

import (
	"errors"
	"strings"
	"time"
	"unicode"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fiado/backend/internal/domain"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInvalidToken       = errors.New("invalid or expired token")
)

// AuthManager issues short-lived tokens to the chat gateway. The gateway
// proves itself with a shared key whose bcrypt hash lives in config; the
// token subject is the merchant account the gateway acts for.
type AuthManager struct {
	secret         []byte
	tokenTTL       time.Duration
	gatewayKeyHash string
	now            func() time.Time
}

type gatewayClaims struct {
	jwtlib.RegisteredClaims
}

func NewAuthManager(secret string, tokenTTL time.Duration, gatewayKeyHash string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &AuthManager{
		secret:         []byte(secret),
		tokenTTL:       tokenTTL,
		gatewayKeyHash: strings.TrimSpace(gatewayKeyHash),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) IssueToken(req domain.TokenRequest) (domain.TokenResponse, error) {
	accountID := strings.TrimSpace(req.AccountID)
	if !validAccountID(accountID) {
		return domain.TokenResponse{}, errors.New("account_id must be 1-64 characters without spaces")
	}
	if !verifyKey(a.gatewayKeyHash, req.GatewayKey) {
		return domain.TokenResponse{}, errInvalidCredentials
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(accountID, expiresAt)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	return domain.TokenResponse{
		AccessToken: token,
		AccountID:   accountID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &gatewayClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("fiado"), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || !validAccountID(sub) {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{AccountID: sub}, nil
}

func (a *AuthManager) sign(accountID string, expiresAt time.Time) (string, error) {
	claims := gatewayClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "fiado",
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// HashGatewayKey produces the value expected in GATEWAY_KEY_HASH.
func HashGatewayKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("gateway key must not be empty")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func IsKeyHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

func verifyKey(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !IsKeyHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func validAccountID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return strings.IndexFunc(id, unicode.IsSpace) < 0
}
