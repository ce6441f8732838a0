package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/requestctx"
)

const (
	orderTokenAudience = "order-status"
	orderTokenIssuer   = "storefront"
	minOrderSecretLen  = 32
)

var (
	// ErrOrderTokenInvalid is returned for malformed, forged or mismatched tokens.
	ErrOrderTokenInvalid = errors.New("auth: order token invalid")
	// ErrOrderTokenExpired is returned when the token is past its expiry.
	ErrOrderTokenExpired = errors.New("auth: order token expired")
)

// OrderTokens issues and verifies the HS256 tokens that let a guest shopper read the
// status of the order they just placed.
type OrderTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewOrderTokens builds the signer. The secret must be at least 32 bytes.
func NewOrderTokens(secret string, ttl time.Duration, clock func() time.Time) (*OrderTokens, error) {
	if len(secret) < minOrderSecretLen {
		return nil, fmt.Errorf("auth: order token secret must be at least %d bytes", minOrderSecretLen)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: order token ttl must be positive")
	}
	if clock == nil {
		clock = time.Now
	}
	return &OrderTokens{secret: []byte(secret), ttl: ttl, now: clock}, nil
}

// Issue signs a token bound to orderID.
func (t *OrderTokens) Issue(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errors.New("auth: order id is required")
	}
	now := t.now().UTC()
	jti := make([]byte, 8)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("auth: token id: %w", err)
	}
	claims := jwt.RegisteredClaims{
		Issuer:    orderTokenIssuer,
		Subject:   orderID,
		Audience:  jwt.ClaimStrings{orderTokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		ID:        hex.EncodeToString(jti),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign order token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the order id the token grants.
func (t *OrderTokens) Verify(token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderTokenInvalid, err)
	}
	if !claims.VerifyAudience(orderTokenAudience, true) || !claims.VerifyIssuer(orderTokenIssuer, true) {
		return "", ErrOrderTokenInvalid
	}
	if !claims.VerifyExpiresAt(t.now(), true) {
		return "", ErrOrderTokenExpired
	}
	if claims.Subject == "" {
		return "", ErrOrderTokenInvalid
	}
	return claims.Subject, nil
}

// RequireOrderToken admits requests whose bearer token (or ?token= query parameter) was
// issued for the order orderID extracts from the request.
func (t *OrderTokens) RequireOrderToken(orderID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				raw = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if raw == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "Token de acesso ao pedido ausente.", http.StatusUnauthorized))
				return
			}
			granted, err := t.Verify(raw)
			if err != nil {
				code, message := "invalid_token", "Token de acesso ao pedido inválido."
				if errors.Is(err, ErrOrderTokenExpired) {
					code, message = "token_expired", "Token de acesso ao pedido expirado."
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
				return
			}
			if orderID != nil && granted != orderID(r) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "Este token não dá acesso a este pedido.", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithOrderAccess(ctx, granted)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
