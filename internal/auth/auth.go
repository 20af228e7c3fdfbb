package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/RoiLaboratories/Tower-Exchange/pkg/response"
)

var (
	ErrInvalidWallet   = errors.New("invalid wallet address")
	ErrMissingProof    = errors.New("missing ownership proof")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// Credentials is a wallet's claim of ownership: the address plus a
// signature over a login message produced by the wallet. Signature
// verification against the chain is delegated to the wallet
// integration; here the proof is only checked for presence and shape.
type Credentials struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

// TokenResponse is the issued JWT plus its expiry.
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims is the JWT claims structure; wallet_address scopes every
// subsequent request.
type Claims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"wallet_address"`
}

// Service issues and validates wallet-scoped JWTs.
type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates an authentication service with the given secret.
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  24 * time.Hour,
	}
}

// GenerateToken validates the wallet credentials and issues a JWT
// scoped to the wallet address.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	expiration := time.Now().Add(s.tokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		WalletAddress: strings.ToLower(creds.WalletAddress),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies signature and expiry and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func validateCredentials(creds Credentials) error {
	addr := strings.TrimSpace(creds.WalletAddress)
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return ErrInvalidWallet
	}
	if strings.TrimSpace(creds.Signature) == "" {
		return ErrMissingProof
	}
	return nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to exchange wallet
// credentials for a JWT.
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidWallet) || errors.Is(err, ErrMissingProof) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
