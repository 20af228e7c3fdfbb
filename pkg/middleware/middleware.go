package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/RoiLaboratories/Tower-Exchange/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Per-endpoint-class limits
	authLimit   = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	ordersLimit = rate.Limit(60.0 / 60.0)   // 60 requests per minute
	readLimit   = rate.Limit(600.0 / 60.0)  // 600 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, method, key string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	mapKey := key + ":" + method + ":" + path
	v, exists := visitors[mapKey]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/orders") && method != "GET":
			limit = ordersLimit
		case strings.HasPrefix(path, "/api/v1/orders") || strings.HasPrefix(path, "/api/v1/activity"):
			limit = readLimit
		default:
			limit = rate.Inf
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
			lastSeen: time.Now(),
		}
		visitors[mapKey] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles clients per wallet (or IP before auth) and per
// endpoint class.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("walletAddress")
		if key == "" {
			key = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), c.Request.Method, key)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth verifies the bearer token and puts the wallet address from
// its claims on the request context.
func JWTAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := validateBearerToken(c, jwtSecret)
		if err != nil {
			return
		}

		wallet, ok := claims["wallet_address"].(string)
		if !ok || wallet == "" {
			response.Unauthorized(c, "Missing wallet address claim")
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("walletAddress", wallet)
		c.Next()
	}
}

// InternalAuth protects operator endpoints. These should additionally
// sit behind the internal network; the bearer check is the last line.
func InternalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := validateBearerToken(c, jwtSecret)
		if err != nil {
			return
		}

		if wallet, ok := claims["wallet_address"].(string); ok {
			c.Set("walletAddress", wallet)
		}
		c.Next()
	}
}

func validateBearerToken(c *gin.Context, jwtSecret string) (jwt.MapClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, fmt.Errorf("authorization header required")
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		response.Unauthorized(c, "Invalid token claims")
		c.Abort()
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
