// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pidro/roomserver/internal/auth"
	"github.com/pidro/roomserver/internal/config"
	"github.com/pidro/roomserver/internal/logging"
	"github.com/pidro/roomserver/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// TokenValidator resolves a bearer token to its claims. The rate limiter
// validates tokens itself rather than trusting context claims alone, so
// running it ahead of the auth middleware cannot be used to dodge the
// per-user bucket and fall back to the (shared, NAT-friendly) IP bucket.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// RateLimiter holds the rate limiter instances
type RateLimiter struct {
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
	apiRooms    *limiter.Limiter
	apiMessages *limiter.Limiter
	wsIP        *limiter.Limiter
	wsUser      *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
	validator   TokenValidator
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client, validator TokenValidator) (*RateLimiter, error) {
	// Parse rates
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}

	apiPublicRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid API public rate: %w", err)
	}

	apiRoomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid API rooms rate: %w", err)
	}

	apiMessagesRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiMessages)
	if err != nil {
		return nil, fmt.Errorf("invalid API actions rate: %w", err)
	}

	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIp)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	wsUserRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsUser)
	if err != nil {
		return nil, fmt.Errorf("invalid WS User rate: %w", err)
	}

	// Create store
	var store limiter.Store
	if redisClient != nil {
		// Use Redis store
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		// Fallback to memory store if Redis is disabled (e.g. dev mode without redis)
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store (Redis disabled or unavailable)")
	}

	return &RateLimiter{
		apiGlobal:   limiter.New(store, apiGlobalRate),
		apiPublic:   limiter.New(store, apiPublicRate),
		apiRooms:    limiter.New(store, apiRoomsRate),
		apiMessages: limiter.New(store, apiMessagesRate),
		wsIP:        limiter.New(store, wsIPRate),
		wsUser:      limiter.New(store, wsUserRate),
		store:       store,
		redisClient: redisClient,
		validator:   validator,
	}, nil
}

// resolveClaims returns the request's validated claims: from the context if
// the auth middleware already ran, otherwise by validating the bearer token
// directly.
func (rl *RateLimiter) resolveClaims(c *gin.Context) *auth.CustomClaims {
	if v, exists := c.Get("claims"); exists {
		if claims, ok := v.(*auth.CustomClaims); ok {
			return claims
		}
	}
	if rl.validator == nil {
		return nil
	}
	tokenString := ""
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	} else {
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		return nil
	}
	claims, err := rl.validator.ValidateToken(tokenString)
	if err != nil {
		return nil
	}
	return claims
}

// GlobalMiddleware enforces the global rate limit: the user limit if the
// request carries validated claims, otherwise the stricter IP limit.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter
		var key string
		var limitType string

		if claims := rl.resolveClaims(c); claims != nil {
			key = claims.Subject
			limiterInstance = rl.apiGlobal
			limitType = "user"
		} else {
			key = c.ClientIP()
			limiterInstance = rl.apiPublic
			limitType = "ip"
		}

		ctx := c.Request.Context()
		context, err := limiterInstance.Get(ctx, key)
		if err != nil {
			// Fail open: a rate limiter outage should not take down the room
			// server, only its abuse protection.
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

		if context.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(context.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": context.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// MiddlewareForEndpoint enforces a per-endpoint rate limit, keyed by player
// id when authenticated or by IP otherwise. endpointType selects which
// bucket applies: "rooms" for create_room/join_room, "actions" for
// apply_action.
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter

		switch endpointType {
		case "rooms":
			limiterInstance = rl.apiRooms
		case "actions":
			limiterInstance = rl.apiMessages
		default:
			limiterInstance = rl.apiGlobal
		}

		var key string
		if claims := rl.resolveClaims(c); claims != nil {
			key = claims.Subject
		} else {
			key = c.ClientIP()
		}

		ctx := c.Request.Context()
		context, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if context.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), endpointType).Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(context.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": context.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket enforces the per-IP connection limit before a socket is
// upgraded. Call CheckWebSocketUser once the connecting player is known, to
// additionally enforce the per-user limit.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS Rate limiter store failed (IP)", zap.Error(err))
		return true // Fail open
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// CheckWebSocketUser checks the user-specific limit for WebSockets.
// Call this after successfully authenticating the user.
func (rl *RateLimiter) CheckWebSocketUser(ctx context.Context, userID string) error {
	userContext, err := rl.wsUser.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "WS Rate limiter store failed (User)", zap.Error(err))
		return nil // Fail open
	}

	if userContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "user").Inc()
		return fmt.Errorf("rate limit exceeded for user")
	}

	return nil
}

// StandardMiddleware allows using the standard ulule/limiter middleware if preferred
// not used currently, opting for custom logic above
func (rl *RateLimiter) StandardMiddleware() gin.HandlerFunc {
	middleware := mgin.NewMiddleware(rl.apiPublic)
	return middleware
}
