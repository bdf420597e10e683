package main

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"spendtrack/pkg/metrics"
	"spendtrack/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	cookieToken  = "jwtToken"
	cookieUserID = "userId"

	ctxUserID    = "userId"
	ctxRequestID = "requestId"
)

// authRequired resolves the caller from the jwtToken cookie.
func authRequired(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(cookieToken)
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Token not provided"})
			return
		}
		uid, err := tokens.Verify(raw)
		if err != nil {
			if !errors.Is(err, token.ErrTokenExpired) {
				requestLog(c).Debug("token rejected", slog.Any("error", err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Failed to authenticate token"})
			return
		}
		c.Set(ctxUserID, uid)
		c.Next()
	}
}

// requestContext tags every request with an id, reusing X-Request-ID when the caller sent one.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLog(c *gin.Context) *slog.Logger {
	return slog.Default().With(slog.String("request_id", c.GetString(ctxRequestID)))
}

// requestLogger writes one structured line per request and feeds the request metrics.
func requestLogger(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)
		status := c.Writer.Status()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Float64("duration_ms", float64(d.Nanoseconds())/float64(time.Millisecond)),
			slog.String("request_id", c.GetString(ctxRequestID)),
		}
		if uid := c.GetUint(ctxUserID); uid != 0 {
			attrs = append(attrs, slog.Uint64("user_id", uint64(uid)))
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		slog.Log(c.Request.Context(), level, "http_request", attrs...)

		if collector != nil {
			collector.RecordRequest(c.Request.Method, c.FullPath(), status, d)
		}
	}
}

// cors allows credentialed requests from a single origin.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter throttles a route group per authenticated user.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	users map[uint]*userLimiter
}

// newRateLimiter allows perMinute requests per user per minute. Zero or less disables limiting.
func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{users: make(map[uint]*userLimiter)}
	if perMinute > 0 {
		rl.limit = rate.Limit(float64(perMinute) / 60.0)
		rl.burst = perMinute
	}
	return rl
}

func (rl *rateLimiter) get(uid uint) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ul, ok := rl.users[uid]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.users[uid] = ul
	}
	ul.lastAccess = time.Now()
	return ul.limiter
}

// sweep drops limiters idle for longer than ttl.
func (rl *rateLimiter) sweep(ttl time.Duration) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for uid, ul := range rl.users {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.users, uid)
		}
	}
}

// middleware must run after authRequired.
func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.burst == 0 {
			c.Next()
			return
		}
		uid := c.GetUint(ctxUserID)
		if !rl.get(uid).Allow() {
			retry := int(math.Ceil(1.0 / float64(rl.limit)))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			requestLog(c).Warn("rate limit exceeded", slog.Uint64("user_id", uint64(uid)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests. Please try again later."})
			return
		}
		c.Next()
	}
}
