package echoapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
)

const (
	signatureHeader  = "X-Signature"
	maxWebhookBody   = 1 << 20
	limiterIdleAfter = 10 * time.Minute
	limiterPruneSize = 1024
)

// principalMiddleware loads the principal behind the JWT subject.
// Unknown & deactivated principals are not authenticated.
func principalMiddleware(svc *principal.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			p, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return core.ErrUnauthorized
				}
				return errors.Wrap(err, "finding principal by ID")
			}
			if !p.IsActive {
				return core.ErrUnauthorized
			}
			ctx.Set(contextPrincipalKey, p)
			return next(ctx)
		}
	}
}

type (
	clientLimiter struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	// rateLimiter throttles requests per client IP with a token bucket refilled `perMinute` times a minute.
	rateLimiter struct {
		mu        sync.Mutex
		clients   map[string]*clientLimiter
		perMinute int
	}
)

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{clients: make(map[string]*clientLimiter), perMinute: perMinute}
}

func (rl *rateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.clients) >= limiterPruneSize {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > limiterIdleAfter {
				delete(rl.clients, k)
			}
		}
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (rl *rateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if rl.perMinute <= 0 {
				return next(ctx)
			}

			now := time.Now()
			res := rl.get(ctx.RealIP(), now).ReserveN(now, 1)
			if !res.OK() {
				return errTooManyRequests
			}
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				secs := int(delay.Seconds()) + 1
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// webhookSignatureMiddleware checks the hex encoded HMAC-SHA256 of the request body sent in the
// X-Signature header, then restores the body for the handler.
func webhookSignatureMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if secret == "" {
				return errHttpNotFound
			}

			req := ctx.Request()
			body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
			if err != nil {
				return errors.Wrap(err, "reading webhook body")
			}
			_ = req.Body.Close()

			sig, err := hex.DecodeString(req.Header.Get(signatureHeader))
			if err != nil || len(sig) == 0 {
				return errInvalidSignature
			}
			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			if !hmac.Equal(sig, mac.Sum(nil)) {
				return errInvalidSignature
			}

			req.Body = io.NopCloser(bytes.NewReader(body))
			return next(ctx)
		}
	}
}

// SignWebhookBody returns the X-Signature value of body.
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

