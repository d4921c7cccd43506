package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/roach88/flyter/internal/ir"
)

const (
	headerUserID    = "X-User-ID"
	headerSignature = "X-User-Signature"

	// callerKey is the request user value holding the verified ir.Identity.
	callerKey = "caller"

	maxIdentityLen = 128
)

// Sign returns the hex HMAC-SHA256 of userID under key. Clients send it as
// X-User-Signature alongside X-User-ID.
func Sign(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks sig against every configured key.
func verifySignature(userID, sig string, keys []string) bool {
	for _, k := range keys {
		if hmac.Equal([]byte(Sign(userID, k)), []byte(sig)) {
			return true
		}
	}
	return false
}

// authenticate resolves the caller identity of a request.
//
// With signing keys configured, X-User-Signature must verify X-User-ID.
// Without keys, X-User-ID is trusted as given. Requests without X-User-ID
// pass through anonymously; handlers that mutate require a caller.
func (s *Server) authenticate(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID := strings.TrimSpace(string(ctx.Request.Header.Peek(headerUserID)))
		sig := strings.TrimSpace(string(ctx.Request.Header.Peek(headerSignature)))

		if userID == "" {
			next(ctx)
			return
		}
		if len(userID) > maxIdentityLen {
			writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "user id too long")
			return
		}
		if len(s.cfg.SigningKeys) > 0 {
			if sig == "" || !verifySignature(userID, sig, s.cfg.SigningKeys) {
				slog.Warn("invalid signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", string(ctx.Path()))
				writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized", "missing or invalid signature")
				return
			}
		}

		ctx.SetUserValue(callerKey, ir.Identity(userID))
		next(ctx)
	}
}

// callerOf returns the authenticated caller of ctx, if any.
func callerOf(ctx *fasthttp.RequestCtx) (ir.Identity, bool) {
	id, ok := ctx.UserValue(callerKey).(ir.Identity)
	return id, ok && id != ""
}

// limiterPool holds one token bucket per caller, or per remote address for
// anonymous requests.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether key may make a request now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (s *Server) rateLimit(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		key := "ip:" + ctx.RemoteIP().String()
		if caller, ok := callerOf(ctx); ok {
			key = "user:" + string(caller)
		}
		if !s.limiters.Allow(key) {
			slog.Warn("rate limited", "key", key, "path", string(ctx.Path()))
			writeError(ctx, fasthttp.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next(ctx)
	}
}
