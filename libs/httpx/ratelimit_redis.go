package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every replica through Redis.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	hops   int
}

var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

// TrustProxyHops makes the limiter key on X-Forwarded-For, trusting the last
// n entries as appended by proxies this service runs behind. With n == 0 the
// header is ignored.
func (rl *RedisRateLimiter) TrustProxyHops(n int) *RedisRateLimiter {
	rl.hops = max(n, 0)
	return rl
}

// Allow counts one hit for key in the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := fixedWindowScript.Run(ctx, rl.rdb, []string{rl.prefix + ":" + key}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(rl.limit), nil
}

// Middleware limits by client address. With failOpen, Redis errors let the
// request through instead of answering 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := rl.Allow(r.Context(), ClientAddr(r, rl.hops))
			switch {
			case err != nil:
				logger.Warn("rate limiter unavailable", "err", err, "request_id", RequestIDFromContext(r.Context()))
				if !failOpen {
					WriteError(w, r, http.StatusServiceUnavailable, "rate limiter unavailable")
					return
				}
			case !ok:
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientAddr returns the caller's address. With trustedHops > 0 it reads the
// X-Forwarded-For entry that many hops from the right, since entries further
// left are whatever the client sent. Otherwise it uses the socket address.
func ClientAddr(r *http.Request, trustedHops int) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustedHops > 0 && fwd != "" {
		hops := strings.Split(fwd, ",")
		i := max(len(hops)-trustedHops, 0)
		if addr := strings.TrimSpace(hops[i]); addr != "" {
			return addr
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
