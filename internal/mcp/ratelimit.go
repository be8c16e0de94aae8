package mcp

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateLimiter is a per-client token bucket. Loopback clients are exempt.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rps     float64
	burst   int
	now     func() time.Time
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

func newRateLimiter(rps float64, burst int, now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		buckets: make(map[string]*tokenBucket),
		rps:     rps,
		burst:   burst,
		now:     now,
	}
}

func (l *rateLimiter) allow(client string) bool {
	if l == nil || l.rps <= 0 || l.burst <= 0 {
		return true
	}
	if client == "" || isLoopback(client) {
		return true
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[client]
	if !ok {
		l.buckets[client] = &tokenBucket{tokens: float64(l.burst - 1), lastSeen: now}
		return true
	}

	if elapsed := now.Sub(bucket.lastSeen).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(l.burst), bucket.tokens+elapsed*l.rps)
	}
	bucket.lastSeen = now
	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// retryAfter is the whole number of seconds until one token refills.
func (l *rateLimiter) retryAfter() string {
	if l == nil || l.rps <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(1/l.rps))))
}

// cleanup forgets clients idle for longer than maxAge.
func (l *rateLimiter) cleanup(maxAge time.Duration) int {
	if l == nil || maxAge <= 0 {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for client, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > maxAge {
			delete(l.buckets, client)
			removed++
		}
	}
	return removed
}

// trustedProxies decides when X-Forwarded-For may identify the client.
type trustedProxies []*net.IPNet

func parseTrustedProxies(values []string) trustedProxies {
	var out trustedProxies
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(v); err == nil {
			out = append(out, network)
			continue
		}
		if ip := net.ParseIP(v); ip != nil {
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return out
}

func (t trustedProxies) contains(addr string) bool {
	ip := net.ParseIP(normalizeIP(addr))
	if ip == nil {
		return false
	}
	for _, network := range t {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP identifies the caller. The peer address is used unless it is a
// trusted proxy, in which case X-Forwarded-For is walked from the right and
// the first untrusted hop wins; left-most entries are client-controlled.
func (t trustedProxies) clientIP(r *http.Request) string {
	peer := normalizeIP(r.RemoteAddr)
	if !t.contains(peer) {
		return peer
	}
	xff := r.Header.Get("X-Forwarded-For")
	if strings.TrimSpace(xff) == "" {
		return peer
	}
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := normalizeIP(hops[i])
		if hop == "" {
			continue
		}
		if !t.contains(hop) {
			return hop
		}
	}
	return peer
}

func normalizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	if i := strings.Index(addr, "%"); i >= 0 {
		addr = addr[:i]
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return strings.ToLower(addr)
}

func isLoopback(addr string) bool {
	if strings.EqualFold(addr, "localhost") {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
