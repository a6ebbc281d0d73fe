package stream

import (
	"errors"
	"sync"
)

// DefaultMaxTotal caps open streams across all clients.
const DefaultMaxTotal = 1000

var (
	errPerIPLimit = errors.New("per-client stream limit reached")
	errTotalLimit = errors.New("server stream limit reached")
)

// streamLimiter counts open streams per client IP and overall.
type streamLimiter struct {
	mu       sync.Mutex
	byIP     map[string]int
	open     int
	perIP    int
	maxTotal int
}

func newStreamLimiter(perIP, maxTotal int) *streamLimiter {
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}
	return &streamLimiter{byIP: make(map[string]int), perIP: perIP, maxTotal: maxTotal}
}

// acquire takes a slot for ip. The returned func frees it and is safe to
// call more than once; it is nil when err is non-nil.
func (l *streamLimiter) acquire(ip string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.open >= l.maxTotal:
		return nil, errTotalLimit
	case l.byIP[ip] >= l.perIP:
		return nil, errPerIPLimit
	}
	l.byIP[ip]++
	l.open++

	var once sync.Once
	return func() { once.Do(func() { l.free(ip) }) }, nil
}

func (l *streamLimiter) free(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.open--
	if n := l.byIP[ip] - 1; n > 0 {
		l.byIP[ip] = n
	} else {
		delete(l.byIP, ip)
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byIP[ip]
}

func (l *streamLimiter) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}
