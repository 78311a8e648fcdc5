// Package limiter throttles clients that keep presenting a wrong shared secret
// to the sweep trigger.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"strings"
	"time"
)

// Limiter tracks failed secret checks per (scope, client) and places temporary lockouts.
type Limiter interface {
	// Allow reports whether the client may try now and, if not, for how long it is locked.
	Allow(ctx context.Context, scope string, client []byte) (bool, time.Duration, error)
	// Success resets the failure counter.
	Success(ctx context.Context, scope string, client []byte) error
	// Failure records a bad secret and reports whether the client is now locked.
	Failure(ctx context.Context, scope string, client []byte) (bool, time.Duration, error)
}

// ClientKey hashes a remote address so raw IPs are never stored.
// The port is ignored.
func ClientKey(remote string) []byte {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	h := sha256.Sum256([]byte(strings.Trim(host, "[]")))
	return h[:]
}
