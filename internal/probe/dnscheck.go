package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Target classes reported by Resolve.
const (
	ClassIPLiteral   = "IP_LITERAL"
	ClassResolves    = "RESOLVES"
	ClassNXDomain    = "NXDOMAIN"
	ClassNoAddress   = "NO_A_RECORD"
	ClassTemporary   = "SERVFAIL_or_TIMEOUT"
	ClassInvalidName = "INVALID_NAME"
)

// ErrUnresolvable is returned by Resolve for any target that cannot be probed.
var ErrUnresolvable = errors.New("target does not resolve")

// TargetStatus describes how the monitored host identifier resolved.
type TargetStatus struct {
	Host          string
	IPs           []net.IP
	Class         string
	ResolverError string
}

// Usable reports whether the target can be probed at all.
func (s TargetStatus) Usable() bool {
	return s.Class == ClassIPLiteral || s.Class == ClassResolves
}

var dnsTimeout = 3 * time.Second

// Lookup is the resolver used by Resolve; tests swap it.
var Lookup = func(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// Resolve classifies host. IP literals never touch DNS. The returned error
// wraps ErrUnresolvable whenever Usable would be false.
func Resolve(ctx context.Context, host string) (TargetStatus, error) {
	s := TargetStatus{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.Contains(s.Host, "://") || strings.ContainsAny(s.Host, " /") {
		s.Class = ClassInvalidName
		return s, fmt.Errorf("%w: %q is not a host name or address", ErrUnresolvable, host)
	}
	if ip := net.ParseIP(s.Host); ip != nil {
		s.IPs = []net.IP{ip}
		s.Class = ClassIPLiteral
		return s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := Lookup(ctx, s.Host)
	switch {
	case err == nil && len(ips) > 0:
		s.IPs = ips
		s.Class = ClassResolves
		return s, nil
	case err == nil:
		s.Class = ClassNoAddress
	default:
		s.ResolverError = err.Error()
		s.Class = ClassTemporary
		var de *net.DNSError
		if errors.As(err, &de) && de.IsNotFound {
			s.Class = ClassNXDomain
		}
	}
	return s, fmt.Errorf("%w: %s (%s)", ErrUnresolvable, s.Host, s.Class)
}
