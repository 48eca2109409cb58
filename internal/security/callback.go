package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Callback URL rejections.
var (
	ErrCallbackScheme  = errors.New("callback URL scheme must be http or https")
	ErrCallbackHost    = errors.New("callback URL host is not allowed")
	ErrCallbackResolve = errors.New("callback URL host does not resolve")
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

var blockedHosts = []string{"localhost", "metadata.google.internal", "metadata.google"}

// ValidateCallbackURL checks that a payment callback URL handed to Masumi
// points at a public host. Literal IPs are checked directly; names are
// resolved with r (net.DefaultResolver when nil) and every address checked.
func ValidateCallbackURL(ctx context.Context, rawURL string, r Resolver) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ErrCallbackScheme
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrCallbackHost)
	}
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("%w: %s", ErrCallbackHost, host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return fmt.Errorf("%w: %s", ErrCallbackResolve, host)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			if err := checkIP(ip); err != nil {
				return fmt.Errorf("%s resolves to %s: %w", host, a, err)
			}
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback address", ErrCallbackHost)
	case ip.IsPrivate():
		return fmt.Errorf("%w: private address", ErrCallbackHost)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: link-local address", ErrCallbackHost)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified address", ErrCallbackHost)
	}
	return nil
}
