package failover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultMetadataURL is the EC2-style instance metadata endpoint returning
// the private IPv4 address.
const DefaultMetadataURL = "http://169.254.169.254/latest/meta-data/local-ipv4"

var ErrNoAddress = errors.New("failover: could not resolve own address")

// Resolver finds the address other replicas reach this host on. An empty
// result with a nil error means "no answer, try the next source".
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

type ResolverFunc func(ctx context.Context) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context) (string, error) { return f(ctx) }

// Chain asks each resolver in order and returns the first non-empty answer.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context) (string, error) {
	var errs []error
	for _, r := range c {
		host, err := r.Resolve(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if host != "" {
			return host, nil
		}
	}
	return "", errors.Join(append([]error{ErrNoAddress}, errs...)...)
}

// File reads an override address from path. A missing file, or an empty
// path, is no answer.
func File(path string) Resolver {
	return ResolverFunc(func(context.Context) (string, error) {
		if path == "" {
			return "", nil
		}
		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failover: read ip file: %w", err)
		}
		return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "", "\t", "").Replace(string(b))), nil
	})
}

// DNS resolves the hostname and returns its first non-loopback IPv4.
func DNS() Resolver {
	return dnsResolver{hostname: os.Hostname, lookup: net.DefaultResolver.LookupHost}
}

type dnsResolver struct {
	hostname func() (string, error)
	lookup   func(ctx context.Context, host string) ([]string, error)
}

func (d dnsResolver) Resolve(ctx context.Context) (string, error) {
	name, err := d.hostname()
	if err != nil {
		return "", fmt.Errorf("failover: hostname: %w", err)
	}
	addrs, err := d.lookup(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failover: lookup %s: %w", name, err)
	}
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil || ip.IsLoopback() || ip.To4() == nil {
			continue
		}
		return ip.String(), nil
	}
	return "", nil
}

// Metadata asks a cloud instance metadata endpoint. A nil client uses one
// with a 2s timeout.
func Metadata(url string, client *http.Client) Resolver {
	if url == "" {
		url = DefaultMetadataURL
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return ResolverFunc(func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("failover: metadata request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("failover: metadata: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("failover: metadata: unexpected status %d", resp.StatusCode)
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, 256))
		if err != nil {
			return "", fmt.Errorf("failover: metadata body: %w", err)
		}
		ip := strings.TrimSpace(string(b))
		if net.ParseIP(ip) == nil {
			return "", fmt.Errorf("failover: metadata returned %q", ip)
		}
		return ip, nil
	})
}

// DefaultResolver is File(ipFile), then DNS, then Metadata(metadataURL).
func DefaultResolver(ipFile, metadataURL string) Resolver {
	return Chain{File(ipFile), DNS(), Metadata(metadataURL, nil)}
}
