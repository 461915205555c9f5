package replica

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Addr is a Redis endpoint.
type Addr struct {
	Host string
	Port int
}

// String renders the dial form "host:port".
func (a Addr) String() string { return net.JoinHostPort(a.Host, strconv.Itoa(a.Port)) }

// Record renders the arbiter form "host port". Other tooling reads the
// arbiter table, so the format is fixed.
func (a Addr) Record() string { return a.Host + " " + strconv.Itoa(a.Port) }

func (a Addr) IsZero() bool { return a.Host == "" && a.Port == 0 }

// Equal compares hosts case-insensitively.
func (a Addr) Equal(b Addr) bool {
	return a.Port == b.Port && strings.EqualFold(a.Host, b.Host)
}

// ParseAddr accepts "host:port", "[v6]:port" and the arbiter form "host port".
func ParseAddr(s string) (Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Addr{}, fmt.Errorf("replica: empty address")
	}

	var host, port string
	if fields := strings.Fields(s); len(fields) == 2 {
		host, port = fields[0], fields[1]
	} else {
		h, p, err := net.SplitHostPort(s)
		if err != nil {
			return Addr{}, fmt.Errorf("replica: parse address %q: %w", s, err)
		}
		host, port = h, p
	}

	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return Addr{}, fmt.Errorf("replica: invalid port in %q", s)
	}
	if host == "" {
		return Addr{}, fmt.Errorf("replica: missing host in %q", s)
	}
	return Addr{Host: host, Port: n}, nil
}

// MustParseAddr is like ParseAddr but panics on error.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}
