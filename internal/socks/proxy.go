package socks

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Version selects the wire protocol spoken to a proxy hop.
type Version uint8

const (
	// SOCKS4 can only carry IPv4 addresses. Domain names are resolved
	// locally before the request is sent, which leaks the lookup to the
	// local resolver.
	SOCKS4 Version = 4
	// SOCKS5 is RFC 1928 with optional RFC 1929 authentication.
	SOCKS5 Version = 5
	// SOCKS4a speaks version 4 on the wire and passes domain names to the
	// proxy for resolution.
	SOCKS4a Version = 0x4a
)

// wireVersion is the version byte sent to the proxy.
func (v Version) wireVersion() byte {
	if v == SOCKS4a {
		return byte(SOCKS4)
	}
	return byte(v)
}

func (v Version) String() string {
	switch v {
	case SOCKS4:
		return "socks4"
	case SOCKS4a:
		return "socks4a"
	case SOCKS5:
		return "socks5"
	default:
		return "socks(" + strconv.Itoa(int(v)) + ")"
	}
}

// ParseVersion parses the names produced by Version.String. "socks" and
// "socks5h" are accepted for socks5.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(s) {
	case "socks4", "4":
		return SOCKS4, nil
	case "socks4a", "4a":
		return SOCKS4a, nil
	case "socks5", "socks5h", "socks", "5":
		return SOCKS5, nil
	default:
		return 0, fmt.Errorf("unknown socks version %q", s)
	}
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalJSON accepts either a version name or a bare number such as 5.
func (v *Version) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if len(b) > 0 && b[0] != '"' {
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("socks version: %w", err)
		}
		s = strconv.Itoa(n)
	} else if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("socks version: %w", err)
	}
	return v.UnmarshalText([]byte(s))
}

// Proxy describes one proxy hop. The zero Version is invalid.
type Proxy struct {
	Host     string  `json:"host" validate:"required,max=255"`
	Port     int     `json:"port" validate:"gte=1,lte=65535"`
	Version  Version `json:"version" validate:"oneof=4 5 74"`
	User     string  `json:"user,omitempty" validate:"max=255"`
	Password string  `json:"password,omitempty" validate:"max=255"`
}

// HasAuth reports whether username/password authentication is configured.
func (p Proxy) HasAuth() bool {
	return p.User != "" || p.Password != ""
}

// Addr returns host:port suitable for dialing the proxy.
func (p Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String renders the proxy as a URI without the password.
func (p Proxy) String() string {
	user := ""
	if p.User != "" {
		user = p.User + "@"
	}
	return p.Version.String() + "://" + user + p.Addr()
}

// Destination is the final target of a tunnel.
type Destination struct {
	Host string `validate:"required"`
	Port int    `validate:"gte=0,lte=65535"`
}

// ParseDestination splits a host:port address.
func ParseDestination(address string) (Destination, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return Destination{}, fmt.Errorf("invalid destination %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Destination{}, fmt.Errorf("invalid destination port %q: %w", portStr, err)
	}
	return Destination{Host: host, Port: int(port)}, nil
}

func (d Destination) String() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Bound is the address and port a proxy reports as bound in its reply. For
// CONNECT it is informational only.
type Bound struct {
	Host string
	Port int
}

func (b Bound) String() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}
