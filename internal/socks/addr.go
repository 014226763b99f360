package socks

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	txsocks5 "github.com/txthinking/socks5"
)

// AddrKind is the wire classification of a destination host.
type AddrKind int

const (
	AddrIPv4 AddrKind = iota + 1
	AddrDomain
)

// Host is a destination host classified for encoding.
type Host struct {
	Kind   AddrKind
	IPv4   [4]byte
	Domain string
}

var ipv6Literal = regexp.MustCompile(`^[0-9a-fA-F]*:[:0-9a-fA-F]*$`)

// ParseHost classifies host. Dotted-quad literals become IPv4, IPv6 literals
// are rejected with UnsupportedAddressFamily, and everything else is a domain
// name of at most 255 bytes.
func ParseHost(host string) (Host, error) {
	if ip, ok, err := parseDottedQuad(host); ok {
		if err != nil {
			return Host{}, err
		}
		return Host{Kind: AddrIPv4, IPv4: ip}, nil
	}

	if strings.Contains(host, ":") {
		literal := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		if _, err := netip.ParseAddr(literal); err == nil || ipv6Literal.MatchString(literal) {
			return Host{}, &Error{Kind: UnsupportedAddressFamily, Msg: host}
		}
		return Host{}, &Error{Kind: InvalidAddress, Msg: fmt.Sprintf("%q contains ':'", host)}
	}

	if host == "" {
		return Host{}, &Error{Kind: InvalidAddress, Msg: "empty host"}
	}
	if len(host) > 255 {
		return Host{}, &Error{Kind: InvalidAddress, Msg: fmt.Sprintf("host name is %d bytes, max 255", len(host))}
	}
	return Host{Kind: AddrDomain, Domain: host}, nil
}

// parseDottedQuad reports ok when s has the d.d.d.d shape. err is set when
// an octet does not fit in a byte.
func parseDottedQuad(s string) (ip [4]byte, ok bool, err error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ip, false, nil
	}
	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return ip, false, nil
		}
	}
	for i, p := range parts {
		n, perr := strconv.ParseUint(p, 10, 8)
		if perr != nil {
			return ip, true, &Error{Kind: InvalidAddress, Msg: fmt.Sprintf("octet %q of %q", p, s), Err: perr}
		}
		ip[i] = byte(n)
	}
	return ip, true, nil
}

func (h Host) String() string {
	if h.Kind == AddrIPv4 {
		return netip.AddrFrom4(h.IPv4).String()
	}
	return h.Domain
}

// SOCKS5 returns the ATYP byte and address bytes for a SOCKS5 request. Domain
// names are returned without their length prefix.
func (h Host) SOCKS5() (atyp byte, addr []byte) {
	if h.Kind == AddrIPv4 {
		return txsocks5.ATYPIPv4, h.IPv4[:]
	}
	return txsocks5.ATYPDomain, []byte(h.Domain)
}

// EncodeSOCKS5Addr returns the full SOCKS5 ATYP + DST.ADDR encoding of host,
// including the length prefix for domain names.
func EncodeSOCKS5Addr(host string) ([]byte, error) {
	h, err := ParseHost(host)
	if err != nil {
		return nil, err
	}
	atyp, addr := h.SOCKS5()
	b := []byte{atyp}
	if atyp == txsocks5.ATYPDomain {
		b = append(b, byte(len(addr)))
	}
	return append(b, addr...), nil
}

func portBytes(port int) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(port))
}

// DecodeSOCKS5Addr reads a BND.ADDR of the given type from r. IPv6 addresses
// render as eight colon-separated groups of four hex digits.
func DecodeSOCKS5Addr(r io.Reader, atyp byte) (string, error) {
	switch atyp {
	case txsocks5.ATYPIPv4:
		b, err := readN(r, 4, "bound ipv4 address")
		if err != nil {
			return "", err
		}
		return netip.AddrFrom4([4]byte(b)).String(), nil
	case txsocks5.ATYPDomain:
		n, err := readN(r, 1, "bound domain length")
		if err != nil {
			return "", err
		}
		b, err := readN(r, int(n[0]), "bound domain")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case txsocks5.ATYPIPv6:
		b, err := readN(r, 16, "bound ipv6 address")
		if err != nil {
			return "", err
		}
		groups := make([]string, 8)
		for i := range groups {
			groups[i] = hex.EncodeToString(b[2*i : 2*i+2])
		}
		return strings.Join(groups, ":"), nil
	default:
		return "", unexpectedByte(UnknownAddressType, atyp, txsocks5.ATYPIPv4, txsocks5.ATYPDomain, txsocks5.ATYPIPv6)
	}
}

// DecodeSOCKS5Bound reads BND.ADDR and BND.PORT.
func DecodeSOCKS5Bound(r io.Reader, atyp byte) (Bound, error) {
	host, err := DecodeSOCKS5Addr(r, atyp)
	if err != nil {
		return Bound{}, err
	}
	p, err := readN(r, 2, "bound port")
	if err != nil {
		return Bound{}, err
	}
	return Bound{Host: host, Port: int(binary.BigEndian.Uint16(p))}, nil
}
