package socks

import (
	"fmt"
	"strings"
)

// Kind classifies a negotiation failure.
type Kind int

const (
	ProtocolViolation Kind = iota
	UnsupportedVersion
	UnsupportedAddressFamily
	InvalidAddress
	AuthMethodMismatch
	AuthenticationFailed
	ServerClosedConnection
	ConnectFailed
	UnknownAddressType

	// SOCKS5 reply codes 1 through 8.
	GeneralFailure
	NotAllowed
	NetworkUnreachable
	HostUnreachable
	ConnectionRefused
	TTLExpired
	CommandNotSupported
	AddressTypeNotSupported
)

var kindText = map[Kind]string{
	ProtocolViolation:        "protocol violation",
	UnsupportedVersion:       "unsupported socks version",
	UnsupportedAddressFamily: "ipv6 over socks is not supported",
	InvalidAddress:           "invalid address",
	AuthMethodMismatch:       "authentication method neither requested nor supported",
	AuthenticationFailed:     "authentication failed",
	ServerClosedConnection:   "server closed connection",
	ConnectFailed:            "socks4 request rejected",
	UnknownAddressType:       "unknown address type",
	GeneralFailure:           "general SOCKS server failure",
	NotAllowed:               "connection not allowed by ruleset",
	NetworkUnreachable:       "network unreachable",
	HostUnreachable:          "host unreachable",
	ConnectionRefused:        "connection refused",
	TTLExpired:               "TTL expired",
	CommandNotSupported:      "command not supported",
	AddressTypeNotSupported:  "address type not supported",
}

func (k Kind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a typed SOCKS negotiation failure.
type Error struct {
	Kind Kind
	// Hop is the 1-based position of the failing proxy in its chain, or 0
	// when the failure was not attributed to a chain.
	Hop int
	// Code is the observed byte when the failure was triggered by one.
	Code    byte
	HasCode bool
	// Want lists the byte values that would have been accepted.
	Want []byte
	// Msg adds context such as the input that was rejected.
	Msg string
	Err error
}

// Sentinels for use with errors.Is. Matching compares Kind only.
var (
	ErrProtocolViolation        = &Error{Kind: ProtocolViolation}
	ErrUnsupportedVersion       = &Error{Kind: UnsupportedVersion}
	ErrUnsupportedAddressFamily = &Error{Kind: UnsupportedAddressFamily}
	ErrInvalidAddress           = &Error{Kind: InvalidAddress}
	ErrAuthMethodMismatch       = &Error{Kind: AuthMethodMismatch}
	ErrAuthenticationFailed     = &Error{Kind: AuthenticationFailed}
	ErrServerClosedConnection   = &Error{Kind: ServerClosedConnection}
	ErrConnectFailed            = &Error{Kind: ConnectFailed}
	ErrUnknownAddressType       = &Error{Kind: UnknownAddressType}
	ErrGeneralFailure           = &Error{Kind: GeneralFailure}
	ErrNotAllowed               = &Error{Kind: NotAllowed}
	ErrNetworkUnreachable       = &Error{Kind: NetworkUnreachable}
	ErrHostUnreachable          = &Error{Kind: HostUnreachable}
	ErrConnectionRefused        = &Error{Kind: ConnectionRefused}
	ErrTTLExpired               = &Error{Kind: TTLExpired}
	ErrCommandNotSupported      = &Error{Kind: CommandNotSupported}
	ErrAddressTypeNotSupported  = &Error{Kind: AddressTypeNotSupported}
)

var replyKinds = [...]Kind{
	1: GeneralFailure,
	2: NotAllowed,
	3: NetworkUnreachable,
	4: HostUnreachable,
	5: ConnectionRefused,
	6: TTLExpired,
	7: CommandNotSupported,
	8: AddressTypeNotSupported,
}

// ReplyError maps a non-zero SOCKS5 reply code to its failure. Codes outside
// 1..8 yield a ProtocolViolation carrying the raw code.
func ReplyError(code byte) *Error {
	kind := ProtocolViolation
	if code != 0 && int(code) < len(replyKinds) {
		kind = replyKinds[code]
	}
	return &Error{Kind: kind, Code: code, HasCode: true}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("socks")
	if e.Hop > 0 {
		fmt.Fprintf(&b, " hop %d", e.Hop)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(" (")
		b.WriteString(e.Msg)
		b.WriteString(")")
	}
	if e.HasCode {
		fmt.Fprintf(&b, ": got 0x%02x", e.Code)
		if len(e.Want) > 0 {
			b.WriteString(", want ")
			for i, w := range e.Want {
				if i > 0 {
					b.WriteString(" or ")
				}
				fmt.Fprintf(&b, "0x%02x", w)
			}
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithHop returns a copy of e attributed to the given 1-based hop.
func (e *Error) WithHop(hop int) *Error {
	c := *e
	c.Hop = hop
	return &c
}

func unexpectedByte(kind Kind, got byte, want ...byte) *Error {
	return &Error{Kind: kind, Code: got, HasCode: true, Want: want}
}
