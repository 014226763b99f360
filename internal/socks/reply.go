package socks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	socks4ReplyVersion byte = 0x00
	socks4Granted      byte = 0x5a
)

// readN reads exactly n bytes. A short read means the peer closed the
// connection.
func readN(r io.Reader, n int, what string) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &Error{Kind: ServerClosedConnection, Msg: "reading " + what, Err: err}
		}
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return b, nil
}

// readSOCKS5Reply parses VER REP RSV ATYP BND.ADDR BND.PORT. Nothing past
// REP is read when the request failed.
func readSOCKS5Reply(r io.Reader) (Bound, error) {
	hdr, err := readN(r, 4, "reply")
	if err != nil {
		return Bound{}, err
	}
	if hdr[0] != txsocks5.Ver {
		return Bound{}, unexpectedByte(UnsupportedVersion, hdr[0], txsocks5.Ver)
	}
	if hdr[1] != txsocks5.RepSuccess {
		return Bound{}, ReplyError(hdr[1])
	}
	return DecodeSOCKS5Bound(r, hdr[3])
}

// readSOCKS4Reply parses the fixed 8 byte SOCKS4 reply.
func readSOCKS4Reply(r io.Reader) (Bound, error) {
	b, err := readN(r, 8, "socks4 reply")
	if err != nil {
		return Bound{}, err
	}
	if b[0] != socks4ReplyVersion {
		return Bound{}, unexpectedByte(ConnectFailed, b[0], socks4ReplyVersion)
	}
	if b[1] != socks4Granted {
		return Bound{}, unexpectedByte(ConnectFailed, b[1], socks4Granted)
	}
	return Bound{
		Host: netip.AddrFrom4([4]byte(b[4:8])).String(),
		Port: int(binary.BigEndian.Uint16(b[2:4])),
	}, nil
}
