package socks

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostIPv4RoundTrip(t *testing.T) {
	octets := []byte{0, 1, 9, 10, 99, 100, 127, 128, 199, 200, 254, 255}
	for _, a := range octets {
		for _, d := range octets {
			host := fmt.Sprintf("%d.%d.%d.%d", a, d, 255-a, 255-d)

			enc, err := EncodeSOCKS5Addr(host)
			require.NoError(t, err)
			require.Equal(t, []byte{0x01, a, d, 255 - a, 255 - d}, enc)

			got, err := DecodeSOCKS5Addr(bytes.NewReader(enc[1:]), enc[0])
			require.NoError(t, err)
			assert.Equal(t, host, got)
		}
	}
}

func TestParseHostDomainRoundTrip(t *testing.T) {
	hosts := []string{
		"example.com",
		"a",
		"localhost",
		"cafe",
		"xn--bcher-kva.example",
		"1.2.3",
		"1.2.3.4.5",
		strings.Repeat("a", 255),
	}

	for _, host := range hosts {
		t.Run(host[:min(len(host), 20)], func(t *testing.T) {
			enc, err := EncodeSOCKS5Addr(host)
			require.NoError(t, err)
			require.Equal(t, byte(0x03), enc[0])
			require.Equal(t, byte(len(host)), enc[1])

			got, err := DecodeSOCKS5Addr(bytes.NewReader(enc[1:]), enc[0])
			require.NoError(t, err)
			assert.Equal(t, host, got)
		})
	}
}

func TestParseHostRejects(t *testing.T) {
	tests := []struct {
		host string
		want *Error
	}{
		{host: "::1", want: ErrUnsupportedAddressFamily},
		{host: "[::1]", want: ErrUnsupportedAddressFamily},
		{host: "2001:db8::7", want: ErrUnsupportedAddressFamily},
		{host: "fe80::1:2", want: ErrUnsupportedAddressFamily},
		{host: "::ffff:192.0.2.1", want: ErrUnsupportedAddressFamily},
		{host: "example.com:80", want: ErrInvalidAddress},
		{host: "", want: ErrInvalidAddress},
		{host: strings.Repeat("a", 256), want: ErrInvalidAddress},
		{host: "256.1.1.1", want: ErrInvalidAddress},
		{host: "1.2.3.999", want: ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.host[:min(len(tt.host), 20)], func(t *testing.T) {
			_, err := ParseHost(tt.host)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeSOCKS5Bound(t *testing.T) {
	ipv6 := []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0x01}

	tests := []struct {
		name string
		atyp byte
		in   []byte
		want Bound
	}{
		{name: "ipv4", atyp: 0x01, in: []byte{192, 0, 2, 1, 0x04, 0x38}, want: Bound{Host: "192.0.2.1", Port: 1080}},
		{name: "domain", atyp: 0x03, in: append([]byte{4}, "host\x00\x50"...), want: Bound{Host: "host", Port: 80}},
		{name: "ipv6", atyp: 0x04, in: append(ipv6, 0x01, 0xbb), want: Bound{Host: "2001:0db8:0000:0000:0000:0000:0000:0001", Port: 443}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSOCKS5Bound(bytes.NewReader(tt.in), tt.atyp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSOCKS5AddrErrors(t *testing.T) {
	_, err := DecodeSOCKS5Addr(bytes.NewReader([]byte{1, 2, 3, 4}), 0x09)
	require.ErrorIs(t, err, ErrUnknownAddressType)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, byte(0x09), se.Code)

	_, err = DecodeSOCKS5Addr(bytes.NewReader([]byte{1, 2}), 0x01)
	assert.ErrorIs(t, err, ErrServerClosedConnection)
}
