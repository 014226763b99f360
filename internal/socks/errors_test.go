package socks

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyError(t *testing.T) {
	want := map[byte]*Error{
		1: ErrGeneralFailure,
		2: ErrNotAllowed,
		3: ErrNetworkUnreachable,
		4: ErrHostUnreachable,
		5: ErrConnectionRefused,
		6: ErrTTLExpired,
		7: ErrCommandNotSupported,
		8: ErrAddressTypeNotSupported,
	}

	for code := 0; code <= 0xff; code++ {
		err := ReplyError(byte(code))
		require.NotNil(t, err)
		assert.Equal(t, byte(code), err.Code)
		if w, ok := want[byte(code)]; ok {
			assert.ErrorIs(t, err, w, "code %d", code)
			continue
		}
		assert.ErrorIs(t, err, ErrProtocolViolation, "code %d", code)
		assert.Contains(t, err.Error(), fmt.Sprintf("0x%02x", code))
	}
}

func TestErrorMessage(t *testing.T) {
	err := unexpectedByte(UnsupportedVersion, 0x06, 0x04, 0x05).WithHop(2)
	assert.Equal(t, "socks hop 2: unsupported socks version: got 0x06, want 0x04 or 0x05", err.Error())

	closed := &Error{Kind: ServerClosedConnection, Msg: "reading reply", Err: io.EOF}
	assert.Equal(t, "socks: server closed connection (reading reply): EOF", closed.Error())
	assert.ErrorIs(t, closed, io.EOF)
}

func TestErrorIsMatchesKindOnly(t *testing.T) {
	err := fmt.Errorf("dial: %w", ReplyError(4).WithHop(3))

	assert.ErrorIs(t, err, ErrHostUnreachable)
	assert.NotErrorIs(t, err, ErrConnectionRefused)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Hop)
	assert.Equal(t, HostUnreachable, se.Kind)
}
