package wire_test

import (
	"bytes"
	"testing"

	"github.com/VincentDu2021/uring-sync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame wire.Frame
	}{
		{name: "empty payload", frame: wire.Frame{Type: wire.MsgAllDone}},
		{name: "small payload", frame: wire.Frame{Type: wire.MsgHelloFail, Payload: []byte{1}}},
		{name: "large payload", frame: wire.Frame{Type: wire.MsgFileHdr, Payload: bytes.Repeat([]byte("a"), 4096)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, wire.WriteFrame(&buf, tt.frame))

			got, err := wire.ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.frame.Type, got.Type)
			assert.Equal(t, tt.frame.Payload, got.Payload)
		})
	}
}

func TestHelloRoundTrip(t *testing.T) {
	t.Parallel()

	m := wire.HelloMsg{Version: wire.ProtocolVersion, Secret: "abc123"}
	copy(m.Nonce[:], bytes.Repeat([]byte{0x11}, wire.NonceSize))

	f := wire.EncodeHello(m)
	assert.Equal(t, wire.MsgHello, f.Type)

	got, err := wire.DecodeHello(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFileHdrRoundTrip(t *testing.T) {
	t.Parallel()

	m := wire.FileHdrMsg{Size: 327680, Mode: 0o640, Path: "sub/dir/file.bin"}
	f, err := wire.EncodeFileHdr(m)
	require.NoError(t, err)

	got, err := wire.DecodeFileHdr(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEncodeFileHdr_RejectsUnsafePath(t *testing.T) {
	t.Parallel()

	_, err := wire.EncodeFileHdr(wire.FileHdrMsg{Path: "/etc/passwd"})
	assert.ErrorIs(t, err, wire.ErrUnsafePath)

	_, err = wire.EncodeFileHdr(wire.FileHdrMsg{Path: "../escape"})
	assert.ErrorIs(t, err, wire.ErrUnsafePath)
}

func TestIsSafePath(t *testing.T) {
	t.Parallel()

	safe := []string{"a.txt", "sub/dir/file.bin", "a.b.c.txt"}
	unsafe := []string{"", "/abs/path", "../escape", "sub/../escape", "a..b.txt", "a\x00b"}

	for _, p := range safe {
		assert.True(t, wire.IsSafePath(p), "expected safe: %q", p)
	}
	for _, p := range unsafe {
		assert.False(t, wire.IsSafePath(p), "expected unsafe: %q", p)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	t.Parallel()

	f := wire.EncodeError(1, "secret mismatch")
	code, msg, err := wire.DecodeError(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), code)
	assert.Equal(t, "secret mismatch", msg)
}

func TestDeriveKeys_Deterministic(t *testing.T) {
	t.Parallel()

	var senderNonce, receiverNonce [wire.NonceSize]byte
	copy(senderNonce[:], bytes.Repeat([]byte{0x11}, wire.NonceSize))
	copy(receiverNonce[:], bytes.Repeat([]byte{0x22}, wire.NonceSize))

	km1, err := wire.DeriveKeys("abc123", senderNonce, receiverNonce)
	require.NoError(t, err)
	km2, err := wire.DeriveKeys("abc123", senderNonce, receiverNonce)
	require.NoError(t, err)
	assert.Equal(t, km1, km2)

	kmOther, err := wire.DeriveKeys("different", senderNonce, receiverNonce)
	require.NoError(t, err)
	assert.NotEqual(t, km1, kmOther)
}
