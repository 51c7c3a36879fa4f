// Package wire implements the uring-sync network wire protocol (§4.H):
// a byte-for-byte framing with a fixed 5-byte header (type + LE length)
// followed by the payload, and the message builders/parsers for the
// handshake and file-transfer control messages.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies the kind of message on the wire.
type MsgType byte

const (
	MsgHello     MsgType = 0x01
	MsgHelloOK   MsgType = 0x02
	MsgHelloFail MsgType = 0x03
	MsgFileHdr   MsgType = 0x10
	// MsgFileData and MsgFileEnd are reserved for forward compatibility.
	// The current protocol version streams raw bytes after FILE_HDR
	// without per-chunk framing; these must never be emitted or expected.
	MsgFileData MsgType = 0x11
	MsgFileEnd  MsgType = 0x12
	MsgAllDone  MsgType = 0x20
	MsgError    MsgType = 0xFF
)

const (
	// HeaderSize is the fixed type+length prefix on every frame.
	HeaderSize = 5

	// ProtocolVersion 2 adds the HELLO/HELLO_OK nonces used for kTLS key
	// derivation (§4.I).
	ProtocolVersion = 2

	NonceSize = 16

	MaxSecretLen  = 64
	MaxPathLen    = 4096
	MaxErrMsgLen  = 256
	MaxPayloadLen = 1 << 20
)

var (
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum size")
	ErrShortPayload    = errors.New("wire: payload too short")
	ErrUnsafePath      = errors.New("wire: unsafe path")
)

// Frame is a single header+payload unit on the wire.
type Frame struct {
	Type    MsgType
	Payload []byte
}

// WriteFrame writes a frame as one combined header+payload write, matching
// the base repo's single-syscall framing discipline.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadLen {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(f.Payload))) //nolint:gosec // G115: bounded by MaxPayloadLen
	copy(buf[HeaderSize:], f.Payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	payloadLen := binary.LittleEndian.Uint32(header[1:5])
	if payloadLen > MaxPayloadLen {
		return Frame{}, ErrPayloadTooLarge
	}
	f := Frame{Type: MsgType(header[0])}
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return f, nil
}

// HelloMsg is the sender's handshake offer: protocol version, shared
// secret, and a nonce contributed to kTLS key derivation (§4.I).
type HelloMsg struct {
	Version uint8
	Secret  string
	Nonce   [NonceSize]byte
}

// EncodeHello builds a HELLO frame. Format: version(1) + secret_len(1) +
// secret(N) + nonce(16).
func EncodeHello(m HelloMsg) Frame {
	secret := m.Secret
	if len(secret) > MaxSecretLen {
		secret = secret[:MaxSecretLen]
	}
	payload := make([]byte, 2+len(secret)+NonceSize)
	payload[0] = m.Version
	payload[1] = byte(len(secret)) //nolint:gosec // G115: bounded by MaxSecretLen
	copy(payload[2:], secret)
	copy(payload[2+len(secret):], m.Nonce[:])
	return Frame{Type: MsgHello, Payload: payload}
}

// DecodeHello parses a HELLO payload.
func DecodeHello(payload []byte) (HelloMsg, error) {
	if len(payload) < 2 {
		return HelloMsg{}, ErrShortPayload
	}
	secretLen := int(payload[1])
	if len(payload) < 2+secretLen+NonceSize {
		return HelloMsg{}, ErrShortPayload
	}
	var m HelloMsg
	m.Version = payload[0]
	m.Secret = string(payload[2 : 2+secretLen])
	copy(m.Nonce[:], payload[2+secretLen:2+secretLen+NonceSize])
	return m, nil
}

// EncodeHelloOK builds a HELLO_OK frame carrying the receiver's nonce.
func EncodeHelloOK(nonce [NonceSize]byte) Frame {
	return Frame{Type: MsgHelloOK, Payload: append([]byte{}, nonce[:]...)}
}

// DecodeHelloOK parses a HELLO_OK payload.
func DecodeHelloOK(payload []byte) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if len(payload) < NonceSize {
		return nonce, ErrShortPayload
	}
	copy(nonce[:], payload[:NonceSize])
	return nonce, nil
}

// EncodeHelloFail builds a HELLO_FAIL frame with a single reason byte.
func EncodeHelloFail(reason uint8) Frame {
	return Frame{Type: MsgHelloFail, Payload: []byte{reason}}
}

// DecodeHelloFail parses a HELLO_FAIL payload.
func DecodeHelloFail(payload []byte) (uint8, error) {
	if len(payload) < 1 {
		return 0, ErrShortPayload
	}
	return payload[0], nil
}

// FileHdrMsg announces one file about to be streamed; size/mode/path.
// The file's raw bytes follow this frame directly on the wire (§9: no
// per-chunk FILE_DATA framing in this protocol version).
type FileHdrMsg struct {
	Size uint64
	Mode uint32
	Path string
}

// EncodeFileHdr builds a FILE_HDR frame. Format: size(8) + mode(4) +
// path_len(2) + path(N).
func EncodeFileHdr(m FileHdrMsg) (Frame, error) {
	if !IsSafePath(m.Path) {
		return Frame{}, ErrUnsafePath
	}
	path := m.Path
	if len(path) > MaxPathLen {
		path = path[:MaxPathLen]
	}
	payload := make([]byte, 14+len(path))
	binary.LittleEndian.PutUint64(payload[0:8], m.Size)
	binary.LittleEndian.PutUint32(payload[8:12], m.Mode)
	binary.LittleEndian.PutUint16(payload[12:14], uint16(len(path))) //nolint:gosec // G115: bounded by MaxPathLen
	copy(payload[14:], path)
	return Frame{Type: MsgFileHdr, Payload: payload}, nil
}

// DecodeFileHdr parses a FILE_HDR payload.
func DecodeFileHdr(payload []byte) (FileHdrMsg, error) {
	if len(payload) < 14 {
		return FileHdrMsg{}, ErrShortPayload
	}
	pathLen := int(binary.LittleEndian.Uint16(payload[12:14]))
	if len(payload) < 14+pathLen {
		return FileHdrMsg{}, ErrShortPayload
	}
	m := FileHdrMsg{
		Size: binary.LittleEndian.Uint64(payload[0:8]),
		Mode: binary.LittleEndian.Uint32(payload[8:12]),
		Path: string(payload[14 : 14+pathLen]),
	}
	if !IsSafePath(m.Path) {
		return FileHdrMsg{}, ErrUnsafePath
	}
	return m, nil
}

// EncodeAllDone builds the empty ALL_DONE frame.
func EncodeAllDone() Frame { return Frame{Type: MsgAllDone} }

// EncodeError builds an ERROR frame. Format: code(1) + msg_len(2) + msg(N).
func EncodeError(code uint8, message string) Frame {
	if len(message) > MaxErrMsgLen {
		message = message[:MaxErrMsgLen]
	}
	payload := make([]byte, 3+len(message))
	payload[0] = code
	binary.LittleEndian.PutUint16(payload[1:3], uint16(len(message))) //nolint:gosec // G115: bounded by MaxErrMsgLen
	copy(payload[3:], message)
	return Frame{Type: MsgError, Payload: payload}
}

// DecodeError parses an ERROR payload.
func DecodeError(payload []byte) (code uint8, message string, err error) {
	if len(payload) < 3 {
		return 0, "", ErrShortPayload
	}
	msgLen := int(binary.LittleEndian.Uint16(payload[1:3]))
	if len(payload) < 3+msgLen {
		return 0, "", ErrShortPayload
	}
	return payload[0], string(payload[3 : 3+msgLen]), nil
}

// IsSafePath rejects absolute paths, traversal segments, and embedded NUL
// bytes (§8, §12 — ported byte-for-byte from the original is_safe_path).
func IsSafePath(path string) bool {
	if path == "" {
		return false
	}
	if path[0] == '/' {
		return false
	}
	for i := 0; i < len(path); i++ {
		if path[i] == 0 {
			return false
		}
	}
	return !containsDotDot(path)
}

func containsDotDot(path string) bool {
	for i := 0; i+1 < len(path); i++ {
		if path[i] == '.' && path[i+1] == '.' {
			return true
		}
	}
	return false
}
