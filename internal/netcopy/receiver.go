package netcopy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/VincentDu2021/uring-sync/internal/wire"
)

// ReceiverConfig controls one network receive operation (§4.J, §6).
type ReceiverConfig struct {
	DstPath string
	Port    int

	Secret string
	UseTLS bool

	Logger *slog.Logger
}

// ReceiverResult summarizes a completed receive.
type ReceiverResult struct {
	FilesReceived int
	BytesReceived int64
}

// ErrAuthRejected is returned when the sender's HELLO carries the wrong
// secret; a HELLO_FAIL has already been sent and the connection closed.
var ErrAuthRejected = errors.New("netcopy: secret mismatch")

// Receive listens on Port, accepts a single connection, authenticates it
// against Secret, optionally enables kTLS, and writes every transferred
// file under DstPath (§4.J's receiver behavior, ported from the base
// implementation's run_receiver).
func Receive(cfg ReceiverConfig) (ReceiverResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DstPath, 0o755); err != nil {
		return ReceiverResult{}, fmt.Errorf("create destination %s: %w", cfg.DstPath, err)
	}

	ln, err := listen(cfg.Port)
	if err != nil {
		return ReceiverResult{}, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	defer ln.Close()

	logger.Info("listening", "port", cfg.Port, "ktls", cfg.UseTLS)

	conn, err := ln.Accept()
	if err != nil {
		return ReceiverResult{}, fmt.Errorf("accept: %w", err)
	}
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return ReceiverResult{}, fmt.Errorf("accepted connection is not TCP")
	}
	logger.Info("connection accepted", "remote", conn.RemoteAddr())

	f, err := wire.ReadFrame(conn)
	if err != nil {
		return ReceiverResult{}, fmt.Errorf("read HELLO: %w", err)
	}
	if f.Type != wire.MsgHello {
		return ReceiverResult{}, fmt.Errorf("expected HELLO, got %#x", f.Type)
	}
	hello, err := wire.DecodeHello(f.Payload)
	if err != nil {
		return ReceiverResult{}, fmt.Errorf("decode HELLO: %w", err)
	}

	if cfg.Secret != "" && hello.Secret != cfg.Secret {
		_ = wire.WriteFrame(conn, wire.EncodeHelloFail(1))
		return ReceiverResult{}, ErrAuthRejected
	}

	receiverNonce, err := newNonce()
	if err != nil {
		return ReceiverResult{}, fmt.Errorf("generate nonce: %w", err)
	}
	if err := wire.WriteFrame(conn, wire.EncodeHelloOK(receiverNonce)); err != nil {
		return ReceiverResult{}, fmt.Errorf("send HELLO_OK: %w", err)
	}

	if cfg.UseTLS {
		km, err := wire.DeriveKeys(cfg.Secret, hello.Nonce, receiverNonce)
		if err != nil {
			return ReceiverResult{}, fmt.Errorf("derive keys: %w", err)
		}
		if err := enableReceiverTLS(tcpConn, km); err != nil {
			return ReceiverResult{}, fmt.Errorf("enable kTLS: %w", err)
		}
		logger.Info("ktls enabled", "role", "receiver")
	}

	buf := make([]byte, bufSize)
	result := ReceiverResult{}

	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			return result, fmt.Errorf("read frame: %w", err)
		}

		switch f.Type {
		case wire.MsgAllDone:
			logger.Info("transfer complete", "files", result.FilesReceived)
			return result, nil
		case wire.MsgFileHdr:
			n, err := receiveFile(conn, cfg.DstPath, f.Payload, buf)
			if err != nil {
				return result, err
			}
			result.FilesReceived++
			result.BytesReceived += n
		default:
			return result, fmt.Errorf("expected FILE_HDR or ALL_DONE, got %#x", f.Type)
		}
	}
}

func receiveFile(conn net.Conn, dstRoot string, payload []byte, buf []byte) (int64, error) {
	hdr, err := wire.DecodeFileHdr(payload)
	if err != nil {
		return 0, fmt.Errorf("decode FILE_HDR: %w", err)
	}

	dstPath := filepath.Join(dstRoot, hdr.Path)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return 0, fmt.Errorf("create parent dirs for %s: %w", hdr.Path, err)
	}

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer out.Close()

	size := int64(hdr.Size) //nolint:gosec // G115: wire sizes are bounded by MaxPayloadLen transfers
	if err := copyExactly(out, io.Reader(conn), size, buf); err != nil {
		return 0, fmt.Errorf("receive %s: %w", hdr.Path, err)
	}
	return size, nil
}
