package netcopy

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/time/rate"

	"github.com/VincentDu2021/uring-sync/internal/wire"
)

// SenderConfig controls one network send operation (§4.J, §6).
type SenderConfig struct {
	SrcPath string
	Addr    string // host:port

	Secret    string
	UseSplice bool
	UseTLS    bool

	BWLimitBytesPerSec int64

	Logger *slog.Logger
}

// SenderResult summarizes a completed send.
type SenderResult struct {
	FilesSent int
	BytesSent int64
}

// Send connects to Addr, authenticates with Secret, optionally enables
// kTLS, then transmits every regular file under SrcPath (§4.J's sender
// behavior, ported from the base implementation's run_sender).
func Send(cfg SenderConfig) (SenderResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files, err := collectFiles(cfg.SrcPath)
	if err != nil {
		return SenderResult{}, err
	}

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return SenderResult{}, fmt.Errorf("connect to %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return SenderResult{}, fmt.Errorf("connection to %s is not TCP", cfg.Addr)
	}

	senderNonce, err := newNonce()
	if err != nil {
		return SenderResult{}, fmt.Errorf("generate nonce: %w", err)
	}

	if err := wire.WriteFrame(conn, wire.EncodeHello(wire.HelloMsg{
		Version: wire.ProtocolVersion,
		Secret:  cfg.Secret,
		Nonce:   senderNonce,
	})); err != nil {
		return SenderResult{}, fmt.Errorf("send HELLO: %w", err)
	}

	f, err := wire.ReadFrame(conn)
	if err != nil {
		return SenderResult{}, fmt.Errorf("read HELLO response: %w", err)
	}

	var receiverNonce [wire.NonceSize]byte
	switch f.Type {
	case wire.MsgHelloOK:
		receiverNonce, err = wire.DecodeHelloOK(f.Payload)
		if err != nil {
			return SenderResult{}, fmt.Errorf("decode HELLO_OK: %w", err)
		}
	case wire.MsgHelloFail:
		reason, _ := wire.DecodeHelloFail(f.Payload)
		return SenderResult{}, fmt.Errorf("authentication rejected: reason %d", reason)
	default:
		return SenderResult{}, fmt.Errorf("unexpected response type %#x to HELLO", f.Type)
	}

	if cfg.UseTLS {
		km, err := wire.DeriveKeys(cfg.Secret, senderNonce, receiverNonce)
		if err != nil {
			return SenderResult{}, fmt.Errorf("derive keys: %w", err)
		}
		if err := enableSenderTLS(tcpConn, km); err != nil {
			return SenderResult{}, fmt.Errorf("enable kTLS: %w", err)
		}
		logger.Info("ktls enabled", "role", "sender")
	}

	var limiter *rate.Limiter
	if cfg.BWLimitBytesPerSec > 0 {
		limiter = newBWLimiter(cfg.BWLimitBytesPerSec)
	}

	buf := make([]byte, bufSize)
	result := SenderResult{}

	for _, entry := range files {
		n, err := sendFile(conn, tcpConn, entry, cfg.UseSplice && spliceAvailable, limiter, buf)
		if err != nil {
			return result, fmt.Errorf("send %s: %w", entry.relPath, err)
		}
		result.FilesSent++
		result.BytesSent += n
		logger.Debug("file sent", "path", entry.relPath, "bytes", n)
	}

	if err := wire.WriteFrame(conn, wire.EncodeAllDone()); err != nil {
		return result, fmt.Errorf("send ALL_DONE: %w", err)
	}

	return result, nil
}

func sendFile(conn net.Conn, tcpConn *net.TCPConn, entry fileEntry, useSplice bool, limiter *rate.Limiter, buf []byte) (int64, error) {
	f, err := os.Open(entry.absPath)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	hdrFrame, err := wire.EncodeFileHdr(wire.FileHdrMsg{
		Size: uint64(entry.size), //nolint:gosec // G115: file sizes fit uint64
		Mode: uint32(entry.mode),
		Path: entry.relPath,
	})
	if err != nil {
		return 0, fmt.Errorf("encode FILE_HDR: %w", err)
	}
	if err := wire.WriteFrame(conn, hdrFrame); err != nil {
		return 0, fmt.Errorf("write FILE_HDR: %w", err)
	}

	if useSplice {
		rc, err := tcpConn.SyscallConn()
		if err != nil {
			return 0, fmt.Errorf("splice: raw conn: %w", err)
		}
		if err := spliceFile(f, rc, entry.size); err != nil {
			return 0, err
		}
		return entry.size, nil
	}

	w := io.Writer(conn)
	if limiter != nil {
		w = newRateLimitedWriter(w, limiter)
	}
	if err := copyExactly(w, f, entry.size, buf); err != nil {
		return 0, fmt.Errorf("transfer data: %w", err)
	}
	return entry.size, nil
}

func newNonce() ([wire.NonceSize]byte, error) {
	var n [wire.NonceSize]byte
	_, err := rand.Read(n[:])
	return n, err
}
