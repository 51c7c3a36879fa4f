package netcopy

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("world"), 0o600))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	recvDone := make(chan ReceiverResult, 1)
	recvErr := make(chan error, 1)
	go func() {
		res, err := Receive(ReceiverConfig{DstPath: dst, Port: port, Secret: "hunter2"})
		recvErr <- err
		recvDone <- res
	}()

	// Give the receiver a moment to bind before the sender dials.
	time.Sleep(50 * time.Millisecond)

	sendRes, err := Send(SenderConfig{
		SrcPath: src,
		Addr:    "127.0.0.1:" + strconv.Itoa(port),
		Secret:  "hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sendRes.FilesSent)
	assert.EqualValues(t, 10, sendRes.BytesSent)

	require.NoError(t, <-recvErr)
	got := <-recvDone
	assert.Equal(t, 2, got.FilesReceived)
	assert.EqualValues(t, 10, got.BytesReceived)

	a, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(a))

	b, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}

func TestSendReceive_WrongSecretRejected(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("x"), 0o640))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	recvErr := make(chan error, 1)
	go func() {
		_, err := Receive(ReceiverConfig{DstPath: dst, Port: port, Secret: "good"})
		recvErr <- err
	}()

	time.Sleep(50 * time.Millisecond)

	_, err = Send(SenderConfig{SrcPath: src, Addr: "127.0.0.1:" + strconv.Itoa(port), Secret: "bad"})
	assert.Error(t, err)

	require.ErrorIs(t, <-recvErr, ErrAuthRejected)

	_, statErr := os.Stat(filepath.Join(dst, "a.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

