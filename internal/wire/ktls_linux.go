//go:build linux

package wire

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// EnableSender installs km on sockfd for the sender side of a transfer:
// TX key encrypts what this end sends, RX key decrypts what it receives
// (§6, §4.I — ktls.hpp's enable_sender).
func EnableSender(sockfd int, km KeyMaterial) error {
	if err := enableTLSULP(sockfd); err != nil {
		return err
	}
	if err := installAEAD(sockfd, unix.TLS_TX, km.TXKey, km.TXIV, km.TXRecSeq); err != nil {
		return fmt.Errorf("install TX key: %w", err)
	}
	if err := installAEAD(sockfd, unix.TLS_RX, km.RXKey, km.RXIV, km.RXRecSeq); err != nil {
		return fmt.Errorf("install RX key: %w", err)
	}
	return nil
}

// EnableReceiver installs km on sockfd for the receiver side, with the
// pair swapped: what the sender calls TX, the receiver installs as its
// own RX, and vice versa (§6, §4.I — ktls.hpp's enable_receiver).
func EnableReceiver(sockfd int, km KeyMaterial) error {
	if err := enableTLSULP(sockfd); err != nil {
		return err
	}
	if err := installAEAD(sockfd, unix.TLS_TX, km.RXKey, km.RXIV, km.RXRecSeq); err != nil {
		return fmt.Errorf("install TX key: %w", err)
	}
	if err := installAEAD(sockfd, unix.TLS_RX, km.TXKey, km.TXIV, km.TXRecSeq); err != nil {
		return fmt.Errorf("install RX key: %w", err)
	}
	return nil
}

func enableTLSULP(sockfd int) error {
	if err := unix.SetsockoptString(sockfd, unix.SOL_TCP, unix.TCP_ULP, "tls"); err != nil {
		return fmt.Errorf("set TCP_ULP: %w", err)
	}
	return nil
}

func installAEAD(sockfd, opt int, key [16]byte, iv [4]byte, recSeq [8]byte) error {
	info := &unix.TLS12CryptoInfoAESGCM128{
		Info: unix.TLSCryptoInfo{
			Version:    unix.TLS_1_2_VERSION,
			CipherType: unix.TLS_CIPHER_AES_GCM_128,
		},
		Key:    key,
		Salt:   iv,
		RecSeq: recSeq,
	}
	return unix.SetsockoptTLS12AEAD(sockfd, unix.SOL_TLS, opt, info)
}

// SetListenerOpts sets SO_REUSEADDR on sockfd and then tries to clear
// IPV6_V6ONLY; the IPV6_V6ONLY error is ignored, and the kernel refuses that
// change on a socket that is already bound.
func SetListenerOpts(sockfd int) error {
	if err := unix.SetsockoptInt(sockfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	_ = unix.SetsockoptInt(sockfd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	return nil
}
