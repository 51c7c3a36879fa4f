package wire

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "uring-sync-ktls-v1"

// KeyMaterial is the 56 bytes of key material HKDF derives from the shared
// secret and the two handshake nonces (§4.I): a TX triple (key, IV, record
// sequence) and an RX triple, each 16+4+8 bytes.
type KeyMaterial struct {
	TXKey    [16]byte
	TXIV     [4]byte
	TXRecSeq [8]byte
	RXKey    [16]byte
	RXIV     [4]byte
	RXRecSeq [8]byte
}

// DeriveKeys runs HKDF-SHA-256 over secret with salt = senderNonce‖
// receiverNonce and info "uring-sync-ktls-v1", producing 56 bytes that
// split deterministically into the TX and RX triples. Both endpoints call
// this with the same inputs and get byte-identical output; the receiver
// then installs the pair swapped (§6, §4.I, scenario 5).
func DeriveKeys(secret string, senderNonce, receiverNonce [NonceSize]byte) (KeyMaterial, error) {
	salt := make([]byte, 0, 2*NonceSize)
	salt = append(salt, senderNonce[:]...)
	salt = append(salt, receiverNonce[:]...)

	r := hkdf.New(sha256.New, []byte(secret), salt, []byte(hkdfInfo))
	var out [56]byte
	defer zeroize(out[:])
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return KeyMaterial{}, fmt.Errorf("derive keys: %w", err)
	}

	var km KeyMaterial
	copy(km.TXKey[:], out[0:16])
	copy(km.TXIV[:], out[16:20])
	copy(km.TXRecSeq[:], out[20:28])
	copy(km.RXKey[:], out[28:44])
	copy(km.RXIV[:], out[44:48])
	copy(km.RXRecSeq[:], out[48:56])
	return km, nil
}

// zeroize overwrites b in place. The Go compiler cannot prove this dead and
// elide it the way it could a plain loop over a value about to go out of
// scope, since b is a slice backed by memory the caller (here, a deferred
// call) still holds a reference to.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
