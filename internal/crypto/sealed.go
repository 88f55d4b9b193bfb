package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealedBoxInfo is the context string for HKDF key derivation in sealed boxes.
const sealedBoxInfo = "muti-sim-sealed-v1"

var (
	// ErrInvalidCiphertext is returned when the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid sealed box ciphertext")

	// ErrDecryptionFailed is returned when authentication fails.
	ErrDecryptionFailed = errors.New("sealed box decryption failed")
)

// SealedBox is a payload encrypted to a KEM public key. Only the holder of
// the matching private key can recover the shared secret and open it.
type SealedBox struct {
	// KEMCiphertext carries the encapsulated shared secret.
	KEMCiphertext []byte
	// Ciphertext is the AEAD output including the tag.
	Ciphertext []byte
}

// SealedBoxOverhead returns the bytes a sealed box adds to its plaintext.
func SealedBoxOverhead() int {
	return KEMCiphertextSize() + TagSize
}

// Size returns the total wire size of the box.
func (b *SealedBox) Size() int {
	return len(b.KEMCiphertext) + len(b.Ciphertext)
}

// boxKeys derives the AEAD key and nonce. The salt binds them to the KEM
// ciphertext and recipient key, so a modified ciphertext cannot reuse them.
func boxKeys(sharedSecret, kemCiphertext, recipient []byte) (key []byte, nonce []byte, err error) {
	salt := make([]byte, 0, len(kemCiphertext)+len(recipient))
	salt = append(salt, kemCiphertext...)
	salt = append(salt, recipient...)

	out := make([]byte, KeySize+NonceSize)
	reader := hkdf.New(sha256.New, sharedSecret, salt, []byte(sealedBoxInfo))
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, nil, fmt.Errorf("derive key: %w", err)
	}
	return out[:KeySize], out[KeySize:], nil
}

// Seal encrypts plaintext to recipient. encapsSeed supplies the KEM
// randomness; aad is authenticated but not encrypted. The KEM shared secret
// is returned so the caller can derive further keys from it.
func Seal(recipient kem.PublicKey, plaintext, aad, encapsSeed []byte) (*SealedBox, []byte, error) {
	recipientBytes, err := recipient.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal recipient key: %w", err)
	}

	kemCT, sharedSecret, err := Encapsulate(recipient, encapsSeed)
	if err != nil {
		return nil, nil, err
	}

	key, nonce, err := boxKeys(sharedSecret, kemCT, recipientBytes)
	if err != nil {
		return nil, nil, err
	}
	defer ZeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}

	return &SealedBox{
		KEMCiphertext: kemCT,
		Ciphertext:    aead.Seal(nil, nonce, plaintext, aad),
	}, sharedSecret, nil
}

// Open decrypts a sealed box with the recipient's key pair. It returns the
// plaintext and the recovered KEM shared secret.
func Open(kp *KEMKeypair, box *SealedBox, aad []byte) ([]byte, []byte, error) {
	if box == nil || len(box.KEMCiphertext) != KEMCiphertextSize() || len(box.Ciphertext) < TagSize {
		return nil, nil, ErrInvalidCiphertext
	}

	recipientBytes, err := kp.PublicBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal recipient key: %w", err)
	}

	sharedSecret, err := kp.Decapsulate(box.KEMCiphertext)
	if err != nil {
		return nil, nil, err
	}

	key, nonce, err := boxKeys(sharedSecret, box.KEMCiphertext, recipientBytes)
	if err != nil {
		return nil, nil, err
	}
	defer ZeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, box.Ciphertext, aad)
	if err != nil {
		return nil, nil, ErrDecryptionFailed
	}
	return plaintext, sharedSecret, nil
}
