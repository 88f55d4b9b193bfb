package crypto

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// ErrInvalidSeed is returned when a seed has the wrong length.
var ErrInvalidSeed = errors.New("invalid seed length")

var kemScheme = mlkem768.Scheme()

// KEMSeedSize returns the seed length DeriveKEMKeypair expects.
func KEMSeedSize() int {
	return kemScheme.SeedSize()
}

// EncapsulationSeedSize returns the seed length Encapsulate expects.
func EncapsulationSeedSize() int {
	return kemScheme.EncapsulationSeedSize()
}

// KEMCiphertextSize returns the size of an ML-KEM-768 ciphertext.
func KEMCiphertextSize() int {
	return kemScheme.CiphertextSize()
}

// KEMKeypair is an ML-KEM-768 key pair.
type KEMKeypair struct {
	Public  kem.PublicKey
	private kem.PrivateKey
}

// DeriveKEMKeypair derives an ML-KEM-768 key pair from seed.
func DeriveKEMKeypair(seed []byte) (*KEMKeypair, error) {
	if len(seed) != kemScheme.SeedSize() {
		return nil, fmt.Errorf("%w: KEM seed is %d bytes, want %d", ErrInvalidSeed, len(seed), kemScheme.SeedSize())
	}
	pk, sk := kemScheme.DeriveKeyPair(seed)
	return &KEMKeypair{Public: pk, private: sk}, nil
}

// PublicBytes returns the packed public key.
func (k *KEMKeypair) PublicBytes() ([]byte, error) {
	return k.Public.MarshalBinary()
}

// Encapsulate produces a ciphertext and shared secret for pk using seed as
// the encapsulation randomness.
func Encapsulate(pk kem.PublicKey, seed []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(seed) != kemScheme.EncapsulationSeedSize() {
		return nil, nil, fmt.Errorf("%w: encapsulation seed is %d bytes, want %d",
			ErrInvalidSeed, len(seed), kemScheme.EncapsulationSeedSize())
	}
	ct, ss, err := kemScheme.EncapsulateDeterministically(pk, seed)
	if err != nil {
		return nil, nil, fmt.Errorf("encapsulate: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from ciphertext. A tampered but
// well-formed ciphertext does not fail here: ML-KEM returns an unrelated
// secret, and the mismatch surfaces when the sealed payload is opened.
func (k *KEMKeypair) Decapsulate(ciphertext []byte) ([]byte, error) {
	ss, err := kemScheme.Decapsulate(k.private, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}
	return ss, nil
}
