package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// signingContext domain-separates invite signatures from any other ML-DSA use.
const signingContext = "muti-sim-invite-v1"

var signScheme = mldsa65.Scheme()

// SigningSeedSize returns the seed length DeriveSigningKeypair expects.
func SigningSeedSize() int {
	return signScheme.SeedSize()
}

// SignatureSize returns the size of an ML-DSA-65 signature.
func SignatureSize() int {
	return signScheme.SignatureSize()
}

// SigningKeypair holds an ML-DSA-65 key pair.
type SigningKeypair struct {
	Public  sign.PublicKey
	private sign.PrivateKey
}

// DeriveSigningKeypair derives an ML-DSA-65 key pair from seed.
func DeriveSigningKeypair(seed []byte) (*SigningKeypair, error) {
	if len(seed) != signScheme.SeedSize() {
		return nil, fmt.Errorf("%w: signing seed is %d bytes, want %d", ErrInvalidSeed, len(seed), signScheme.SeedSize())
	}
	pk, sk := signScheme.DeriveKey(seed)
	return &SigningKeypair{Public: pk, private: sk}, nil
}

// Sign signs message. ML-DSA signing here is deterministic.
func (k *SigningKeypair) Sign(message []byte) []byte {
	return signScheme.Sign(k.private, message, &sign.SignatureOpts{Context: signingContext})
}

// Verify checks signature over message against publicKey.
func Verify(publicKey sign.PublicKey, message, signature []byte) bool {
	return signScheme.Verify(publicKey, message, signature, &sign.SignatureOpts{Context: signingContext})
}
