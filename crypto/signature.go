package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var errInvalidSignature = errors.New("crypto: invalid signature")

// Digest hashes payload with keccak256.
func Digest(payload []byte) []byte {
	return crypto.Keccak256(payload)
}

// Sign produces a recoverable signature over the keccak256 digest of payload.
func (k *PrivateKey) Sign(payload []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(Digest(payload), k.PrivateKey)
}

// RecoverSigner returns the principal that produced sig over payload.
func RecoverSigner(payload, sig []byte) ([AddressLength]byte, error) {
	var out [AddressLength]byte
	if len(sig) != SignatureLength {
		return out, fmt.Errorf("%w: length %d", errInvalidSignature, len(sig))
	}
	normalized := append([]byte(nil), sig...)
	// Accept Ethereum-style recovery ids.
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(Digest(payload), normalized)
	if err != nil {
		return out, fmt.Errorf("%w: %v", errInvalidSignature, err)
	}
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}
