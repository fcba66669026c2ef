package signature

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

// Verifier checks one scheme's signatures. Errors wrap bridge.ErrMalformedSignature
// when the key or signature cannot be decoded and bridge.ErrSignatureInvalid when
// the cryptographic check fails.
type Verifier interface {
	Scheme() Scheme
	Verify(publicKey, message, sig []byte) error
}

// Secp256k1Verifier verifies EIP-191 personal_sign signatures. The public key may be
// a 20 byte address, a 33 byte compressed key or a 65 byte uncompressed key.
type Secp256k1Verifier struct{}

func (Secp256k1Verifier) Scheme() Scheme { return SchemeSecp256k1 }

func (Secp256k1Verifier) Verify(publicKey, message, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d byte signature, got %d", bridge.ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}

	// v can be 0, 1, 27, or 28 - normalize to 0 or 1
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash(message)
	recovered, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", bridge.ErrSignatureInvalid, err)
	}

	switch len(publicKey) {
	case common.AddressLength:
		if crypto.PubkeyToAddress(*recovered) != common.BytesToAddress(publicKey) {
			return fmt.Errorf("%w: recovered address does not match", bridge.ErrSignatureInvalid)
		}
	case 33, 65:
		expected, err := unmarshalSecp256k1(publicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", bridge.ErrMalformedSignature, err)
		}
		if !bytes.Equal(crypto.CompressPubkey(recovered), crypto.CompressPubkey(expected)) {
			return fmt.Errorf("%w: recovered key does not match", bridge.ErrSignatureInvalid)
		}
	default:
		return fmt.Errorf("%w: unexpected secp256k1 key length %d", bridge.ErrMalformedSignature, len(publicKey))
	}
	return nil
}

// Ed25519Verifier verifies Ed25519 signatures over the raw message.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Scheme() Scheme { return SchemeEd25519 }

func (Ed25519Verifier) Verify(publicKey, message, sig []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: expected %d byte ed25519 key, got %d", bridge.ErrMalformedSignature, ed25519.PublicKeySize, len(publicKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: expected %d byte ed25519 signature, got %d", bridge.ErrMalformedSignature, ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, sig) {
		return bridge.ErrSignatureInvalid
	}
	return nil
}

// ECDSAVerifier verifies DER encoded secp256k1 ECDSA signatures over SHA-256(message).
type ECDSAVerifier struct{}

func (ECDSAVerifier) Scheme() Scheme { return SchemeECDSA }

func (ECDSAVerifier) Verify(publicKey, message, sig []byte) error {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", bridge.ErrMalformedSignature, err)
	}
	parsed, err := btcecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", bridge.ErrMalformedSignature, err)
	}
	digest := sha256.Sum256(message)
	if !parsed.Verify(digest[:], pub) {
		return bridge.ErrSignatureInvalid
	}
	return nil
}

// Suite dispatches verification to the Verifier registered for a scheme.
type Suite struct {
	verifiers map[Scheme]Verifier
}

// NewSuite builds a Suite from verifiers. A later verifier for the same scheme wins.
func NewSuite(verifiers ...Verifier) *Suite {
	s := &Suite{verifiers: make(map[Scheme]Verifier, len(verifiers))}
	for _, v := range verifiers {
		s.verifiers[v.Scheme()] = v
	}
	return s
}

// DefaultSuite supports SECP256K1, ED25519 and ECDSA.
func DefaultSuite() *Suite {
	return NewSuite(Secp256k1Verifier{}, Ed25519Verifier{}, ECDSAVerifier{})
}

// Supports reports whether scheme has a verifier.
func (s *Suite) Supports(scheme Scheme) bool {
	_, ok := s.verifiers[scheme]
	return ok
}

// Verify checks sig over message with publicKey using the scheme's verifier.
func (s *Suite) Verify(scheme Scheme, publicKey, message, sig []byte) error {
	v, ok := s.verifiers[scheme]
	if !ok {
		return fmt.Errorf("%w: %s", bridge.ErrUnsupportedScheme, scheme)
	}
	return v.Verify(publicKey, message, sig)
}

func unmarshalSecp256k1(pub []byte) (*ecdsa.PublicKey, error) {
	if len(pub) == 33 {
		return crypto.DecompressPubkey(pub)
	}
	return crypto.UnmarshalPubkey(pub)
}
