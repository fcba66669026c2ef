// Package keys generates and derives signer keypairs for every supported signature
// scheme and produces signatures the settlement verifiers accept.
// Derived keys are meant for development networks and tests; production signers
// hold their own keys and only register public keys with the bridge.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"

	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

const minSeedLength = 32

// SignerKeyPair is a signing keypair for one scheme.
type SignerKeyPair struct {
	Scheme     signature.Scheme
	PublicKey  []byte // 33 byte compressed key for SECP256K1/ECDSA, 32 bytes for ED25519
	PrivateKey []byte // 32 byte scalar for SECP256K1/ECDSA, 64 bytes for ED25519
}

// Generate creates a random keypair for scheme.
func Generate(scheme signature.Scheme) (*SignerKeyPair, error) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	return fromSeed(scheme, seed)
}

// Derive deterministically derives a keypair for signerID from a master seed.
// Uses HKDF with SHA-256; the same inputs always yield the same key.
func Derive(scheme signature.Scheme, signerID string, masterSeed []byte) (*SignerKeyPair, error) {
	if len(masterSeed) < minSeedLength {
		return nil, fmt.Errorf("master seed must be at least %d bytes", minSeedLength)
	}

	info := []byte("bridge-signer-" + scheme.String() + "-" + signerID)
	reader := hkdf.New(sha256.New, masterSeed, nil, info)

	seed := make([]byte, 32)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("failed to derive key seed: %w", err)
	}
	return fromSeed(scheme, seed)
}

func fromSeed(scheme signature.Scheme, seed []byte) (*SignerKeyPair, error) {
	switch scheme {
	case signature.SchemeSecp256k1, signature.SchemeECDSA:
		privateKey, err := crypto.ToECDSA(seed)
		if err != nil {
			return nil, fmt.Errorf("failed to create private key: %w", err)
		}
		return &SignerKeyPair{
			Scheme:     scheme,
			PublicKey:  crypto.CompressPubkey(&privateKey.PublicKey),
			PrivateKey: crypto.FromECDSA(privateKey),
		}, nil
	case signature.SchemeEd25519:
		privateKey := ed25519.NewKeyFromSeed(seed)
		return &SignerKeyPair{
			Scheme:     scheme,
			PublicKey:  privateKey.Public().(ed25519.PublicKey),
			PrivateKey: privateKey,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %s", scheme)
	}
}

// Sign signs message in the encoding the scheme's verifier expects.
func (kp *SignerKeyPair) Sign(message []byte) ([]byte, error) {
	switch kp.Scheme {
	case signature.SchemeSecp256k1:
		privateKey, err := crypto.ToECDSA(kp.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to convert private key: %w", err)
		}
		sig, err := crypto.Sign(accounts.TextHash(message), privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}
		// wallets emit v as 27/28
		sig[crypto.RecoveryIDOffset] += 27
		return sig, nil
	case signature.SchemeEd25519:
		if len(kp.PrivateKey) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("ed25519 private key must be %d bytes", ed25519.PrivateKeySize)
		}
		return ed25519.Sign(ed25519.PrivateKey(kp.PrivateKey), message), nil
	case signature.SchemeECDSA:
		privateKey, _ := btcec.PrivKeyFromBytes(kp.PrivateKey)
		digest := sha256.Sum256(message)
		return btcecdsa.Sign(privateKey, digest[:]).Serialize(), nil
	default:
		return nil, fmt.Errorf("unsupported scheme %s", kp.Scheme)
	}
}

// Address returns the EVM address for SECP256K1 keys.
func (kp *SignerKeyPair) Address() (common.Address, error) {
	if kp.Scheme != signature.SchemeSecp256k1 {
		return common.Address{}, fmt.Errorf("address is only defined for %s keys", signature.SchemeSecp256k1)
	}
	pub, err := crypto.DecompressPubkey(kp.PublicKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decompress public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// PublicKeyHex returns the public key as 0x-prefixed hex.
func (kp *SignerKeyPair) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(kp.PublicKey)
}

// Signer returns the registry entry for this keypair.
func (kp *SignerKeyPair) Signer(id string) signature.Signer {
	return signature.Signer{ID: id, Scheme: kp.Scheme, PublicKey: kp.PublicKey}
}
