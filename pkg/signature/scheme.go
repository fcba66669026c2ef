// Package signature verifies signer signatures over transfer payloads.
//
// Each supported scheme has its own Verifier; a Suite dispatches on the scheme tag
// carried by the signature, and a Registry holds the designated signers' known keys.
package signature

import (
	"fmt"
	"strings"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

// Scheme tags the algorithm a signature was produced with.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	// SchemeSecp256k1 is an Ethereum personal_sign (EIP-191) recoverable signature, 65 bytes [R || S || V].
	SchemeSecp256k1
	// SchemeEd25519 is a 64 byte Ed25519 signature over the raw payload.
	SchemeEd25519
	// SchemeECDSA is a DER encoded ECDSA signature over SHA-256(payload) on the secp256k1 curve.
	SchemeECDSA
)

func (s Scheme) String() string {
	switch s {
	case SchemeSecp256k1:
		return "SECP256K1"
	case SchemeEd25519:
		return "ED25519"
	case SchemeECDSA:
		return "ECDSA"
	default:
		return "UNKNOWN"
	}
}

// ParseScheme parses a scheme name, case-insensitively.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SECP256K1":
		return SchemeSecp256k1, nil
	case "ED25519":
		return SchemeEd25519, nil
	case "ECDSA":
		return SchemeECDSA, nil
	default:
		return SchemeUnknown, fmt.Errorf("%w: %q", bridge.ErrUnsupportedScheme, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Payload joins the fields of a signable message with "|". Signers sign these bytes.
func Payload(fields ...string) []byte {
	return []byte(strings.Join(fields, "|"))
}
