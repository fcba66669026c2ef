package keys

import (
	"bytes"
	"testing"

	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

var allSchemes = []signature.Scheme{
	signature.SchemeSecp256k1,
	signature.SchemeEd25519,
	signature.SchemeECDSA,
}

func testSeed() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestDerive_Deterministic(t *testing.T) {
	for _, scheme := range allSchemes {
		t.Run(scheme.String(), func(t *testing.T) {
			a, err := Derive(scheme, "signer-1", testSeed())
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			b, err := Derive(scheme, "signer-1", testSeed())
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			if !bytes.Equal(a.PublicKey, b.PublicKey) {
				t.Error("same inputs must derive the same key")
			}

			other, err := Derive(scheme, "signer-2", testSeed())
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			if bytes.Equal(a.PublicKey, other.PublicKey) {
				t.Error("different signer ids must derive different keys")
			}
		})
	}
}

func TestDerive_ShortSeed(t *testing.T) {
	if _, err := Derive(signature.SchemeEd25519, "s", []byte("short")); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestSign_VerifiesWithSuite(t *testing.T) {
	suite := signature.DefaultSuite()
	msg := signature.Payload("t1", "ethereum", "polygon", "1000")

	for _, scheme := range allSchemes {
		t.Run(scheme.String(), func(t *testing.T) {
			kp, err := Generate(scheme)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			sig, err := kp.Sign(msg)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}
			if err := suite.Verify(scheme, kp.PublicKey, msg, sig); err != nil {
				t.Fatalf("signature should verify: %v", err)
			}
			if err := suite.Verify(scheme, kp.PublicKey, []byte("tampered"), sig); err == nil {
				t.Error("tampered message must not verify")
			}
		})
	}
}

func TestAddress(t *testing.T) {
	kp, err := Derive(signature.SchemeSecp256k1, "evm", testSeed())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	addr, err := kp.Address()
	if err != nil {
		t.Fatalf("Address failed: %v", err)
	}

	msg := []byte("hello")
	sig, err := kp.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := (signature.Secp256k1Verifier{}).Verify(addr.Bytes(), msg, sig); err != nil {
		t.Errorf("signature should verify against address: %v", err)
	}

	edKey, _ := Generate(signature.SchemeEd25519)
	if _, err := edKey.Address(); err == nil {
		t.Error("expected error for non-secp256k1 key")
	}
}
