package signature_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/keys"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

func mustDerive(t *testing.T, scheme signature.Scheme, id string) *keys.SignerKeyPair {
	t.Helper()
	kp, err := keys.Derive(scheme, id, bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	return kp
}

func mustSign(t *testing.T, kp *keys.SignerKeyPair, msg []byte) []byte {
	t.Helper()
	sig, err := kp.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return sig
}

func TestParseScheme(t *testing.T) {
	cases := map[string]signature.Scheme{
		"secp256k1": signature.SchemeSecp256k1,
		"ED25519":   signature.SchemeEd25519,
		" ecdsa ":   signature.SchemeECDSA,
	}
	for in, want := range cases {
		got, err := signature.ParseScheme(in)
		if err != nil {
			t.Fatalf("ParseScheme(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseScheme(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := signature.ParseScheme("rsa"); !errors.Is(err, bridge.ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestScheme_JSON(t *testing.T) {
	var payload struct {
		Scheme signature.Scheme `json:"scheme"`
	}
	if err := json.Unmarshal([]byte(`{"scheme":"ed25519"}`), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Scheme != signature.SchemeEd25519 {
		t.Fatalf("expected ED25519, got %s", payload.Scheme)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `{"scheme":"ED25519"}` {
		t.Errorf("unexpected json %s", out)
	}
}

func TestSuite_VerifyErrors(t *testing.T) {
	suite := signature.DefaultSuite()
	msg := signature.Payload("a", "b")

	cases := []struct {
		name   string
		scheme signature.Scheme
		key    []byte
		sig    []byte
		want   error
	}{
		{"secp256k1 short sig", signature.SchemeSecp256k1, make([]byte, 20), []byte{1, 2}, bridge.ErrMalformedSignature},
		{"ed25519 short key", signature.SchemeEd25519, []byte{1}, make([]byte, 64), bridge.ErrMalformedSignature},
		{"ecdsa bad key", signature.SchemeECDSA, []byte{1, 2, 3}, []byte{0x30}, bridge.ErrMalformedSignature},
		{"unknown scheme", signature.SchemeUnknown, nil, nil, bridge.ErrUnsupportedScheme},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := suite.Verify(tc.scheme, tc.key, msg, tc.sig)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSecp256k1Verifier_KeyForms(t *testing.T) {
	kp := mustDerive(t, signature.SchemeSecp256k1, "alice")
	msg := []byte("payload")
	sig := mustSign(t, kp, msg)

	addr, err := kp.Address()
	if err != nil {
		t.Fatalf("Address failed: %v", err)
	}

	v := signature.Secp256k1Verifier{}
	if err := v.Verify(addr.Bytes(), msg, sig); err != nil {
		t.Errorf("address form should verify: %v", err)
	}
	if err := v.Verify(kp.PublicKey, msg, sig); err != nil {
		t.Errorf("compressed key form should verify: %v", err)
	}

	other := mustDerive(t, signature.SchemeSecp256k1, "mallory")
	if err := v.Verify(other.PublicKey, msg, sig); !errors.Is(err, bridge.ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid for foreign key, got %v", err)
	}
}

func TestChecker_VerifySigner(t *testing.T) {
	alice := mustDerive(t, signature.SchemeSecp256k1, "alice")
	bob := mustDerive(t, signature.SchemeEd25519, "bob")
	carol := mustDerive(t, signature.SchemeECDSA, "carol")

	registry, err := signature.NewRegistry(alice.Signer("alice"), bob.Signer("bob"), carol.Signer("carol"))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	checker := signature.NewChecker(registry, signature.DefaultSuite())
	msg := signature.Payload("t1", "1000")

	for id, kp := range map[string]*keys.SignerKeyPair{"alice": alice, "bob": bob, "carol": carol} {
		if err := checker.VerifySigner(id, kp.Scheme, msg, mustSign(t, kp, msg)); err != nil {
			t.Errorf("%s: expected valid signature, got %v", id, err)
		}
	}

	t.Run("wrong scheme", func(t *testing.T) {
		err := checker.VerifySigner("alice", signature.SchemeEd25519, msg, mustSign(t, bob, msg))
		if !errors.Is(err, bridge.ErrWrongScheme) {
			t.Errorf("expected ErrWrongScheme, got %v", err)
		}
	})

	t.Run("cryptographic failure", func(t *testing.T) {
		err := checker.VerifySigner("bob", signature.SchemeEd25519, msg, mustSign(t, bob, []byte("other")))
		if !errors.Is(err, bridge.ErrSignatureInvalid) {
			t.Errorf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("unknown signer", func(t *testing.T) {
		err := checker.VerifySigner("dave", signature.SchemeEd25519, msg, mustSign(t, bob, msg))
		if !errors.Is(err, bridge.ErrUnknownSigner) {
			t.Errorf("expected ErrUnknownSigner, got %v", err)
		}
	})

	t.Run("revoked signer", func(t *testing.T) {
		if err := registry.Revoke("carol"); err != nil {
			t.Fatalf("Revoke failed: %v", err)
		}
		err := checker.VerifySigner("carol", signature.SchemeECDSA, msg, mustSign(t, carol, msg))
		if !errors.Is(err, bridge.ErrUnknownSigner) {
			t.Errorf("expected ErrUnknownSigner, got %v", err)
		}
		if registry.Active("carol") {
			t.Error("carol should be inactive")
		}
	})
}

func TestRegistry_Register(t *testing.T) {
	r, err := signature.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if err := r.Register(signature.Signer{ID: "x", Scheme: signature.SchemeUnknown, PublicKey: []byte{1}}); err == nil {
		t.Error("expected error for unknown scheme")
	}
	if err := r.Register(signature.Signer{ID: "", Scheme: signature.SchemeEd25519, PublicKey: []byte{1}}); err == nil {
		t.Error("expected error for empty id")
	}
	if err := r.Revoke("missing"); !errors.Is(err, bridge.ErrUnknownSigner) {
		t.Errorf("expected ErrUnknownSigner, got %v", err)
	}

	_ = r.Register(signature.Signer{ID: "b", Scheme: signature.SchemeEd25519, PublicKey: []byte{1}})
	_ = r.Register(signature.Signer{ID: "a", Scheme: signature.SchemeEd25519, PublicKey: []byte{2}})
	ids := r.ActiveIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected active ids %v", ids)
	}
}

func TestDecodeHex(t *testing.T) {
	b, err := signature.DecodeHex("0x0a0b")
	if err != nil || !bytes.Equal(b, []byte{0x0a, 0x0b}) {
		t.Fatalf("unexpected decode result %x, %v", b, err)
	}
	if _, err := signature.DecodeHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}
