package signature

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

// Signer is a designated bridge signer with its known key for one scheme.
type Signer struct {
	ID        string
	Scheme    Scheme
	PublicKey []byte
	Revoked   bool
}

// DecodeHex decodes a hex key or signature, with or without 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// Registry holds the known signer keys. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

// NewRegistry creates a Registry holding signers.
func NewRegistry(signers ...Signer) (*Registry, error) {
	r := &Registry{signers: make(map[string]Signer, len(signers))}
	for _, s := range signers {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a signer.
func (r *Registry) Register(s Signer) error {
	if s.ID == "" {
		return errors.New("signer id is required")
	}
	if s.Scheme == SchemeUnknown {
		return fmt.Errorf("signer %s: %w", s.ID, bridge.ErrUnsupportedScheme)
	}
	if len(s.PublicKey) == 0 {
		return fmt.Errorf("signer %s: public key is required", s.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[s.ID] = s
	return nil
}

// Revoke marks a signer as revoked. Its signatures stop counting toward quorum.
func (r *Registry) Revoke(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.signers[id]
	if !ok {
		return fmt.Errorf("%w: %s", bridge.ErrUnknownSigner, id)
	}
	s.Revoked = true
	r.signers[id] = s
	return nil
}

// Lookup returns the signer with id, revoked or not.
func (r *Registry) Lookup(id string) (Signer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signers[id]
	return s, ok
}

// Active reports whether id is registered and not revoked.
func (r *Registry) Active(id string) bool {
	s, ok := r.Lookup(id)
	return ok && !s.Revoked
}

// ActiveIDs returns the sorted ids of all non-revoked signers.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.signers))
	for id, s := range r.signers {
		if !s.Revoked {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Checker verifies a signer's signature against the signer's registered key.
type Checker struct {
	registry *Registry
	suite    *Suite
}

// NewChecker creates a Checker.
func NewChecker(registry *Registry, suite *Suite) *Checker {
	return &Checker{registry: registry, suite: suite}
}

// Registry returns the underlying signer registry.
func (c *Checker) Registry() *Registry {
	return c.registry
}

// VerifySigner checks that signerID is an active signer registered for scheme and
// that sig is a valid signature over message under the signer's key.
// The returned error is a bridge.SignatureError.
func (c *Checker) VerifySigner(signerID string, scheme Scheme, message, sig []byte) error {
	s, ok := c.registry.Lookup(signerID)
	if !ok || s.Revoked {
		return bridge.SignatureError(bridge.ErrUnknownSigner, signerID, nil)
	}
	if !c.suite.Supports(scheme) {
		return bridge.SignatureError(bridge.ErrUnsupportedScheme, signerID, fmt.Errorf("scheme %s", scheme))
	}
	if s.Scheme != scheme {
		return bridge.SignatureError(bridge.ErrWrongScheme, signerID,
			fmt.Errorf("claimed %s, registered %s", scheme, s.Scheme))
	}
	return c.VerifyKey(signerID, scheme, s.PublicKey, message, sig)
}

// VerifyKey checks sig over message with an explicit key. label names the key holder in errors.
func (c *Checker) VerifyKey(label string, scheme Scheme, publicKey, message, sig []byte) error {
	err := c.suite.Verify(scheme, publicKey, message, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bridge.ErrUnsupportedScheme):
		return bridge.SignatureError(bridge.ErrUnsupportedScheme, label, err)
	case errors.Is(err, bridge.ErrMalformedSignature):
		return bridge.SignatureError(bridge.ErrMalformedSignature, label, err)
	default:
		return bridge.SignatureError(bridge.ErrSignatureInvalid, label, err)
	}
}

// Active reports whether signerID is registered and not revoked.
func (c *Checker) Active(signerID string) bool {
	return c.registry.Active(signerID)
}
