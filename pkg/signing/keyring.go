// SPDX-License-Identifier: Apache-2.0
package signing

import (
	"errors"
	"fmt"
	"os"

	"aead.dev/minisign"
)

// ErrUnknownKey is returned for signatures made by a key not in the Keyring
var ErrUnknownKey = errors.New("signed by an unknown key")

// ErrBadSignature is returned when a signature does not verify
var ErrBadSignature = errors.New("signature does not verify")

// Keyring holds the public keys a published tree may be signed with,
// indexed by key ID. A tree signed before a rotation needs the old keys.
type Keyring map[uint64]minisign.PublicKey

// NewKeyring returns a Keyring holding keys
func NewKeyring(keys ...minisign.PublicKey) Keyring {
	k := make(Keyring, len(keys))
	for _, pub := range keys {
		k.Add(pub)
	}
	return k
}

// Add puts pub in the ring
func (k Keyring) Add(pub minisign.PublicKey) { k[pub.ID()] = pub }

// AddHistory adds every public key recorded in the history dir. A missing
// dir adds nothing.
func (k Keyring) AddHistory(dir string) error {
	if dir == "" {
		return nil
	}
	files, err := History(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		pub, err := ParsePublicKey(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		k.Add(pub)
	}
	return nil
}

// IDs returns the formatted key IDs in the ring
func (k Keyring) IDs() []string {
	ids := make([]string, 0, len(k))
	for id := range k {
		ids = append(ids, formatID(id))
	}
	return ids
}

// Verify checks sig against the key named by its key ID and returns that ID
func (k Keyring) Verify(msg, sig []byte) (string, error) {
	var s minisign.Signature
	if err := s.UnmarshalText(sig); err != nil {
		return "", fmt.Errorf("malformed signature: %w", err)
	}
	id := formatID(s.KeyID)
	pub, ok := k[s.KeyID]
	if !ok {
		return id, fmt.Errorf("%w %s", ErrUnknownKey, id)
	}
	if !minisign.Verify(pub, msg, sig) {
		return id, ErrBadSignature
	}
	return id, nil
}

// FormatKeyID renders a key ID the way index entries record it
func FormatKeyID(id uint64) string { return formatID(id) }
