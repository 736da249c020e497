// SPDX-License-Identifier: Apache-2.0
package signing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"aead.dev/minisign"
)

// scryptKDF marks a password-protected minisign secret key
const scryptKDF = "Sc"

// IsKeyEncrypted reports whether key data is a scrypt-encrypted minisign
// secret key
func IsKeyEncrypted(keyData []byte) bool {
	raw, err := keyPayload(keyData)
	if err != nil || len(raw) < 4 {
		return false
	}
	return string(raw[2:4]) == scryptKDF
}

// keyPayload base64-decodes the key line, skipping any comment line
func keyPayload(keyData []byte) ([]byte, error) {
	var line string
	for _, l := range strings.Split(string(keyData), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "untrusted comment:") {
			continue
		}
		line = l
		break
	}
	if line == "" {
		return nil, errors.New("no key data")
	}
	return base64.StdEncoding.DecodeString(line)
}

// decodePrivateKey parses a secret key file or bare base64 line, asking
// for a password when the key is encrypted.
func decodePrivateKey(keyData []byte, password PasswordFunc) (minisign.PrivateKey, error) {
	text := bytes.TrimSpace(keyData)
	if !bytes.HasPrefix(text, []byte("untrusted comment:")) {
		text = append([]byte("untrusted comment: minisign secret key\n"), text...)
		defer clear(text)
	}

	if !IsKeyEncrypted(text) {
		var priv minisign.PrivateKey
		if err := priv.UnmarshalText(text); err != nil {
			return minisign.PrivateKey{}, fmt.Errorf("invalid private key: %w", err)
		}
		return priv, nil
	}

	if password == nil {
		return minisign.PrivateKey{}, errors.New("private key is encrypted and no password source is available")
	}
	pw, err := password("Enter password to unlock signing key")
	if err != nil {
		return minisign.PrivateKey{}, fmt.Errorf("failed to get password: %w", err)
	}
	priv, err := minisign.DecryptKey(pw, text)
	if err != nil {
		return minisign.PrivateKey{}, fmt.Errorf("failed to decrypt private key (wrong password?): %w", err)
	}
	return priv, nil
}

// encodePrivateKey renders priv as a secret key file, encrypted when
// password is not empty
func encodePrivateKey(priv minisign.PrivateKey, password string) ([]byte, error) {
	if password != "" {
		return minisign.EncryptKey(password, priv)
	}
	return priv.MarshalText()
}
