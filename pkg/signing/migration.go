// SPDX-License-Identifier: Apache-2.0
package signing

import (
	"errors"
	"fmt"
	"os"

	"github.com/Work-Fort/Warehouse/pkg/util"
)

// EncryptKeyFile rewrites an unencrypted private key file in place with
// password protection. Already encrypted keys are left untouched and
// reported as not migrated.
func EncryptKeyFile(privPath, password string) (bool, error) {
	if password == "" {
		return false, errors.New("empty password")
	}

	keyData, err := os.ReadFile(privPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read private key: %w", err)
	}
	defer clear(keyData)

	if IsKeyEncrypted(keyData) {
		return false, nil
	}

	priv, err := decodePrivateKey(keyData, nil)
	if err != nil {
		return false, &KeyError{Op: "decode", Path: privPath, Err: err}
	}
	encrypted, err := encodePrivateKey(priv, password)
	if err != nil {
		return false, &KeyError{Op: "encrypt", Path: privPath, Err: err}
	}

	info, err := os.Stat(privPath)
	if err != nil {
		return false, err
	}
	if err := util.WriteFileAtomic(privPath, append(encrypted, '\n'), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write encrypted key: %w", err)
	}
	return true, nil
}
