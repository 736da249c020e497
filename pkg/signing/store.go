// SPDX-License-Identifier: Apache-2.0
package signing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aead.dev/minisign"
	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/util"
)

const timestampFormat = "2006-01-02-150405"

// persist writes the keypair. The private key goes first so a crash never
// leaves a public key without its private half.
func (m *Manager) persist(opts Options) error {
	for _, p := range []string{m.privPath, m.pubPath} {
		if ok, err := exists(p); err != nil {
			return &KeyError{Op: "stat", Path: p, Err: err}
		} else if ok {
			return &KeyError{Op: "write", Path: p, Err: errors.New("refusing to overwrite existing key")}
		}
	}

	if err := os.MkdirAll(filepath.Dir(m.privPath), 0700); err != nil {
		return &KeyError{Op: "create key directory", Path: filepath.Dir(m.privPath), Err: err}
	}

	var password string
	if opts.Encrypt {
		ask := opts.NewPassword
		if ask == nil {
			ask = opts.Password
		}
		if ask == nil {
			return &KeyError{Op: "encrypt", Path: m.privPath, Err: errors.New("encrypted keys requested but no password source is available")}
		}
		pw, err := ask("Choose a password to protect the new signing key")
		if err != nil {
			return &KeyError{Op: "encrypt", Path: m.privPath, Err: err}
		}
		password = pw
	}

	privData, err := encodePrivateKey(m.priv, password)
	if err != nil {
		return &KeyError{Op: "encode", Path: m.privPath, Err: err}
	}
	defer clear(privData)

	if err := util.WriteFileAtomic(m.privPath, append(privData, '\n'), 0600); err != nil {
		return &KeyError{Op: "write", Path: m.privPath, Err: err}
	}
	if err := util.WriteFileAtomic(m.pubPath, PublicKeyFile(m.pub), 0644); err != nil {
		return &KeyError{Op: "write", Path: m.pubPath, Err: err}
	}
	return nil
}

// appendHistory records pub as <dir>/<timestamp>-<keyid>.pub
func appendHistory(dir string, pub minisign.PublicKey, now time.Time) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s%s", now.UTC().Format(timestampFormat), formatID(pub.ID()), PublicKeyExt)
	return util.WriteFileAtomic(filepath.Join(dir, name), PublicKeyFile(pub), 0644)
}

// History lists recorded public keys, oldest first
func History(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == PublicKeyExt {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// RotateResult describes a completed rotation
type RotateResult struct {
	OldKeyID  string
	BackupDir string
	Manager   *Manager
}

// Rotate backs up the current keypair of ref to <keydir>/backups/<timestamp>
// and replaces it with a new one. The old keypair must load cleanly first.
func Rotate(ref string, opts Options) (*RotateResult, error) {
	if opts.getenv(EnvSecret) != "" {
		return nil, &KeyError{Op: "rotate", Path: "$" + EnvSecret, Err: errors.New("keys supplied through the environment cannot be rotated")}
	}

	privPath, pubPath := KeyPaths(ref, opts.KeyDir)
	old, err := Load(privPath, pubPath, opts)
	if err != nil {
		return nil, err
	}
	oldID := old.KeyID()
	old.Close()

	backupDir := filepath.Join(filepath.Dir(privPath), "backups", time.Now().UTC().Format(timestampFormat))
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, &KeyError{Op: "backup", Path: backupDir, Err: err}
	}
	if err := util.CopyFileAtomic(privPath, filepath.Join(backupDir, filepath.Base(privPath)), 0600); err != nil {
		return nil, &KeyError{Op: "backup", Path: privPath, Err: err}
	}
	if err := util.CopyFileAtomic(pubPath, filepath.Join(backupDir, filepath.Base(pubPath)), 0644); err != nil {
		return nil, &KeyError{Op: "backup", Path: pubPath, Err: err}
	}

	if err := os.Remove(pubPath); err != nil {
		return nil, &KeyError{Op: "remove", Path: pubPath, Err: err}
	}
	if err := os.Remove(privPath); err != nil {
		return nil, &KeyError{Op: "remove", Path: privPath, Err: err}
	}

	m, err := Generate(privPath, pubPath, opts)
	if err != nil {
		return nil, fmt.Errorf("old key backed up to %s: %w", backupDir, err)
	}

	log.Infof("Rotated signing key %s -> %s (backup in %s)", oldID, m.KeyID(), backupDir)
	return &RotateResult{OldKeyID: oldID, BackupDir: backupDir, Manager: m}, nil
}
