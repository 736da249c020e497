// SPDX-License-Identifier: Apache-2.0
package signing

import (
	"errors"
	"fmt"
	"os"
	"time"

	"aead.dev/minisign"
	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/charmbracelet/log"
)

// ExportBackup returns the private key as an ASCII-armored OpenPGP message
// encrypted with passphrase. The backup restores with any OpenPGP tool
// (gpg --decrypt) as well as RestoreBackup.
func (m *Manager) ExportBackup(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	plain, err := m.priv.MarshalText()
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	defer clear(plain)

	enc, err := crypto.PGP().Encryption().Password([]byte(passphrase)).New()
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	msg, err := enc.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt backup: %w", err)
	}
	armored, err := msg.ArmorBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to armor backup: %w", err)
	}
	return armored, nil
}

// WriteBackup writes an encrypted backup to path. An existing file is never
// overwritten.
func (m *Manager) WriteBackup(path, passphrase string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("output file already exists: %s (will not overwrite)", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check output file: %w", err)
	}

	data, err := m.ExportBackup(passphrase)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return f.Close()
}

// decryptBackup opens an armored backup and parses the key inside
func decryptBackup(data []byte, passphrase string) (minisign.PrivateKey, error) {
	dec, err := crypto.PGP().Decryption().Password([]byte(passphrase)).New()
	if err != nil {
		return minisign.PrivateKey{}, fmt.Errorf("failed to create decryptor: %w", err)
	}
	res, err := dec.Decrypt(data, crypto.Armor)
	if err != nil {
		return minisign.PrivateKey{}, fmt.Errorf("failed to decrypt backup (wrong passphrase?): %w", err)
	}
	plain := res.Bytes()
	defer clear(plain)

	return decodePrivateKey(plain, nil)
}

// RestoreBackup decrypts a backup and installs it as the keypair for ref.
// Existing key files are never overwritten.
func RestoreBackup(data []byte, passphrase, ref string, opts Options) (*Manager, error) {
	priv, err := decryptBackup(data, passphrase)
	if err != nil {
		return nil, &KeyError{Op: "restore", Err: err}
	}
	pub, ok := priv.Public().(minisign.PublicKey)
	if !ok {
		priv = minisign.PrivateKey{}
		return nil, &KeyError{Op: "restore", Err: errors.New("unexpected public key type")}
	}

	privPath, pubPath := KeyPaths(ref, opts.KeyDir)
	m := &Manager{priv: priv, pub: pub, privPath: privPath, pubPath: pubPath}
	priv = minisign.PrivateKey{}

	if err := m.check(); err != nil {
		m.Close()
		return nil, &KeyError{Op: "restore", Err: err}
	}
	if err := m.persist(opts); err != nil {
		m.Close()
		return nil, err
	}
	if err := appendHistory(opts.HistoryDir, m.pub, time.Now()); err != nil {
		m.Close()
		return nil, &KeyError{Op: "record history", Path: opts.HistoryDir, Err: err}
	}

	log.Infof("Restored signing key %s to %s", m.KeyID(), privPath)
	return m, nil
}
