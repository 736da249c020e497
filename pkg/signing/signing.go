// SPDX-License-Identifier: Apache-2.0

// Package signing owns the minisign keypair used to sign release artifacts.
// Private key material never leaves a Manager and is wiped by Close.
package signing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"aead.dev/minisign"
	"github.com/charmbracelet/log"
)

const (
	// EnvSecret holds a private key; when set, nothing is read from or
	// written to disk.
	EnvSecret = "WAREHOUSE_SECRET"
	// EnvPublic holds the matching public key (single base64 line)
	EnvPublic = "WAREHOUSE_PUBLIC"

	// RefGenerate resolves to the default keypair, created on first use
	RefGenerate = "generate"

	DefaultKeyFile = "warehouse.key"
	PublicKeyExt   = ".pub"

	probeMessage = "warehouse key probe"
)

// ErrClosed is returned when signing with a closed Manager
var ErrClosed = errors.New("signing key manager is closed")

// KeyError reports a key that could not be loaded, generated or used
type KeyError struct {
	Op   string
	Path string
	Err  error
}

func (e *KeyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("key %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("key %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// PasswordFunc supplies the password for an encrypted private key
type PasswordFunc func(prompt string) (string, error)

// Options controls where keys live and how they are protected
type Options struct {
	// KeyDir holds the default keypair for RefGenerate
	KeyDir string
	// HistoryDir receives a copy of every public key ever generated. Empty
	// disables the history.
	HistoryDir string
	// Password unlocks encrypted keys
	Password PasswordFunc
	// NewPassword protects new keys when Encrypt is set; defaults to Password
	NewPassword PasswordFunc
	// Encrypt stores newly generated private keys scrypt-encrypted
	Encrypt bool
	// Getenv defaults to os.Getenv
	Getenv func(string) string
	// Rand defaults to crypto/rand
	Rand io.Reader
}

func (o Options) getenv(k string) string {
	if o.Getenv != nil {
		return o.Getenv(k)
	}
	return os.Getenv(k)
}

func (o Options) random() io.Reader {
	if o.Rand != nil {
		return o.Rand
	}
	return rand.Reader
}

// Manager holds one minisign keypair
type Manager struct {
	mu        sync.Mutex
	priv      minisign.PrivateKey
	pub       minisign.PublicKey
	privPath  string
	pubPath   string
	generated bool
	fromEnv   bool
	closed    bool
}

// KeyPaths resolves a key reference to private and public key paths. The
// public key of foo.key is foo.pub; any other path gets ".pub" appended.
func KeyPaths(ref, keyDir string) (string, string) {
	priv := ref
	if ref == RefGenerate || ref == "" {
		priv = filepath.Join(keyDir, DefaultKeyFile)
	}
	if strings.HasSuffix(priv, ".key") {
		return priv, strings.TrimSuffix(priv, ".key") + PublicKeyExt
	}
	return priv, priv + PublicKeyExt
}

// LoadOrGenerate returns a Manager for ref. WAREHOUSE_SECRET takes
// precedence over files. An existing keypair is loaded and checked; when
// neither key file exists and ref is "generate" or a path, a new keypair is
// generated and persisted. Exactly one existing file is an error.
func LoadOrGenerate(ref string, opts Options) (*Manager, error) {
	if secret := opts.getenv(EnvSecret); secret != "" {
		return loadFromEnv(secret, opts.getenv(EnvPublic), opts)
	}

	privPath, pubPath := KeyPaths(ref, opts.KeyDir)
	privExists, err := exists(privPath)
	if err != nil {
		return nil, &KeyError{Op: "stat", Path: privPath, Err: err}
	}
	pubExists, err := exists(pubPath)
	if err != nil {
		return nil, &KeyError{Op: "stat", Path: pubPath, Err: err}
	}

	switch {
	case privExists && pubExists:
		return Load(privPath, pubPath, opts)
	case privExists:
		return nil, &KeyError{Op: "load", Path: pubPath, Err: errors.New("private key exists but its public key is missing")}
	case pubExists:
		return nil, &KeyError{Op: "load", Path: privPath, Err: errors.New("public key exists but its private key is missing")}
	}

	return Generate(privPath, pubPath, opts)
}

// Load reads and checks an existing keypair
func Load(privPath, pubPath string, opts Options) (*Manager, error) {
	privData, err := os.ReadFile(privPath)
	if err != nil {
		return nil, &KeyError{Op: "read", Path: privPath, Err: err}
	}
	defer clear(privData)

	priv, err := decodePrivateKey(privData, opts.Password)
	if err != nil {
		return nil, &KeyError{Op: "decode", Path: privPath, Err: err}
	}

	pubData, err := os.ReadFile(pubPath)
	if err != nil {
		priv = minisign.PrivateKey{}
		return nil, &KeyError{Op: "read", Path: pubPath, Err: err}
	}
	pub, err := ParsePublicKey(string(pubData))
	if err != nil {
		priv = minisign.PrivateKey{}
		return nil, &KeyError{Op: "decode", Path: pubPath, Err: err}
	}

	m := &Manager{priv: priv, pub: pub, privPath: privPath, pubPath: pubPath}
	priv = minisign.PrivateKey{}
	if err := m.check(); err != nil {
		m.Close()
		return nil, &KeyError{Op: "verify", Path: privPath, Err: err}
	}

	log.Debugf("Loaded signing key %s from %s", m.KeyID(), privPath)
	return m, nil
}

// Generate creates a new keypair and persists it. Existing files are never
// overwritten.
func Generate(privPath, pubPath string, opts Options) (*Manager, error) {
	pub, priv, err := minisign.GenerateKey(opts.random())
	if err != nil {
		return nil, &KeyError{Op: "generate", Err: err}
	}

	m := &Manager{priv: priv, pub: pub, privPath: privPath, pubPath: pubPath, generated: true}
	priv = minisign.PrivateKey{}

	if err := m.persist(opts); err != nil {
		m.Close()
		return nil, err
	}
	if err := appendHistory(opts.HistoryDir, m.pub, time.Now()); err != nil {
		m.Close()
		return nil, &KeyError{Op: "record history", Path: opts.HistoryDir, Err: err}
	}

	log.Infof("Generated signing key %s at %s", m.KeyID(), privPath)
	return m, nil
}

func loadFromEnv(secret, public string, opts Options) (*Manager, error) {
	data := []byte(secret)
	defer clear(data)

	priv, err := decodePrivateKey(data, opts.Password)
	if err != nil {
		return nil, &KeyError{Op: "decode", Path: "$" + EnvSecret, Err: err}
	}

	var pub minisign.PublicKey
	if public != "" {
		pub, err = ParsePublicKey(public)
		if err != nil {
			priv = minisign.PrivateKey{}
			return nil, &KeyError{Op: "decode", Path: "$" + EnvPublic, Err: err}
		}
	} else {
		derived, ok := priv.Public().(minisign.PublicKey)
		if !ok {
			priv = minisign.PrivateKey{}
			return nil, &KeyError{Op: "derive public key", Path: "$" + EnvSecret, Err: errors.New("unexpected public key type")}
		}
		pub = derived
	}

	m := &Manager{priv: priv, pub: pub, fromEnv: true}
	priv = minisign.PrivateKey{}
	if err := m.check(); err != nil {
		m.Close()
		return nil, &KeyError{Op: "verify", Path: "$" + EnvSecret, Err: err}
	}

	log.Debugf("Loaded signing key %s from environment", m.KeyID())
	return m, nil
}

// check confirms the keypair belongs together
func (m *Manager) check() error {
	if m.priv.ID() != m.pub.ID() {
		return fmt.Errorf("private key %s does not match public key %s", formatID(m.priv.ID()), formatID(m.pub.ID()))
	}
	sig := minisign.Sign(m.priv, []byte(probeMessage))
	if !minisign.Verify(m.pub, []byte(probeMessage), sig) {
		return errors.New("probe signature does not verify with the public key")
	}
	return nil
}

// Sign returns a minisign signature over msg
func (m *Manager) Sign(msg []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return minisign.Sign(m.priv, msg), nil
}

// PublicKey returns the public half of the keypair
func (m *Manager) PublicKey() minisign.PublicKey { return m.pub }

// ExportPublic returns the public key as a single base64 line, the value
// expected in WAREHOUSE_PUBLIC and in binstall's signing.pubkey.
func (m *Manager) ExportPublic() string { return m.pub.String() }

// KeyID returns the key id as uppercase hex
func (m *Manager) KeyID() string { return formatID(m.pub.ID()) }

// Generated reports whether the keypair was created by this Manager
func (m *Manager) Generated() bool { return m.generated }

// FromEnv reports whether the keypair came from WAREHOUSE_SECRET
func (m *Manager) FromEnv() bool { return m.fromEnv }

// Paths returns the private and public key file paths; both are empty for
// keys loaded from the environment.
func (m *Manager) Paths() (string, string) { return m.privPath, m.pubPath }

// Close wipes the private key. Sign fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priv = minisign.PrivateKey{}
	m.closed = true
}

// Verify reports whether sig is a valid signature of msg under pub
func Verify(pub minisign.PublicKey, msg, sig []byte) bool {
	return minisign.Verify(pub, msg, sig)
}

// ParsePublicKey accepts a minisign public key file or its bare base64 line
func ParsePublicKey(s string) (minisign.PublicKey, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "untrusted comment:") {
		s = "untrusted comment: minisign public key\n" + s
	}
	var pub minisign.PublicKey
	if err := pub.UnmarshalText([]byte(s)); err != nil {
		return minisign.PublicKey{}, err
	}
	return pub, nil
}

// PublicKeyFile renders pub as a minisign public key file
func PublicKeyFile(pub minisign.PublicKey) []byte {
	text, _ := pub.MarshalText()
	return append(text, '\n')
}

func formatID(id uint64) string {
	return strings.ToUpper(strconv.FormatUint(id, 16))
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
