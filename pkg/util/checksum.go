// SPDX-License-Identifier: Apache-2.0
package util

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// Checksums maps file names to hex SHA-256 digests: the content of a
// coreutils SHA256SUMS file.
type Checksums map[string]string

// Bytes renders "digest  name" lines sorted by name, so equal sets give
// equal bytes and therefore equal signatures.
func (c Checksums) Bytes() []byte {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	var b bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&b, "%s  %s\n", c[name], name)
	}
	return b.Bytes()
}

// Check hashes the file at path and compares it with the entry for its
// base name.
func (c Checksums) Check(path string) error {
	name := filepath.Base(path)
	want, ok := c[name]
	if !ok {
		return fmt.Errorf("%s is not listed in the checksums", name)
	}
	got, err := FileSHA256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", name, want, got)
	}
	log.Debug("Checksum verified", "file", name)
	return nil
}

// FileSHA256 returns the hex SHA-256 digest of a file
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256Bytes returns the hex SHA-256 digest of data
func SHA256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReadChecksums parses a SHA256SUMS file
func ReadChecksums(path string) (Checksums, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checksums file: %w", err)
	}
	defer f.Close()
	return ParseChecksums(f)
}

// ParseChecksums reads "digest  name" or "digest *name" lines. Blank lines
// and # comments are skipped; anything else that is not a 64 digit hex
// digest followed by a name is an error.
func ParseChecksums(r io.Reader) (Checksums, error) {
	sums := make(Checksums)
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		digest, name, ok := strings.Cut(line, " ")
		name = strings.TrimPrefix(strings.TrimLeft(name, " "), "*")
		if _, err := hex.DecodeString(digest); !ok || err != nil || len(digest) != sha256.Size*2 || name == "" {
			return nil, fmt.Errorf("line %d: malformed checksum entry", n)
		}
		sums[name] = strings.ToLower(digest)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}
	return sums, nil
}
