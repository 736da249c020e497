// SPDX-License-Identifier: Apache-2.0
package index

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

// Problem is one verification failure
type Problem struct {
	File   string
	Reason string
}

func (p Problem) String() string { return p.File + ": " + p.Reason }

// VerifyReport summarises a verification pass
type VerifyReport struct {
	Checked  int
	Problems []Problem
}

// OK reports whether everything verified
func (r *VerifyReport) OK() bool { return len(r.Problems) == 0 }

// ErrVerification is returned when any entry fails to verify
var ErrVerification = errors.New("published tree failed verification")

// Verify re-checks every entry of dir/index.json: the archive digest, its
// .sig file, the signature recorded in the index, and each release's
// signed SHA256SUMS. Each signature is checked against the key in keys
// named by its key ID, so releases signed before a rotation still verify
// when the old key is in the ring.
func Verify(dir string, keys signing.Keyring) (*VerifyReport, error) {
	idx, err := Load(IndexPath(dir))
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	add := func(file, format string, args ...any) {
		report.Problems = append(report.Problems, Problem{File: file, Reason: fmt.Sprintf(format, args...)})
	}

	releases := make(map[string]map[string]string)

	for _, e := range idx.Entries {
		report.Checked++
		archive := filepath.Join(dir, filepath.FromSlash(e.File))

		data, err := os.ReadFile(archive)
		if err != nil {
			add(e.File, "unreadable: %v", err)
			continue
		}
		if sum := util.SHA256Bytes(data); sum != e.SHA256 {
			add(e.File, "digest %s does not match index %s", sum, e.SHA256)
		}

		if sig, err := os.ReadFile(archive + layout.SignatureExt); err != nil {
			add(e.File+layout.SignatureExt, "unreadable: %v", err)
		} else if _, err := keys.Verify(data, sig); err != nil {
			add(e.File+layout.SignatureExt, "%v", err)
		}
		id, err := keys.Verify(data, []byte(e.Signature))
		switch {
		case err != nil:
			add(e.File, "index signature: %v", err)
		case e.KeyID != "" && e.KeyID != id:
			add(e.File, "index records key %s but the signature is by %s", e.KeyID, id)
		}

		rel := path.Dir(e.File)
		if releases[rel] == nil {
			releases[rel] = make(map[string]string)
		}
		releases[rel][path.Base(e.File)] = e.SHA256
	}

	for _, rel := range slices.Sorted(maps.Keys(releases)) {
		expected := releases[rel]
		sumsFile := path.Join(rel, layout.ChecksumsFile)
		sumsPath := filepath.Join(dir, filepath.FromSlash(sumsFile))
		data, err := os.ReadFile(sumsPath)
		if err != nil {
			add(sumsFile, "unreadable: %v", err)
			continue
		}
		if sig, err := os.ReadFile(sumsPath + layout.MinisigExt); err != nil {
			add(sumsFile+layout.MinisigExt, "unreadable: %v", err)
		} else if _, err := keys.Verify(data, sig); err != nil {
			add(sumsFile+layout.MinisigExt, "%v", err)
		}

		listed, err := util.ReadChecksums(sumsPath)
		if err != nil {
			add(sumsFile, "unparsable: %v", err)
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(expected)) {
			if sum := expected[name]; listed[name] != sum {
				add(sumsFile, "entry for %s is %q, index has %s", name, listed[name], sum)
			}
		}
	}

	if !report.OK() {
		return report, ErrVerification
	}
	return report, nil
}
