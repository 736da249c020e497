// SPDX-License-Identifier: Apache-2.0

// Package layout defines where published artifacts live, both on disk and
// behind the download base URL. The binstall URL template and the concrete
// URLs written to the index are derived from the same rules.
package layout

import (
	"path"
	"strings"
)

const (
	// Tree publishes under <base>/<crate>/<version>/<file>
	Tree = "tree"
	// GitHub publishes under <base>/<crate>-v<version>/<file>, matching
	// https://github.com/<owner>/<repo>/releases/download/<tag>/<file>
	GitHub = "github"

	FormatTxz = "txz"
	FormatTgz = "tgz"

	IndexFile     = "index.json"
	PublicKeyFile = "warehouse.pub"
	ChecksumsFile = "SHA256SUMS"
	SignatureExt  = ".sig"
	MinisigExt    = ".minisig"
	DigestExt     = ".sha256"
)

// ArchiveSuffix returns the file suffix for an archive format
func ArchiveSuffix(format string) string {
	if format == FormatTgz {
		return ".tar.gz"
	}
	return ".tar.xz"
}

// BinaryExt returns the executable suffix for a target triple
func BinaryExt(target string) string {
	if strings.Contains(target, "-windows") {
		return ".exe"
	}
	return ""
}

// ArchiveName returns <crate>-<target>-v<version><suffix>
func ArchiveName(crate, version, target, format string) string {
	return crate + "-" + target + "-v" + version + ArchiveSuffix(format)
}

// ReleaseDir returns the slash-separated directory of one crate release
// inside the published tree.
func ReleaseDir(crate, version string) string {
	return path.Join(crate, version)
}

// ReleaseTag returns the tag used for hosted releases of a crate version
func ReleaseTag(crate, version string) string {
	return crate + "-v" + version
}

// URLTemplate returns the binstall pkg-url template for base and layout
func URLTemplate(base, layoutName string) string {
	file := "{ name }-{ target }-v{ version }{ archive-suffix }"
	if layoutName == GitHub {
		return joinBase(base, "{ name }-v{ version }/"+file)
	}
	return joinBase(base, "{ name }/{ version }/"+file)
}

// URL expands URLTemplate for one artifact. With an empty base the result
// is the artifact path relative to the published tree root.
func URL(base, layoutName, crate, version, target, format string) string {
	if base == "" {
		return path.Join(ReleaseDir(crate, version), ArchiveName(crate, version, target, format))
	}
	return Expand(URLTemplate(base, layoutName), map[string]string{
		"name":           crate,
		"version":        version,
		"target":         target,
		"archive-suffix": ArchiveSuffix(format),
	})
}

// Expand substitutes "{ key }" placeholders the way binstall does
func Expand(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{ "+k+" }", v)
	}
	return out
}

func joinBase(base, rest string) string {
	return strings.TrimRight(base, "/") + "/" + rest
}
