// SPDX-License-Identifier: Apache-2.0
package util

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSHA256Bytes(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := SHA256Bytes([]byte("abc")); got != want {
		t.Errorf("SHA256Bytes() = %s, want %s", got, want)
	}
}

func TestChecksums_BytesRoundTrip(t *testing.T) {
	sums := Checksums{
		"b.tar.xz": strings.Repeat("b", 64),
		"a.tar.xz": strings.Repeat("a", 64),
	}

	data := sums.Bytes()
	want := strings.Repeat("a", 64) + "  a.tar.xz\n" + strings.Repeat("b", 64) + "  b.tar.xz\n"
	if string(data) != want {
		t.Errorf("Bytes() = %q, want %q", data, want)
	}

	parsed, err := ParseChecksums(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ParseChecksums() error = %v", err)
	}
	for name, hash := range sums {
		if parsed[name] != hash {
			t.Errorf("ParseChecksums()[%s] = %s, want %s", name, parsed[name], hash)
		}
	}
}

func TestParseChecksums(t *testing.T) {
	digest := strings.Repeat("ab", 32)
	tests := []struct {
		name    string
		input   string
		want    Checksums
		wantErr bool
	}{
		{name: "text mode", input: digest + "  foo.tar.xz\n", want: Checksums{"foo.tar.xz": digest}},
		{name: "binary mode", input: digest + " *foo.tar.xz\n", want: Checksums{"foo.tar.xz": digest}},
		{name: "uppercase digest", input: strings.ToUpper(digest) + "  foo\n", want: Checksums{"foo": digest}},
		{name: "comments and blanks", input: "# release 1.0\n\n" + digest + "  foo\n", want: Checksums{"foo": digest}},
		{name: "short digest", input: "abcd  foo\n", wantErr: true},
		{name: "not hex", input: strings.Repeat("zz", 32) + "  foo\n", wantErr: true},
		{name: "no name", input: digest + "\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChecksums(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChecksums() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseChecksums() = %v, want %v", got, tt.want)
			}
			for name, d := range tt.want {
				if got[name] != d {
					t.Errorf("ParseChecksums()[%s] = %s, want %s", name, got[name], d)
				}
			}
		})
	}
}

func TestChecksums_Check(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "artifact.bin")
	if err := os.WriteFile(file, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		sums    Checksums
		wantErr bool
	}{
		{name: "matching digest", sums: Checksums{"artifact.bin": SHA256Bytes([]byte("payload"))}},
		{name: "mismatched digest", sums: Checksums{"artifact.bin": SHA256Bytes([]byte("other"))}, wantErr: true},
		{name: "not listed", sums: Checksums{"other.bin": SHA256Bytes([]byte("payload"))}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sums.Check(file)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteTarXz_DeterministicAndExtractable(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "foo")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho foo\n"), 0755); err != nil {
		t.Fatal(err)
	}

	entries := []TarEntry{
		{Name: "provenance.json", Data: []byte(`{"crate":"foo"}`)},
		{Name: "foo", Mode: 0755, Source: bin},
	}

	var first, second bytes.Buffer
	if err := WriteTarXz(&first, entries, time.Unix(0, 0)); err != nil {
		t.Fatalf("WriteTarXz() error = %v", err)
	}
	if err := WriteTarXz(&second, entries, time.Unix(0, 0)); err != nil {
		t.Fatalf("WriteTarXz() error = %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("WriteTarXz() is not deterministic")
	}

	archive := filepath.Join(dir, "foo.tar.xz")
	if err := os.WriteFile(archive, first.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	if err := ExtractTarXz(archive, out); err != nil {
		t.Fatalf("ExtractTarXz() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(out, "foo"))
	if err != nil {
		t.Fatalf("binary not extracted: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("binary mode = %v, want 0755", info.Mode().Perm())
	}
	if _, err := os.Stat(filepath.Join(out, "provenance.json")); err != nil {
		t.Errorf("provenance not extracted: %v", err)
	}
}

func TestWriteTarGz_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := WriteTarGz(&buf, []TarEntry{{Name: "pkg/Cargo.toml", Data: []byte("[package]\n")}}, time.Unix(0, 0)); err != nil {
		t.Fatalf("WriteTarGz() error = %v", err)
	}

	archive := filepath.Join(dir, "pkg.tar.gz")
	if err := os.WriteFile(archive, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ExtractTarGz(archive, filepath.Join(dir, "out")); err != nil {
		t.Fatalf("ExtractTarGz() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "pkg", "Cargo.toml"))
	if err != nil {
		t.Fatalf("file not extracted: %v", err)
	}
	if string(data) != "[package]\n" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestWriteTar_RejectsUnsafeNames(t *testing.T) {
	tests := []string{"", "/etc/passwd", "../escape"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := WriteTar(&buf, []TarEntry{{Name: name, Data: []byte("x")}}, time.Unix(0, 0))
			if err == nil {
				t.Errorf("WriteTar() accepted entry name %q", name)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	if err := WriteFileAtomic(path, []byte("old"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("new"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target file", len(entries))
	}
}

func TestExtractTar_Entries(t *testing.T) {
	tests := []struct {
		name    string
		hdr     tar.Header
		wantErr bool
	}{
		{name: "nested file", hdr: tar.Header{Name: "bin/foo", Typeflag: tar.TypeReg, Mode: 0755}},
		{name: "parent escape", hdr: tar.Header{Name: "../evil", Typeflag: tar.TypeReg, Mode: 0644}, wantErr: true},
		{name: "deep escape", hdr: tar.Header{Name: "a/../../evil", Typeflag: tar.TypeReg, Mode: 0644}, wantErr: true},
		{name: "symlink skipped", hdr: tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tw := tar.NewWriter(&buf)
			hdr := tt.hdr
			var body []byte
			if hdr.Typeflag == tar.TypeReg {
				body = []byte("data")
				hdr.Size = int64(len(body))
			}
			if err := tw.WriteHeader(&hdr); err != nil {
				t.Fatal(err)
			}
			if _, err := tw.Write(body); err != nil {
				t.Fatal(err)
			}
			if err := tw.Close(); err != nil {
				t.Fatal(err)
			}

			dir := t.TempDir()
			err := ExtractTar(&buf, dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractTar() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr || hdr.Typeflag != tar.TypeReg {
				if _, err := os.Lstat(filepath.Join(dir, "link")); err == nil {
					t.Error("symlink was created")
				}
				return
			}
			data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(hdr.Name)))
			if err != nil || string(data) != "data" {
				t.Errorf("extracted %s = %q, %v", hdr.Name, data, err)
			}
		})
	}
}
