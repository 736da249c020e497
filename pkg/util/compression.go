// SPDX-License-Identifier: Apache-2.0
package util

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ulikunitz/xz"
)

// TarEntry is a regular file to place in an archive. Data is used when
// non-nil, otherwise the contents are streamed from Source.
type TarEntry struct {
	Name   string
	Mode   int64
	Data   []byte
	Source string
}

// WriteTarXz writes a deterministic xz-compressed tar of entries to w
func WriteTarXz(w io.Writer, entries []TarEntry, modTime time.Time) error {
	xzWriter, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}

	if err := WriteTar(xzWriter, entries, modTime); err != nil {
		xzWriter.Close()
		return err
	}

	// Ensure all data is flushed
	if err := xzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush compressed data: %w", err)
	}
	return nil
}

// WriteTarGz writes a deterministic gzip-compressed tar of entries to w
func WriteTarGz(w io.Writer, entries []TarEntry, modTime time.Time) error {
	gzWriter, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if err := WriteTar(gzWriter, entries, modTime); err != nil {
		gzWriter.Close()
		return err
	}

	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush compressed data: %w", err)
	}
	return nil
}

// WriteTar writes entries sorted by name with fixed ownership and mtime, so
// the same inputs always produce the same bytes.
func WriteTar(w io.Writer, entries []TarEntry, modTime time.Time) error {
	sorted := make([]TarEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	tw := tar.NewWriter(w)
	for _, e := range sorted {
		if err := writeTarEntry(tw, e, modTime); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	return nil
}

func writeTarEntry(tw *tar.Writer, e TarEntry, modTime time.Time) error {
	if e.Name == "" || strings.HasPrefix(e.Name, "/") || strings.Contains(e.Name, "..") {
		return fmt.Errorf("invalid archive entry name: %q", e.Name)
	}

	mode := e.Mode
	if mode == 0 {
		mode = 0644
	}

	var (
		reader io.Reader
		size   int64
	)
	if e.Data != nil {
		size = int64(len(e.Data))
	} else {
		f, err := os.Open(e.Source)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", e.Source, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", e.Source, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", e.Source)
		}
		reader = f
		size = info.Size()
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     e.Name,
		Mode:     mode,
		Size:     size,
		ModTime:  modTime.UTC(),
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", e.Name, err)
	}

	if e.Data != nil {
		if _, err := tw.Write(e.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.Name, err)
		}
		return nil
	}

	if _, err := io.Copy(tw, reader); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.Name, err)
	}
	return nil
}

// maxExtractedFile bounds each extracted file. Archives handled here hold
// a handful of binaries.
const maxExtractedFile = 1 << 30

// ExtractTarGz unpacks a gzip-compressed tar into dstDir
func ExtractTarGz(src, dstDir string) error {
	return extractFile(src, dstDir, func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	})
}

// ExtractTarXz unpacks an xz-compressed tar into dstDir
func ExtractTarXz(src, dstDir string) error {
	return extractFile(src, dstDir, func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	})
}

func extractFile(src, dstDir string, decompress func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	r, err := decompress(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(src), err)
	}
	if err := ExtractTar(r, dstDir); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(src), err)
	}
	log.Debug("Extracted archive", "archive", src, "dir", dstDir)
	return nil
}

// ExtractTar unpacks regular files and directories from r into dstDir.
// Entries that would land outside dstDir fail the extraction; links and
// devices are skipped.
func ExtractTar(r io.Reader, dstDir string) error {
	root := filepath.Clean(dstDir)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt tar stream: %w", err)
		}

		target := filepath.Join(root, hdr.Name)
		if rel, err := filepath.Rel(root, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("entry %q escapes the extraction dir", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr); err != nil {
				return err
			}
		default:
			log.Debug("Skipping tar entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
}

func writeEntry(target string, r io.Reader, hdr *tar.Header) error {
	if hdr.Size > maxExtractedFile {
		return fmt.Errorf("entry %q is larger than %d bytes", hdr.Name, maxExtractedFile)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.CopyN(out, r, hdr.Size); err != nil {
		out.Close()
		return fmt.Errorf("entry %q: %w", hdr.Name, err)
	}
	return out.Close()
}
