// SPDX-License-Identifier: Apache-2.0
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// UserAgent identifies warehouse to registries; crates.io rejects
// anonymous clients.
const UserAgent = "warehouse (https://github.com/Work-Fort/Warehouse)"

// ProgressCallback is called periodically during download with current progress
// percent is a float between 0 and 1 representing completion percentage
type ProgressCallback func(percent float64)

// StatusError is returned for non-200 responses
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status from %s: %s", e.URL, e.Status)
}

// Options configures the download
type Options struct {
	ProgressCallback ProgressCallback
	Headers          map[string]string
	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client
	// MaxBytes aborts downloads larger than this; zero means unlimited
	MaxBytes int64
}

// File downloads a file from URL to destination with optional progress callback
func File(ctx context.Context, url, dest string, progressCallback ProgressCallback) error {
	return FileWithOptions(ctx, url, dest, &Options{
		ProgressCallback: progressCallback,
	})
}

// FileWithOptions downloads a file with custom options. The destination
// only appears once the download completed.
func FileWithOptions(ctx context.Context, url, dest string, opts *Options) error {
	log.Debugf("Downloading %s to %s", url, dest)

	if opts == nil {
		opts = &Options{}
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if opts.MaxBytes > 0 && resp.ContentLength > opts.MaxBytes {
		return fmt.Errorf("download of %d bytes exceeds limit of %d", resp.ContentLength, opts.MaxBytes)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := out.Name()
	defer os.Remove(tmpPath)

	var body io.Reader = resp.Body
	if opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}

	totalSize := resp.ContentLength
	downloaded := int64(0)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			downloaded += int64(n)
			if opts.MaxBytes > 0 && downloaded > opts.MaxBytes {
				out.Close()
				return fmt.Errorf("download exceeds limit of %d bytes", opts.MaxBytes)
			}
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return fmt.Errorf("failed to write: %w", writeErr)
			}
			if opts.ProgressCallback != nil && totalSize > 0 {
				opts.ProgressCallback(float64(downloaded) / float64(totalSize))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			out.Close()
			return fmt.Errorf("failed to read: %w", err)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	log.Debugf("Download complete: %s", dest)
	return nil
}
