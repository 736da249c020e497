// SPDX-License-Identifier: Apache-2.0
package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Work-Fort/Warehouse/pkg/index"
	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/packager"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

// fakeGitHub implements the handful of release endpoints Publisher uses
type fakeGitHub struct {
	mu       sync.Mutex
	srv      *httptest.Server
	releases map[string]*Release
	uploads  map[string][]byte
	nextID   int64
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := &fakeGitHub{releases: map[string]*Release{}, uploads: map[string][]byte{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "token secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const prefix = "/repos/acme/tools/releases"
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, prefix+"/tags/"):
		rel, ok := f.releases[strings.TrimPrefix(r.URL.Path, prefix+"/tags/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(rel)

	case r.Method == http.MethodPost && r.URL.Path == prefix:
		var req struct {
			TagName string `json:"tag_name"`
			Name    string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.nextID++
		rel := &Release{
			ID:        f.nextID,
			TagName:   req.TagName,
			Name:      req.Name,
			UploadURL: f.srv.URL + "/uploads/" + req.TagName + "/assets{?name,label}",
		}
		f.releases[req.TagName] = rel
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rel)

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/uploads/"):
		tag := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/uploads/"), "/assets")
		name := r.URL.Query().Get("name")
		data, _ := io.ReadAll(r.Body)
		f.uploads[tag+"/"+name] = data
		asset := Asset{Name: name, Size: int64(len(data))}
		f.releases[tag].Assets = append(f.releases[tag].Assets, asset)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(asset)

	default:
		http.NotFound(w, r)
	}
}

func publishedTree(t *testing.T) string {
	t.Helper()
	signer, err := signing.LoadOrGenerate(signing.RefGenerate, signing.Options{
		KeyDir: t.TempDir(),
		Getenv: func(string) string { return "" },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(signer.Close)

	var arts []*packager.Artifact
	for _, target := range []string{"x86_64-unknown-linux-gnu", "aarch64-unknown-linux-gnu"} {
		name := layout.ArchiveName("foo", "1.0.0", target, layout.FormatTxz)
		p := filepath.Join(t.TempDir(), name)
		content := []byte("bits for " + target)
		if err := os.WriteFile(p, content, 0644); err != nil {
			t.Fatal(err)
		}
		arts = append(arts, &packager.Artifact{
			Crate: "foo", Version: "1.0.0", Target: target,
			Path: p, FileName: name, SHA256: util.SHA256Bytes(content), Size: int64(len(content)),
		})
	}

	dir := t.TempDir()
	f := &index.Finalizer{Dir: dir, Layout: layout.GitHub, Format: layout.FormatTxz, Signer: signer}
	if _, err := f.Finalize(arts); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestPublish(t *testing.T) {
	gh := newFakeGitHub(t)
	dir := publishedTree(t)
	before, _ := os.ReadFile(index.IndexPath(dir))

	p := &Publisher{
		Client: NewClientWithBase(gh.srv.URL, "secret", gh.srv.Client()),
		Owner:  "acme",
		Repo:   "tools",
		Dir:    dir,
	}

	uploads, err := p.Publish(context.Background(), "foo", "1.0.0")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(uploads) != 8 {
		t.Fatalf("Publish() uploaded %d assets, want 8", len(uploads))
	}

	var names []string
	for k := range gh.uploads {
		names = append(names, k)
	}
	sort.Strings(names)
	want := []string{
		"foo-v1.0.0/SHA256SUMS",
		"foo-v1.0.0/SHA256SUMS.minisig",
		"foo-v1.0.0/foo-aarch64-unknown-linux-gnu-v1.0.0.tar.xz",
		"foo-v1.0.0/foo-aarch64-unknown-linux-gnu-v1.0.0.tar.xz.sha256",
		"foo-v1.0.0/foo-aarch64-unknown-linux-gnu-v1.0.0.tar.xz.sig",
		"foo-v1.0.0/foo-x86_64-unknown-linux-gnu-v1.0.0.tar.xz",
		"foo-v1.0.0/foo-x86_64-unknown-linux-gnu-v1.0.0.tar.xz.sha256",
		"foo-v1.0.0/foo-x86_64-unknown-linux-gnu-v1.0.0.tar.xz.sig",
	}
	if strings.Join(names, "\n") != strings.Join(want, "\n") {
		t.Errorf("uploaded:\n%s\nwant:\n%s", strings.Join(names, "\n"), strings.Join(want, "\n"))
	}
	if string(gh.uploads["foo-v1.0.0/foo-x86_64-unknown-linux-gnu-v1.0.0.tar.xz"]) != "bits for x86_64-unknown-linux-gnu" {
		t.Error("archive uploaded with wrong content")
	}

	// Re-running reuses the release and skips existing assets
	uploads, err = p.Publish(context.Background(), "foo", "")
	if err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
	for _, u := range uploads {
		if !u.Skipped {
			t.Errorf("%s uploaded twice", u.Name)
		}
	}
	if len(gh.releases) != 1 {
		t.Errorf("%d releases created, want 1", len(gh.releases))
	}

	after, _ := os.ReadFile(index.IndexPath(dir))
	if string(before) != string(after) {
		t.Error("Publish() modified the index")
	}
}

func TestPublish_NothingMatches(t *testing.T) {
	gh := newFakeGitHub(t)
	p := &Publisher{
		Client: NewClientWithBase(gh.srv.URL, "secret", gh.srv.Client()),
		Owner:  "acme",
		Repo:   "tools",
		Dir:    publishedTree(t),
	}
	if _, err := p.Publish(context.Background(), "bar", ""); err == nil {
		t.Error("Publish() of an unknown crate succeeded")
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "acme/tools"},
		{in: "acme", wantErr: true},
		{in: "/tools", wantErr: true},
		{in: "a/b/c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := SplitRepo(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitRepo(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && (owner != "acme" || repo != "tools") {
				t.Errorf("SplitRepo(%q) = %s, %s", tt.in, owner, repo)
			}
		})
	}
}
