// SPDX-License-Identifier: Apache-2.0
package selfupdate

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aead.dev/minisign"

	"github.com/Work-Fort/Warehouse/pkg/github"
	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

const target = "x86_64-unknown-linux-gnu"

type fakeRelease struct {
	tag        string
	prerelease bool
	assets     map[string][]byte
}

func newServer(t *testing.T, releases []fakeRelease) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/Work-Fort/Warehouse/releases", func(w http.ResponseWriter, r *http.Request) {
		var out []github.Release
		for i, fr := range releases {
			rel := github.Release{ID: int64(i + 1), TagName: fr.tag, Prerelease: fr.prerelease}
			for name := range fr.assets {
				rel.Assets = append(rel.Assets, github.Asset{
					Name:               name,
					BrowserDownloadURL: srv.URL + "/download/" + fr.tag + "/" + name,
				})
			}
			out = append(out, rel)
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		tag, name, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/download/"), "/")
		for _, fr := range releases {
			if fr.tag == tag {
				if data, ok := fr.assets[name]; ok {
					w.Write(data)
					return
				}
			}
		}
		http.NotFound(w, r)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// signedRelease builds the assets warehouse publishes for one version
func signedRelease(t *testing.T, priv minisign.PrivateKey, version string, binary []byte) fakeRelease {
	t.Helper()
	var archive bytes.Buffer
	entries := []util.TarEntry{{Name: "warehouse", Mode: 0755, Data: binary}}
	if err := util.WriteTarXz(&archive, entries, time.Unix(0, 0)); err != nil {
		t.Fatal(err)
	}
	name := layout.ArchiveName("warehouse", version, target, layout.FormatTxz)
	sums := util.Checksums{name: util.SHA256Bytes(archive.Bytes())}.Bytes()
	return fakeRelease{
		tag: layout.ReleaseTag("warehouse", version),
		assets: map[string][]byte{
			name:                                     archive.Bytes(),
			layout.ChecksumsFile:                     sums,
			layout.ChecksumsFile + layout.MinisigExt: minisign.Sign(priv, sums),
		},
	}
}

func newUpdater(t *testing.T, srv *httptest.Server, pub minisign.PublicKey) *Updater {
	return &Updater{
		Client:    github.NewClientWithBase(srv.URL, "", srv.Client()),
		Owner:     "Work-Fort",
		Repo:      "Warehouse",
		Binary:    "warehouse",
		Target:    target,
		PublicKey: pub,
		TempDir:   filepath.Join(t.TempDir(), "update"),
	}
}

func TestLatest(t *testing.T) {
	pub, priv, err := minisign.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	pre := signedRelease(t, priv, "2.0.0", []byte("v2"))
	pre.prerelease = true
	other := signedRelease(t, priv, "9.0.0", []byte("v9"))
	other.tag = "sidecar-v9.0.0"

	srv := newServer(t, []fakeRelease{
		signedRelease(t, priv, "1.2.0", []byte("v1.2")),
		pre,
		other,
		signedRelease(t, priv, "1.10.0", []byte("v1.10")),
	})

	c, err := newUpdater(t, srv, pub).Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if c.Version.Original() != "1.10.0" {
		t.Errorf("Latest() = %s, want 1.10.0", c.Version.Original())
	}

	tests := []struct {
		current string
		want    bool
	}{
		{current: "1.2.0", want: true},
		{current: "v1.10.0", want: false},
		{current: "2.0.0", want: false},
		{current: "dev", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			if got := Newer(c, tt.current); got != tt.want {
				t.Errorf("Newer(%s) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}

func TestLatest_NoRelease(t *testing.T) {
	srv := newServer(t, nil)
	_, err := newUpdater(t, srv, minisign.PublicKey{}).Latest(context.Background())
	if !errors.Is(err, ErrNoRelease) {
		t.Errorf("Latest() error = %v, want ErrNoRelease", err)
	}
}

func TestApply(t *testing.T) {
	pub, priv, err := minisign.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	otherPub, _, err := minisign.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		key     minisign.PublicKey
		tamper  bool
		wantErr string
	}{
		{name: "installs", key: pub},
		{name: "untrusted key", key: otherPub, wantErr: "does not verify"},
		{name: "tampered archive", key: pub, tamper: true, wantErr: "checksum mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := signedRelease(t, priv, "1.0.0", []byte("new binary"))
			if tt.tamper {
				name := layout.ArchiveName("warehouse", "1.0.0", target, layout.FormatTxz)
				rel.assets[name] = append(rel.assets[name], 0)
			}
			srv := newServer(t, []fakeRelease{rel})
			u := newUpdater(t, srv, tt.key)

			exe := filepath.Join(t.TempDir(), "warehouse")
			if err := os.WriteFile(exe, []byte("old binary"), 0755); err != nil {
				t.Fatal(err)
			}

			c, err := u.Latest(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			err = u.Apply(context.Background(), c, exe)

			got, _ := os.ReadFile(exe)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %q", err, tt.wantErr)
				}
				if string(got) != "old binary" {
					t.Error("executable replaced despite the failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if string(got) != "new binary" {
				t.Errorf("executable = %q, want new binary", got)
			}
			if _, err := os.Stat(u.TempDir); !os.IsNotExist(err) {
				t.Error("temp dir left behind")
			}
		})
	}
}
