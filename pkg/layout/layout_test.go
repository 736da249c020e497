// SPDX-License-Identifier: Apache-2.0
package layout

import "testing"

func TestURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		layout string
		format string
		want   string
	}{
		{
			name:   "tree layout",
			base:   "https://pkgs.example.com/",
			layout: Tree,
			format: FormatTxz,
			want:   "https://pkgs.example.com/foo/1.2.3/foo-x86_64-unknown-linux-gnu-v1.2.3.tar.xz",
		},
		{
			name:   "github layout",
			base:   "https://github.com/acme/pkgs/releases/download",
			layout: GitHub,
			format: FormatTgz,
			want:   "https://github.com/acme/pkgs/releases/download/foo-v1.2.3/foo-x86_64-unknown-linux-gnu-v1.2.3.tar.gz",
		},
		{
			name:   "no base gives relative path",
			base:   "",
			layout: Tree,
			format: FormatTxz,
			want:   "foo/1.2.3/foo-x86_64-unknown-linux-gnu-v1.2.3.tar.xz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := URL(tt.base, tt.layout, "foo", "1.2.3", "x86_64-unknown-linux-gnu", tt.format)
			if got != tt.want {
				t.Errorf("URL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBinaryExt(t *testing.T) {
	tests := map[string]string{
		"x86_64-pc-windows-msvc":    ".exe",
		"x86_64-pc-windows-gnu":     ".exe",
		"aarch64-unknown-linux-gnu": "",
		"aarch64-apple-darwin":      "",
	}
	for target, want := range tests {
		if got := BinaryExt(target); got != want {
			t.Errorf("BinaryExt(%s) = %q, want %q", target, got, want)
		}
	}
}
