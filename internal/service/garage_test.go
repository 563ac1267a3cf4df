package service

import (
	"strings"
	"testing"
)

func TestNormalizeRegistration(t *testing.T) {
	cases := map[string]string{
		"ab12 cde":  "AB12CDE",
		"AB12CDE":   "AB12CDE",
		" ab12cde ": "AB12CDE",
		"a b 1 2":   "AB12",
	}
	for in, want := range cases {
		if got := NormalizeRegistration(in); got != want {
			t.Fatalf("NormalizeRegistration(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTimestampNameKeepsExtension(t *testing.T) {
	name := timestampName("photo.png")
	if !strings.HasSuffix(name, ".png") {
		t.Fatalf("expected .png suffix, got %q", name)
	}
	if strings.Contains(name, "photo") {
		t.Fatalf("original name must not leak into object path, got %q", name)
	}

	// 没有扩展名时按图片处理
	if name := timestampName("blob"); !strings.HasSuffix(name, ".jpeg") {
		t.Fatalf("expected .jpeg fallback, got %q", name)
	}
}
