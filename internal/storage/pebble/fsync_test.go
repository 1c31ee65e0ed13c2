package pebblestore

import (
	"strings"
	"testing"
)

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{
		"":          FsyncModeUnspecified,
		"always":    FsyncModeAlways,
		" Interval": FsyncModeInterval,
		"never":     FsyncModeNever,
	} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %v err %v", in, got, err)
		}
		if want != FsyncModeUnspecified && got.String() != strings.ToLower(strings.TrimSpace(in)) {
			t.Fatalf("string of %v: %q", got, got.String())
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPrefixUpperBound(t *testing.T) {
	if got := prefixUpperBound([]byte("ab")); string(got) != "ac" {
		t.Fatalf("got %q", got)
	}
	if got := prefixUpperBound([]byte{'a', 0xff}); string(got) != "b" {
		t.Fatalf("got %q", got)
	}
	if got := prefixUpperBound([]byte{0xff}); got != nil {
		t.Fatalf("want nil, got %q", got)
	}
}
