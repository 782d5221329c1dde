// Package sha256 includes tests for the SHA-256 hasher.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got := h.Hash([]byte(`{"songs_dic":{},"broken_ts_list":[],"latest_ts":""}`))
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
	if again := h.Hash([]byte(`{"songs_dic":{},"broken_ts_list":[],"latest_ts":""}`)); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
	if want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"; h.Hash([]byte("hello world")) != want {
		t.Fatalf("unexpected digest for known input")
	}
}
