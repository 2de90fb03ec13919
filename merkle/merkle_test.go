package merkle

import (
	"bytes"
	"crypto/sha1"
	"hash"
	"io/ioutil"
	"os"
	"testing"
)

func sha1Hash() hash.Hash { return sha1.New() }

func TestEmptyInput(t *testing.T) {
	if _, err := GetDataHash(Config{Hash: sha1Hash, ChunkSize: 4}, nil); err != ErrEmptyInput {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
}

func TestOddLeavesMatchesFileHash(t *testing.T) {
	data := []byte("0123456789")
	cfg := Config{Hash: sha1Hash, ChunkSize: 4}

	dataHash, err := GetDataHash(cfg, data)
	if err != nil {
		t.Fatalf("GetDataHash: %v", err)
	}
	if len(dataHash) != 20 {
		t.Fatalf("digest length = %d, want 20", len(dataHash))
	}

	f, err := ioutil.TempFile("", "merkle-test-*")
	if err != nil {
		t.Fatalf("tempfile: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	fileHash, err := GetFileHash(cfg, f.Name())
	if err != nil {
		t.Fatalf("GetFileHash: %v", err)
	}

	if !bytes.Equal(dataHash, fileHash) {
		t.Fatalf("data hash %x != file hash %x", dataHash, fileHash)
	}
}

func TestDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	cfg := Config{Hash: sha1Hash, ChunkSize: 8}
	h1, err := GetDataHash(cfg, data)
	if err != nil {
		t.Fatalf("GetDataHash: %v", err)
	}
	h2, err := GetDataHash(cfg, data)
	if err != nil {
		t.Fatalf("GetDataHash: %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatalf("hash not deterministic: %x vs %x", h1, h2)
	}
}

func TestSingleLeaf(t *testing.T) {
	data := []byte("ab")
	cfg := Config{Hash: sha1Hash, ChunkSize: 8}
	got, err := GetDataHash(cfg, data)
	if err != nil {
		t.Fatalf("GetDataHash: %v", err)
	}
	h := sha1.New()
	h.Write(data)
	want := h.Sum(nil)
	if !bytes.Equal(got, want) {
		t.Fatalf("single-leaf root = %x, want leaf hash %x", got, want)
	}
}
