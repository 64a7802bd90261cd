package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA256(t *testing.T) {
	h := SHA256{}
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h.Hash([]byte("hello")))
	assert.Len(t, h.Hash(nil), 64)
	assert.Equal(t, h.Hash([]byte("same")), h.Hash([]byte("same")))
	assert.NotEqual(t, h.Hash([]byte("a")), h.Hash([]byte("b")))
}

func TestGitBlob(t *testing.T) {
	h := GitBlob{}
	// git hash-object on an empty file and on "hello\n"
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", h.Hash(nil))
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", h.Hash([]byte("hello\n")))
}

func TestDefault(t *testing.T) {
	assert.Equal(t, "sha256", Default().Name())
}
