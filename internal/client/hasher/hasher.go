// Package hasher computes the content fingerprints compared by the sync engine.
package hasher

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Hasher turns file bytes into a fixed length hex digest. Implementations are
// deterministic so equal content always yields equal hashes on both sides.
type Hasher interface {
	Hash(data []byte) string
	Name() string
}

// SHA256 is the fingerprint used by the vaultsync ledger server.
type SHA256 struct{}

func (SHA256) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (SHA256) Name() string { return "sha256" }

// GitBlob hashes content the way git names blob objects, so local files can be
// compared against the shas of a tree listing without downloading them.
type GitBlob struct{}

func (GitBlob) Hash(data []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (GitBlob) Name() string { return "git-blob" }

// Default is the hasher used unless a remote backend asks for another one.
func Default() Hasher {
	return SHA256{}
}
