package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hasher computes deterministic content hashes. The indexing pipeline
// depends only on this interface so tests can inject failures.
type Hasher interface {
	// HashFile hashes the content of the file at path.
	HashFile(path string) (string, error)

	// HashBytes hashes an in-memory buffer. HashBytes(b) equals
	// HashFile(p) when p's content is exactly b.
	HashBytes(data []byte) string
}

// SHA256Hasher hashes content with SHA-256, streaming files so large
// inputs never load fully into memory.
type SHA256Hasher struct{}

var _ Hasher = SHA256Hasher{}

// NewSHA256Hasher returns the default content hasher.
func NewSHA256Hasher() SHA256Hasher {
	return SHA256Hasher{}
}

func (SHA256Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (SHA256Hasher) HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// PathDigest returns a short stable digest of a path, used for project IDs
// and as the path component of chunk IDs.
func PathDigest(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:])[:16]
}

// ChunkID builds the vector store ID for one chunk of a file.
//
// The ID embeds the path digest, a prefix of the content hash, and the
// chunk ordinal:
//
//	<pathDigest>-<contentHash[:16]>-<ordinal>
//
// Two files never share IDs (path digest differs), and re-chunking
// unchanged content reproduces the same IDs, which makes redundant
// upserts and deletes idempotent. Changed content produces fresh IDs, so
// stale vectors can be deleted by ID without touching the new ones.
func ChunkID(path, contentHash string, ordinal int) string {
	prefix := contentHash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return fmt.Sprintf("%s-%s-%04d", PathDigest(path), prefix, ordinal)
}
