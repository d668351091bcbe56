package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/atlascrawl/atlas/internal/model"
)

// BlobStore is the archive's content-addressed store for page bodies and
// assets too large or too binary to inline into a dataset record (§3 Body
// blob ref). Objects are sharded two levels deep by their hash prefix so a
// single directory never accumulates millions of entries, and stored under
// blobs/sha256/<ab>/<cd>/<hash>.zst (§4.6.4, §6.1), zstd-compressed.
type BlobStore struct {
	root string
	mu   sync.Mutex
}

// NewBlobStore creates the blob store's root directory if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "sha256"), 0o755); err != nil {
		return nil, fmt.Errorf("writer: create blob store root: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Put compresses and stores data under its SHA-256 digest and returns a
// blob ref of the form "sha256:<hex>". Writing an already-present blob is a
// cheap no-op.
func (b *BlobStore) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	ref := "sha256:" + digest

	path := b.pathFor(digest)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("writer: create blob shard dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("writer: create blob temp file: %w", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return "", err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return "", fmt.Errorf("writer: compress blob: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("writer: close blob encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writer: close blob temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("writer: finalize blob: %w", err)
	}
	return ref, nil
}

// Get retrieves and decompresses a previously stored blob by its ref.
func (b *BlobStore) Get(ref string) ([]byte, error) {
	digest, ok := digestFromRef(ref)
	if !ok {
		return nil, fmt.Errorf("writer: malformed blob ref %q", ref)
	}

	f, err := os.Open(b.pathFor(digest))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return io.ReadAll(dec)
}

// Stats walks the store and reports how many blobs it holds, their total
// compressed size, and a Merkle-style root over every blob's digest, for
// the manifest's blob_store block (§4.6.4).
func (b *BlobStore) Stats() (model.BlobStats, error) {
	var digests []string
	var compBytes int64

	shaRoot := filepath.Join(b.root, "sha256")
	err := filepath.WalkDir(shaRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".zst") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		compBytes += info.Size()
		digests = append(digests, strings.TrimSuffix(d.Name(), ".zst"))
		return nil
	})
	if err != nil {
		return model.BlobStats{}, fmt.Errorf("writer: walk blob store: %w", err)
	}
	sort.Strings(digests)

	return model.BlobStats{
		BlobCount:       int64(len(digests)),
		CompressedBytes: compBytes,
		MerkleRoot:      merkleRoot(digests),
	}, nil
}

// merkleRoot folds a sorted list of hex digests pairwise into a single root
// hash, duplicating the last element at an odd level, so substituting or
// dropping any one blob changes the root.
func merkleRoot(digests []string) string {
	if len(digests) == 0 {
		return ""
	}

	level := make([][]byte, len(digests))
	for i, d := range digests {
		raw, err := hex.DecodeString(d)
		if err != nil {
			raw = []byte(d)
		}
		level[i] = raw
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			h := sha256.New()
			h.Write(left)
			h.Write(right)
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}

func (b *BlobStore) pathFor(digest string) string {
	return filepath.Join(b.root, "sha256", digest[:2], digest[2:4], digest+".zst")
}

func digestFromRef(ref string) (string, bool) {
	const prefix = "sha256:"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", false
	}
	return ref[len(prefix):], true
}
