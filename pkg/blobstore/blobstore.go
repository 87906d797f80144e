package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/graphloom/graphloom/pkg/types"
)

// ErrStream marks a failure of the byte source feeding an upload, including
// a caller disconnecting mid-transfer. Bytes already written stay orphaned on
// disk; no descriptor referencing them is ever returned.
var ErrStream = errors.New("blobstore: upload stream failed")

// ErrIO marks a failure of the backing medium itself.
var ErrIO = errors.New("blobstore: storage medium failure")

const copyChunkSize = 64 * 1024

const urlScheme = "file://"

// Local persists blobs as files under a root directory. Object names are a
// caller-supplied prefix plus a random unique suffix, so identical payloads
// uploaded twice get distinct locators: the store verifies content by digest,
// it does not deduplicate by it.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("blobstore: root directory must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Put streams r into a new blob and returns its descriptor. Each chunk is
// written to the medium and then folded into the running SHA-256 before the
// next chunk is read, so memory use stays O(chunk) and the returned digest
// matches the stored bytes exactly. The loop never reads ahead of what it
// has persisted; if the medium blocks, consumption of r blocks with it.
func (l *Local) Put(ctx context.Context, namePrefix string, r io.Reader) (types.WriteStreamResult, error) {
	fileName := fmt.Sprintf("%s_%s", namePrefix, uuid.NewString())
	path := filepath.Join(l.root, fileName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return types.WriteStreamResult{}, fmt.Errorf("%w: create %s: %v", ErrIO, fileName, err)
	}

	hasher := sha256.New()
	buf := make([]byte, copyChunkSize)
	var size uint64

	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			return types.WriteStreamResult{}, fmt.Errorf("%w: %v", ErrStream, err)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				return types.WriteStreamResult{}, fmt.Errorf("%w: write %s: %v", ErrIO, fileName, writeErr)
			}
			hasher.Write(buf[:n])
			size += uint64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return types.WriteStreamResult{}, fmt.Errorf("%w: %v", ErrStream, readErr)
		}
	}

	if err := f.Close(); err != nil {
		return types.WriteStreamResult{}, fmt.Errorf("%w: close %s: %v", ErrIO, fileName, err)
	}

	return types.WriteStreamResult{
		URL:       urlScheme + path,
		SizeBytes: size,
		Hash:      hex.EncodeToString(hasher.Sum(nil)),
		FileName:  fileName,
	}, nil
}

// Open returns a reader over a blob previously stored by this store. The
// caller owns closing it.
func (l *Local) Open(url string) (io.ReadCloser, error) {
	path, ok := strings.CutPrefix(url, urlScheme)
	if !ok {
		return nil, fmt.Errorf("blobstore: unsupported url %q", url)
	}
	cleaned := filepath.Clean(path)
	if cleaned != l.root && !strings.HasPrefix(cleaned, l.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("blobstore: url %q is outside the store root", url)
	}
	f, err := os.Open(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, cleaned, err)
	}
	return f, nil
}
