package slotstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
)

// DirStore keeps one file per account in a local directory. The etag of an
// account is the sha256 of its file content, so it changes exactly when the
// content does.
//
// The etag guard is only as strong as the filesystem: the compare and the
// rename are not one atomic step. It protects against stale copies, not
// against two writers racing in the same instant.
type DirStore struct {
	log logger.Logger
	dir string
}

func NewDirStore(log logger.Logger, dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{log: log, dir: dir}, nil
}

func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(key keys.Key) string {
	return filepath.Join(s.dir, SlotName(key))
}

func (s *DirStore) Read(ctx context.Context, key keys.Key) (*host.Account, string, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", err
	}
	a, err := DecodeAccount(key, b)
	if err != nil {
		return nil, "", err
	}
	return a, contentETag(b), nil
}

func (s *DirStore) Write(ctx context.Context, a *host.Account, etag string) (string, error) {
	b := EncodeAccount(a)
	target := s.path(a.Key)

	current, err := os.ReadFile(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if etag != "" {
			return "", fmt.Errorf("%w: %s was removed", ErrContentOC, a.Key)
		}
	case err != nil:
		return "", err
	case etag == "":
		return "", fmt.Errorf("%w: %s", ErrExistsOC, a.Key)
	case contentETag(current) != etag:
		return "", fmt.Errorf("%w: %s", ErrContentOC, a.Key)
	}

	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		return "", err
	}
	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	s.log.Debugf("wrote %s (%d bytes)", target, len(b))
	return contentETag(b), nil
}

func (s *DirStore) List(ctx context.Context) ([]keys.Key, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var found []keys.Key
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if k, ok := KeyFromSlotName(e.Name()); ok {
			found = append(found, k)
		}
	}
	return found, nil
}

func contentETag(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
