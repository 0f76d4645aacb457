package slotstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
)

const (
	V1RegistryPrefix = "v1/registry"
	V1SlotsDir       = "slots"

	azblobBlobNotFound = "BlobNotFound"
)

// BlobStore keeps one blob per account under
//
//	v1/registry/{program id}/slots/{account key}.slot
//
// Updates are conditional on the blob etag and creation is conditional on the
// blob not existing, which is how the blob service spells optimistic
// concurrency.
type BlobStore struct {
	log       logger.Logger
	store     *azblob.Storer
	programID keys.Key
}

func NewBlobStore(log logger.Logger, store *azblob.Storer, programID keys.Key) *BlobStore {
	return &BlobStore{log: log, store: store, programID: programID}
}

// SlotsPrefix is the blob prefix holding every account of the registry
// deployed at programID.
func SlotsPrefix(programID keys.Key) string {
	return fmt.Sprintf("%s/%s/%s/", V1RegistryPrefix, programID, V1SlotsDir)
}

func SlotBlobPath(programID keys.Key, key keys.Key) string {
	return SlotsPrefix(programID) + SlotName(key)
}

func (s *BlobStore) Read(ctx context.Context, key keys.Key) (*host.Account, string, error) {
	blobPath := SlotBlobPath(s.programID, key)
	rr, err := s.store.Reader(ctx, blobPath)
	if err != nil {
		if IsBlobNotFound(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", err
	}
	defer rr.Reader.Close()

	data, err := io.ReadAll(rr.Reader)
	if err != nil {
		return nil, "", err
	}
	a, err := DecodeAccount(key, data)
	if err != nil {
		return nil, "", err
	}
	var etag string
	if rr.ETag != nil {
		etag = *rr.ETag
	}
	return a, etag, nil
}

func (s *BlobStore) Write(ctx context.Context, a *host.Account, etag string) (string, error) {
	blobPath := SlotBlobPath(s.programID, a.Key)

	var opts []azblob.Option
	// CRITICAL: the etag guards against racy updates. It is absent only when
	// creating the blob, in which case no blob may match *any* etag.
	if etag != "" {
		opts = append(opts, azblob.WithEtagMatch(etag))
	} else {
		opts = append(opts, azblob.WithEtagNoneMatch("*"))
	}

	wr, err := s.store.Put(ctx, blobPath, azblob.NewBytesReaderCloser(EncodeAccount(a)), opts...)
	if err != nil {
		s.log.Infof("Error @ slot blob put %s: %v", blobPath, err)
		return "", wrapConditionFailure(err, etag)
	}
	if wr == nil || wr.ETag == nil {
		return "", nil
	}
	return *wr.ETag, nil
}

func (s *BlobStore) List(ctx context.Context) ([]keys.Key, error) {
	var found []keys.Key
	var marker azblob.ListMarker
	for {
		r, err := s.store.List(ctx,
			azblob.WithListPrefix(SlotsPrefix(s.programID)), azblob.WithListMarker(marker))
		if err != nil {
			return nil, err
		}
		for _, i := range r.Items {
			if i.Name == nil {
				continue
			}
			if k, ok := KeyFromSlotName(path.Base(*i.Name)); ok {
				found = append(found, k)
			}
		}
		if len(r.Items) == 0 || r.Marker == nil {
			break
		}
		marker = r.Marker
	}
	return found, nil
}

// AsStorageError unwraps the azure sdk storage error, if err carries one.
func AsStorageError(err error) (azStorageBlob.StorageError, bool) {
	serr := &azStorageBlob.StorageError{}
	//nolint
	ierr, ok := err.(*azStorageBlob.InternalError)
	if ierr == nil || !ok {
		return azStorageBlob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azStorageBlob.StorageError{}, false
	}
	return *serr, true
}

func IsBlobNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	serr, ok := AsStorageError(err)
	if !ok {
		return false
	}
	return serr.ErrorCode == azblobBlobNotFound
}

// wrapConditionFailure maps a failed conditional put onto the store's
// optimistic concurrency errors.
func wrapConditionFailure(err error, etag string) error {
	serr, ok := AsStorageError(err)
	if !ok {
		return err
	}
	code := string(serr.ErrorCode)
	switch {
	case etag == "" && strings.Contains(code, "BlobAlreadyExists"):
		return fmt.Errorf("%s: %w", err.Error(), ErrExistsOC)
	case strings.Contains(code, "ConditionNotMet"):
		if etag == "" {
			return fmt.Errorf("%s: %w", err.Error(), ErrExistsOC)
		}
		return fmt.Errorf("%s: %w", err.Error(), ErrContentOC)
	}
	return err
}
