// Package gcs implements a blob store on Google Cloud Storage.
package gcs

import (
	stderrs "errors"
	"fmt"
	"io"
	"net/http"

	"context"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/registry"
)

var _ blob.Store = &Store{}

// Store is a Google Cloud Storage-backed implementation of a blob store.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

func objName(ref blob.Ref) string {
	return "b:" + ref.String()
}

// Get gets the blob with hash ref.
func (s *Store) Get(ctx context.Context, ref blob.Ref) (blob.Blob, error) {
	name := objName(ref)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b blob.Blob) (blob.Ref, bool, error) {
	var (
		ref   = b.Ref()
		name  = objName(ref)
		obj   = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w     = obj.NewWriter(ctx)
		added bool
	)
	err := func() error {
		// Writes are buffered and uploaded on Close, so Close is where a
		// failed upload (including the DoesNotExist precondition) surfaces.
		_, err := w.Write(b)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		var gerr *googleapi.Error
		if stderrs.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return nil
		}
		if err == nil {
			added = true
		}
		return errors.Wrapf(err, "writing object %s", name)
	}()
	return ref, added, err
}

// ListRefs produces all blob refs in the store, in lexicographic order.
// Google Cloud Storage iterators have no API for starting in the middle
// of a bucket, so this lists every object with the blob prefix and skips
// anything not after start.
func (s *Store) ListRefs(ctx context.Context, start blob.Ref, f func(blob.Ref) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "b:"})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		ref, err := blob.RefFromHex(obj.Name[2:])
		if err != nil {
			continue
		}
		if ref.Less(start) || ref == start {
			continue
		}
		if err := f(ref); err != nil {
			return err
		}
	}
}

func init() {
	registry.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (blob.Store, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, fmt.Errorf(`missing "bucket" parameter`)
		}
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
