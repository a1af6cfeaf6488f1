// Package file implements a blob store as a file hierarchy.
package file

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/registry"
)

var _ blob.Store = &Store{}

// Store is a file-based implementation of a blob store. Blobs are sharded
// into root/<hex[:2]>/<hex[:4]>/<hex> so that no directory holds more than
// a few thousand entries even for large stores.
type Store struct {
	root string
}

// New produces a new Store storing data beneath root.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(ref blob.Ref) string {
	h := ref.String()
	return filepath.Join(s.root, h[:2], h[:4], h)
}

// Get gets the blob with hash ref.
func (s *Store) Get(_ context.Context, ref blob.Ref) (blob.Blob, error) {
	path := s.path(ref)
	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, blob.ErrNotFound
	}
	return b, errors.Wrapf(err, "reading %s", path)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b blob.Blob) (blob.Ref, bool, error) {
	var (
		ref  = b.Ref()
		path = s.path(ref)
		dir  = filepath.Dir(path)
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return ref, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0444)
	if os.IsExist(err) {
		return ref, false, nil
	}
	if err != nil {
		return ref, false, errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return ref, true, errors.Wrapf(err, "writing %s", path)
	}
	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(_ context.Context, start blob.Ref, f func(blob.Ref) error) error {
	topLevel, err := ioutil.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.root)
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() || len(topInfo.Name()) != 2 {
			continue
		}
		if _, err := strconv.ParseInt(topInfo.Name(), 16, 64); err != nil {
			continue
		}

		midDir := filepath.Join(s.root, topInfo.Name())
		midLevel, err := ioutil.ReadDir(midDir)
		if err != nil {
			return errors.Wrapf(err, "reading dir %s", midDir)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() || len(midInfo.Name()) != 4 {
				continue
			}
			if _, err := strconv.ParseInt(midInfo.Name(), 16, 64); err != nil {
				continue
			}

			blobDir := filepath.Join(midDir, midInfo.Name())
			blobInfos, err := ioutil.ReadDir(blobDir)
			if err != nil {
				return errors.Wrapf(err, "reading dir %s", blobDir)
			}
			index := sort.Search(len(blobInfos), func(n int) bool {
				return blobInfos[n].Name() > startHex
			})
			for k := index; k < len(blobInfos); k++ {
				if blobInfos[k].IsDir() {
					continue
				}
				ref, err := blob.RefFromHex(blobInfos[k].Name())
				if err != nil {
					continue
				}
				if err := f(ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Delete removes the blob with hash ref, for use by blob/gc. It is not part
// of blob.Store; callers that need it type-assert for it.
func (s *Store) Delete(_ context.Context, ref blob.Ref) error {
	path := s.path(ref)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", path)
}

func init() {
	registry.Register("file", func(_ context.Context, conf map[string]interface{}) (blob.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
