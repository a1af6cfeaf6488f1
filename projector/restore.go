package projector

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/fsagent"
	"github.com/rljson/fs-agent/treestore"
)

// Restore recreates t under targetPath. Directories are created (parents
// recursively); t's root node maps onto targetPath itself. Files are
// written from the blob store and their mtime applied after the write. If
// opts.CleanTarget is set, anything already under targetPath that isn't
// named by t is removed afterward.
func Restore(ctx context.Context, blobs blob.Store, t *treestore.Tree, targetPath string, opts Options) error {
	if err := t.Validate(); err != nil {
		return err
	}

	root, ok := t.Nodes[t.RootHash]
	if !ok {
		return fsagent.New(fsagent.InvalidInput, "root hash not present among tree nodes")
	}

	expected := map[string]bool{".": true}

	if err := restoreNode(ctx, blobs, t, root, targetPath, expected); err != nil {
		return err
	}

	if opts.CleanTarget {
		if err := clean(targetPath, targetPath, expected); err != nil {
			return err
		}
	}

	return nil
}

func restoreNode(ctx context.Context, blobs blob.Store, t *treestore.Tree, n *treestore.Node, path string, expected map[string]bool) error {
	switch n.Kind {
	case treestore.Directory:
		if err := os.MkdirAll(path, 0755); err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "creating directory "+path, err)
		}
		for _, childHash := range n.Children {
			child, ok := t.Nodes[childHash]
			if !ok {
				return fsagent.New(fsagent.InvalidInput, "directory "+n.RelativePath+" references missing child "+childHash.String())
			}
			childPath := filepath.Join(path, child.Name)
			markExpected(expected, child)
			if err := restoreNode(ctx, blobs, t, child, childPath, expected); err != nil {
				return err
			}
		}
		return nil

	case treestore.File:
		content, err := blobs.Get(ctx, n.BlobID)
		if errors.Is(err, blob.ErrNotFound) {
			return fsagent.New(fsagent.BlobUnavailable, "blob unavailable for "+n.RelativePath+" ("+n.BlobID.String()+")")
		}
		if err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "fetching blob for "+n.RelativePath, err)
		}
		if err := ioutil.WriteFile(path, content, 0644); err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "writing file "+path, err)
		}
		mtime := time.Unix(0, n.MTimeMs*int64(time.Millisecond))
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "setting mtime for "+path, err)
		}
		return nil

	default:
		return nil
	}
}

// markExpected adds child's relative_path (and, for files, every ancestor
// directory of that path) to the expected-paths set.
func markExpected(expected map[string]bool, child *treestore.Node) {
	expected[child.RelativePath] = true
	if child.Kind != treestore.File {
		return
	}
	dir := filepath.Dir(child.RelativePath)
	for dir != "." && dir != "/" && dir != "" {
		expected[dir] = true
		dir = filepath.Dir(dir)
	}
}

// clean removes any path under root not present in expected, as relative
// paths computed from root. dir is the directory currently being swept.
func clean(root, dir string, expected map[string]bool) error {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return fsagent.Wrap(fsagent.StoreFailure, "reading directory "+dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "computing relative path for "+path, err)
		}

		if expected[rel] {
			if entry.IsDir() {
				if err := clean(root, path, expected); err != nil {
					return err
				}
			}
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "removing "+path, err)
		}
	}

	return nil
}
