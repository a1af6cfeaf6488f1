package projector

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/fsagent"
	"github.com/rljson/fs-agent/treestore"
)

// Extract walks rootPath in deterministic order and builds a Tree whose
// root corresponds to rootPath itself (relative_path ".").
func Extract(ctx context.Context, blobs blob.Store, rootPath string, opts Options) (*treestore.Tree, error) {
	info, err := os.Lstat(rootPath)
	if os.IsNotExist(err) {
		return nil, fsagent.New(fsagent.NotFound, "root path does not exist: "+rootPath)
	}
	if err != nil {
		return nil, fsagent.Wrap(fsagent.StoreFailure, "statting root path "+rootPath, err)
	}
	if !info.IsDir() {
		return nil, fsagent.New(fsagent.NotADirectory, "root path is not a directory: "+rootPath)
	}

	t := treestore.NewTree()

	e := &extractor{ctx: ctx, blobs: blobs, opts: opts, root: rootPath, tree: t}
	rootHash, err := e.walk(rootPath, ".", ".", 0)
	if err != nil {
		return nil, err
	}
	t.RootHash = rootHash

	return t, nil
}

type extractor struct {
	ctx   context.Context
	blobs blob.Store
	opts  Options
	root  string
	tree  *treestore.Tree
}

func (e *extractor) ignored(name string) bool {
	for _, pat := range e.opts.Ignore {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// walk builds the node for dirPath (whose name is name and whose
// relative_path is relPath) at the given depth, recording it (and
// everything beneath it, subject to MaxDepth) into e.tree, and returns its
// hash.
func (e *extractor) walk(dirPath, name, relPath string, depth int) (blob.Ref, error) {
	info, err := os.Lstat(dirPath)
	if err != nil {
		return blob.Ref{}, fsagent.Wrap(fsagent.StoreFailure, "statting "+dirPath, err)
	}

	node := &treestore.Node{
		Kind:         treestore.Directory,
		Name:         name,
		RelativePath: relPath,
		MTimeMs:      info.ModTime().UnixNano() / int64(1e6),
	}

	descend := e.opts.MaxDepth < 0 || depth < e.opts.MaxDepth

	if descend {
		entries, err := ioutil.ReadDir(dirPath)
		if err != nil {
			return blob.Ref{}, fsagent.Wrap(fsagent.StoreFailure, "reading directory "+dirPath, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, child := range entries {
			if e.ignored(child.Name()) {
				continue
			}

			childPath := filepath.Join(dirPath, child.Name())
			childRel := filepath.Join(relPath, child.Name())

			if child.Mode()&os.ModeSymlink != 0 {
				if !e.opts.FollowSymlinks {
					continue
				}
				resolved, err := os.Stat(childPath)
				if err != nil {
					return blob.Ref{}, fsagent.Wrap(fsagent.StoreFailure, "resolving symlink "+childPath, err)
				}
				if resolved.IsDir() {
					childHash, err := e.walk(childPath, child.Name(), childRel, depth+1)
					if err != nil {
						return blob.Ref{}, err
					}
					node.Children = append(node.Children, childHash)
					continue
				}
				childHash, err := e.extractFile(childPath, child.Name(), childRel, resolved)
				if err != nil {
					return blob.Ref{}, err
				}
				node.Children = append(node.Children, childHash)
				continue
			}

			if child.IsDir() {
				childHash, err := e.walk(childPath, child.Name(), childRel, depth+1)
				if err != nil {
					return blob.Ref{}, err
				}
				node.Children = append(node.Children, childHash)
				continue
			}

			if !child.Mode().IsRegular() {
				continue
			}
			childHash, err := e.extractFile(childPath, child.Name(), childRel, child)
			if err != nil {
				return blob.Ref{}, err
			}
			node.Children = append(node.Children, childHash)
		}
	}

	hash, err := e.tree.AddNode(node)
	if err != nil {
		return blob.Ref{}, err
	}
	return hash, nil
}

func (e *extractor) extractFile(path, name, relPath string, info os.FileInfo) (blob.Ref, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return blob.Ref{}, fsagent.Wrap(fsagent.StoreFailure, "reading file "+path, err)
	}

	blobID, _, err := e.blobs.Put(e.ctx, blob.Blob(content))
	if err != nil {
		return blob.Ref{}, fsagent.Wrap(fsagent.StoreFailure, "storing blob for "+path, err)
	}

	node := &treestore.Node{
		Kind:         treestore.File,
		Name:         name,
		RelativePath: relPath,
		MTimeMs:      info.ModTime().UnixNano() / int64(1e6),
		BlobID:       blobID,
		Size:         info.Size(),
	}
	hash, err := e.tree.AddNode(node)
	return hash, errors.Wrapf(err, "adding node for %s", path)
}
