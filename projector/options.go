// Package projector implements the directory projector: extract() turns a
// directory on disk into a treestore.Tree, restore() recreates a Tree on
// disk.
package projector

// Options controls extract/restore behavior.
type Options struct {
	// Ignore lists filepath.Match-style patterns matched against each
	// entry's base name; matching entries are skipped entirely.
	Ignore []string

	// MaxDepth bounds how deep extract descends; the root directory is
	// depth 0. Negative means unbounded. Zero (the default) means the
	// root node only, with no children recorded at all.
	MaxDepth int

	// FollowSymlinks, when false (the default), causes extract to skip
	// symlink entries instead of following them.
	FollowSymlinks bool

	// CleanTarget, when set, causes restore to remove any path under
	// target_path not present in the tree's expected-paths set.
	CleanTarget bool
}
