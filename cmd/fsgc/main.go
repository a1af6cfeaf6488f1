// Command fsgc runs a mark-and-sweep garbage collection pass over a
// file-backed blob store, protecting every root hash named on the command
// line (and everything reachable from it) and deleting the rest. It is a
// separate maintenance tool: per the sync engine's design notes, an agent
// must never delete blobs on its own, so nothing in the agent or cmd/fsagent
// calls this logic.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/file"
	"github.com/rljson/fs-agent/blob/gc"
)

func main() {
	var (
		blobRoot = flag.String("blobs", "", "directory backing the blob store")
		keep     = flag.String("keep", "", "comma-separated root hashes to protect")
		dryRun   = flag.Bool("dry-run", false, "report what would be deleted without deleting")
	)
	flag.Parse()

	if *blobRoot == "" {
		log.Fatal("must specify -blobs")
	}
	if *keep == "" {
		log.Fatal("must specify -keep with at least one root hash")
	}

	store := file.New(*blobRoot)
	ctx := context.Background()

	k := gc.NewMemKeep()
	for _, hex := range strings.Split(*keep, ",") {
		ref, err := blob.RefFromHex(strings.TrimSpace(hex))
		if err != nil {
			log.Fatalf("parsing keep ref %q: %s", hex, err)
		}
		if err := gc.ProtectTree(ctx, store, k, ref); err != nil {
			log.Fatalf("protecting %s: %s", ref, err)
		}
	}

	counting := &gc.CountingStore{DeleterStore: store}

	if *dryRun {
		var deletable int
		err := counting.ListRefs(ctx, blob.Zero, func(ref blob.Ref) error {
			ok, err := k.Contains(ctx, ref)
			if err != nil {
				return err
			}
			if !ok {
				deletable++
				log.Printf("would delete %s", ref)
			}
			return nil
		})
		if err != nil {
			log.Fatalf("listing refs: %s", err)
		}
		log.Printf("scanned %d refs, %d would be deleted", counting.Refs, deletable)
		return
	}

	if err := gc.Run(ctx, counting, k); err != nil {
		log.Fatalf("running gc: %s", err)
	}
	log.Printf("scanned %d refs, deleted %d", counting.Refs, counting.Deletions)
}
