// Command fsagent runs two agents against two local directories, wired
// through a shared in-process blob store, tree store, and notification
// bus, so the two directories converge on each other's state. It exists to
// exercise the sync engine end to end; it is a demo runner, not part of the
// core.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/rljson/fs-agent/agent"
	"github.com/rljson/fs-agent/blob/file"
	"github.com/rljson/fs-agent/bus/membus"
	"github.com/rljson/fs-agent/history/mem"
	"github.com/rljson/fs-agent/treestore"
)

func main() {
	var (
		dirA     = flag.String("a", "", "first directory root")
		dirB     = flag.String("b", "", "second directory root")
		blobRoot = flag.String("blobs", "", "directory backing the shared blob store")
		route    = flag.String("route", "sharedTree", "tree key / bus route shared by both agents")
	)
	flag.Parse()

	if *dirA == "" || *dirB == "" || *blobRoot == "" {
		log.Fatal("must specify -a, -b, and -blobs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		sig := <-sigCh
		log.Printf("got signal %s, shutting down", sig)
		cancel()
	}()

	blobs := file.New(*blobRoot)

	b := membus.New()
	trees := treestore.New(blobs, mem.New(), b)

	cfg := agent.DefaultConfig()
	cfg.CleanTarget = true

	agentA := agent.New(*dirA, *route, blobs, trees, b, cfg)
	agentB := agent.New(*dirB, *route, blobs, trees, b, cfg)

	if err := agentA.Start(ctx); err != nil {
		log.Fatalf("starting agent for %s: %s", *dirA, err)
	}
	defer agentA.Stop()

	if err := agentB.Start(ctx); err != nil {
		log.Fatalf("starting agent for %s: %s", *dirB, err)
	}
	defer agentB.Stop()

	log.Printf("syncing %s <-> %s on route %s", *dirA, *dirB, *route)

	<-ctx.Done()
	log.Print("context canceled, exiting")
}
