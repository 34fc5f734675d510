// Command latticed-migrate loads a dump archive produced by a latticed
// server (V1, V2 or V3) into a fresh database directory, offline. It is
// meant to run before latticed serve starts accepting traffic against the
// resulting data directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/latticesearch/latticed/pkg/dump"
	"github.com/latticesearch/latticed/pkg/resolver"
)

var (
	srcArchive   = flag.String("src", "", "Path to the dump archive (.dump, gzipped tar) to load")
	dstDir       = flag.String("dst", "", "Destination data directory; replaced atomically if it already exists")
	dryRun       = flag.Bool("dry-run", false, "Print the dump's metadata.json and exit without loading anything")
	indexDBSize  = flag.Int("index-db-size", 0, "Initial mmap size hint, in bytes, forwarded to the index resolver while rebuilding each index")
	updateDBSize = flag.Int("update-db-size", 0, "Initial bbolt mmap size, in bytes, for the rebuilt update store")
	maxMemory    = flag.Int64("indexer-max-memory", 0, "Maximum memory in bytes the resolver's indexer may use while re-ingesting documents (0 is unbounded)")
	maxThreads   = flag.Int("indexer-max-threads", 0, "Maximum threads the resolver's indexer may use while re-ingesting documents (0 is unbounded)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("latticed dump loader")
	log.Println("=====================")

	if *srcArchive == "" {
		log.Fatal("--src is required")
	}
	if _, err := os.Stat(*srcArchive); err != nil {
		log.Fatalf("dump archive not found: %v", err)
	}

	meta, err := dump.ReadMetadata(*srcArchive)
	if err != nil {
		log.Fatalf("failed to read dump metadata: %v", err)
	}

	log.Printf("Source:       %s", *srcArchive)
	log.Printf("Dump version: %s", meta.DumpVersion)
	log.Printf("DB version:   %s", meta.DBVersion)
	if !meta.DumpDate.IsZero() {
		log.Printf("Dump date:    %s", meta.DumpDate.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		log.Println("Dump date:    (not recorded, V1 dump)")
	}

	if *dryRun {
		log.Println("\nDry run: no changes made. Pass without --dry-run to load this dump.")
		return
	}

	if *dstDir == "" {
		log.Fatal("--dst is required")
	}
	if _, err := os.Stat(*dstDir); err == nil {
		fmt.Printf("%s already exists and will be replaced. Continue? [y/N] ", *dstDir)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			log.Fatal("aborted")
		}
	}

	cfg := dump.LoadConfig{
		IndexDBSizeBytes:  *indexDBSize,
		UpdateDBSizeBytes: *updateDBSize,
		IndexerOpts: dump.IndexerOpts{
			MaxMemoryBytes: *maxMemory,
			MaxThreads:     *maxThreads,
		},
	}

	// The real index engine lives outside this repository (see
	// pkg/resolver); resolver.Fake stands in for it here so the loader has
	// something to rebuild each index against end to end.
	res := resolver.NewFake()

	log.Printf("\nLoading into %s ...", *dstDir)
	if err := dump.LoadDump(*dstDir, *srcArchive, res, cfg); err != nil {
		log.Fatalf("load failed: %v", err)
	}

	log.Println("✓ Dump loaded successfully")
	log.Printf("Start latticed against --data-dir %s", *dstDir)
}
