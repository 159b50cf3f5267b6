package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vizzTools/osmUtils/pkg/manifest"
)

// runStatus prints how many manifest entries are in each state.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	s := newSettings(fs)
	s.outputDir()
	s.manifest()
	pending := fs.Bool("pending", false, "Also list the ids of pending entries")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: osmutils status [options]

Print the number of pending, exported, excluded and uploaded entries.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := s.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx, cancel := signalContext()
	defer cancel()

	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no manifest at %s\n", cfg.ManifestLocation())
			return ExitInvalidArgs
		}
		fmt.Fprintf(os.Stderr, "Error opening manifest: %v\n", err)
		return ExitStorageError
	}
	defer closeLedger()

	c := ledger.Counts()
	fmt.Printf("Manifest: %s\n", cfg.ManifestLocation())
	fmt.Printf("Entries: %d\n", c.Total)
	fmt.Printf("Pending: %d\n", c.Pending)
	fmt.Printf("Exported: %d\n", c.Exported)
	fmt.Printf("Excluded: %d\n", c.Excluded)
	fmt.Printf("Uploaded: %d\n", c.Uploaded)

	if *pending {
		for _, e := range ledger.Pending() {
			fmt.Printf("  - %s\n", e.ID)
		}
	}

	if c.Pending > 0 {
		return ExitIncomplete
	}
	return ExitSuccess
}
