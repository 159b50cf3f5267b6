package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"gocloud.dev/blob"

	"github.com/vizzTools/osmUtils/internal/config"
	"github.com/vizzTools/osmUtils/internal/export"
	"github.com/vizzTools/osmUtils/pkg/manifest"
)

// runValidate checks that every exported entry has a non-empty artifact in
// the output. Reports validation status without reading artifact data.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	s := newSettings(fs)
	s.outputDir()
	s.manifest()

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: osmutils validate [options]

Verify that every exported manifest entry has a non-empty artifact in the
output. Only object attributes are read.

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

	ledger, bkt, done, code := openOutput(ctx, cfg)
	if code != ExitSuccess {
		return code
	}
	defer done()

	format, _ := export.ParseFormat(cfg.Format)
	result, err := manifest.Validate(ctx, ledger.Manifest(), bkt, format.Ext())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("Manifest: %s\n", cfg.ManifestLocation())
	fmt.Printf("Entries: %d (%d pending, %d exported, %d excluded)\n",
		result.Counts.Total, result.Counts.Pending, result.Counts.Exported, result.Counts.Excluded)
	if len(result.Orphans) > 0 {
		fmt.Printf("Orphan artifacts: %d\n", len(result.Orphans))
	}

	if result.Valid {
		fmt.Println("Status: VALID")
		return ExitSuccess
	}

	fmt.Println("Status: INVALID")
	fmt.Printf("Missing artifacts: %d\n", len(result.MissingArtifacts))
	fmt.Printf("Empty artifacts: %d\n", len(result.EmptyArtifacts))

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	fmt.Println("\nRun 'osmutils fix' to requeue these entries.")

	return ExitValidationFailed
}

// runFix returns entries to pending so the next fetch retries them: exported
// entries whose artifact is missing or empty, and with -excluded every
// excluded entry.
func runFix(args []string) int {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)
	s := newSettings(fs)
	s.outputDir()
	s.manifest()
	excluded := fs.Bool("excluded", false, "Also requeue excluded entries")
	dryRun := fs.Bool("dry-run", false, "List the entries without changing the manifest")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: osmutils fix [options]

Requeue exported entries whose artifact is missing or empty, so that the
next 'osmutils fetch' retrieves them again.

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

	ledger, bkt, done, code := openOutput(ctx, cfg)
	if code != ExitSuccess {
		return code
	}
	defer done()

	format, _ := export.ParseFormat(cfg.Format)
	result, err := manifest.Validate(ctx, ledger.Manifest(), bkt, format.Ext())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	ids := append(result.MissingArtifacts, result.EmptyArtifacts...)
	if *excluded {
		for _, e := range ledger.Entries() {
			if e.Status() == manifest.StatusExcluded {
				ids = append(ids, e.ID)
			}
		}
	}

	if len(ids) == 0 {
		fmt.Println("Nothing to fix")
		return ExitSuccess
	}

	for _, id := range ids {
		if *dryRun {
			fmt.Printf("Would requeue %s\n", id)
			continue
		}
		if err := ledger.Requeue(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error requeueing %s: %v\n", id, err)
			return ExitStorageError
		}
		fmt.Printf("Requeued %s\n", id)
	}

	if !*dryRun {
		fmt.Printf("Done: %d entries pending again\n", len(ids))
	}
	return ExitSuccess
}

// openOutput opens the manifest and the artifact bucket. The returned code
// is ExitSuccess when both are open; done closes them.
func openOutput(ctx context.Context, cfg config.Config) (*manifest.Ledger, *blob.Bucket, func(), int) {
	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no manifest at %s\n", cfg.ManifestLocation())
			return nil, nil, nil, ExitInvalidArgs
		}
		fmt.Fprintf(os.Stderr, "Error opening manifest: %v\n", err)
		return nil, nil, nil, ExitStorageError
	}

	bkt, err := openBucket(ctx, cfg.OutputDir)
	if err != nil {
		closeLedger()
		fmt.Fprintf(os.Stderr, "Error opening output: %v\n", err)
		return nil, nil, nil, ExitStorageError
	}

	return ledger, bkt, func() {
		bkt.Close()
		closeLedger()
	}, ExitSuccess
}
