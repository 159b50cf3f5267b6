package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"sync/atomic"

	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/vizzTools/osmUtils/internal/export"
	"github.com/vizzTools/osmUtils/internal/logger"
	"github.com/vizzTools/osmUtils/pkg/manifest"
)

// runUpload copies the artifacts of exported entries to a remote bucket and
// records each copy in the manifest, so repeated runs only copy new ones.
func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	s := newSettings(fs)
	s.outputDir()
	s.manifest()
	s.workers()
	dest := fs.String("dest", "", "Destination bucket URL, e.g. s3://bucket or gs://bucket (required)")
	prefix := fs.String("prefix", "", "Object name prefix in the destination")
	all := fs.Bool("all", false, "Copy again artifacts that are already marked uploaded")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: osmutils upload [options]

Copy the artifacts of exported entries to a remote bucket and mark them
uploaded in the manifest.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *dest == "" {
		fmt.Fprintln(os.Stderr, "Error: -dest is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := s.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx, cancel := signalContext()
	defer cancel()

	ledger, src, done, code := openOutput(ctx, cfg)
	if code != ExitSuccess {
		return code
	}
	defer done()

	dst, err := openBucket(ctx, *dest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening destination: %v\n", err)
		return ExitStorageError
	}
	defer dst.Close()

	format, _ := export.ParseFormat(cfg.Format)
	var todo []manifest.Entry
	for _, e := range ledger.Entries() {
		if e.Exported && (*all || !e.Uploaded) {
			todo = append(todo, e)
		}
	}
	if len(todo) == 0 {
		fmt.Fprintln(os.Stderr, "[osmutils] Nothing to upload")
		return ExitSuccess
	}

	log := logger.L()
	fmt.Fprintf(os.Stderr, "[osmutils] Uploading %d artifacts to %s\n", len(todo), *dest)

	var copied atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, e := range todo {
		e := e
		g.Go(func() error {
			key := e.ID + format.Ext()
			if err := copyObject(gctx, src, dst, key, path.Join(*prefix, key)); err != nil {
				return err
			}
			if err := ledger.MarkUploaded(gctx, e.ID); err != nil {
				return err
			}
			copied.Add(1)
			log.Debug("artifact_uploaded", "unit", e.ID, "key", key)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "[osmutils] Upload interrupted after %d artifacts\n", copied.Load())
			return ExitIncomplete
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[osmutils] Upload complete: %d artifacts\n", copied.Load())
	return ExitSuccess
}

// copyObject streams one object between buckets. The destination is only
// committed when the whole object was read.
func copyObject(ctx context.Context, src, dst *blob.Bucket, srcKey, dstKey string) error {
	r, err := src.NewReader(ctx, srcKey, nil)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcKey, err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := dst.NewWriter(ctx, dstKey, &blob.WriterOptions{ContentType: r.ContentType()})
	if err != nil {
		return fmt.Errorf("create %s: %w", dstKey, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		// cancelling before Close aborts the write
		cancel()
		return errors.Join(fmt.Errorf("copy %s: %w", srcKey, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", dstKey, err)
	}
	return nil
}
