package assembler

import (
	"archive/zip"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/metrics"
)

// Downloader streams one package of a version.
type Downloader interface {
	DownloadPackage(ctx context.Context, hash, pkg string, w io.Writer) (int64, error)
}

// Progress receives assembly events. Nil callbacks are skipped.
type Progress struct {
	// OnPackage is called after a package was fully copied; done counts from 1.
	OnPackage func(done, total int, name string, size int64)
	// OnEntry is called after an entry was written to the output.
	OnEntry func(name string)
}

// Options configures an Assembler.
type Options struct {
	// Mappings holds the extraction-root prefix table of each variant.
	Mappings release.Mappings
	// Workers is the number of packages downloaded at once; values below 2 download sequentially.
	Workers int
	// TempDir holds downloaded packages; empty means os.TempDir.
	TempDir string
	// Metrics is optional.
	Metrics metrics.Metrics
}

// Stats summarizes an assembled archive.
type Stats struct {
	// Packages is the number of packages copied.
	Packages int
	// Files is the number of entries written, including AppSettings.xml.
	Files int
	// Downloaded is the total size of the downloaded packages.
	Downloaded int64
	// Size is the size of the promoted archive.
	Size int64
	// Checksum is the hex SHA-512 of the promoted archive.
	Checksum string
}

// Assembler downloads packages and merges them into one archive.
type Assembler struct {
	downloader Downloader
	mappings   release.Mappings
	workers    int
	tempDir    string
	metrics    metrics.Metrics
}

const (
	partialSuffix = ".partial"
	dirPermission = 0o755

	// utf8NameFlag marks entry names that are not plain ASCII.
	utf8NameFlag = 0x800
)

// errNoPackages is returned when the package list is empty.
var errNoPackages = errors.New("no packages to assemble")

// New creates an Assembler.
func New(downloader Downloader, opts Options) *Assembler {
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}

	return &Assembler{
		downloader: downloader,
		mappings:   opts.Mappings,
		workers:    max(opts.Workers, 1),
		tempDir:    opts.TempDir,
		metrics:    m,
	}
}

// PartialPath is where the archive for destination is built.
func PartialPath(destination string) string {
	return destination + partialSuffix
}

// Assemble downloads packages of hash and writes the unified archive to destination.
// On failure destination is untouched and no partial file is left behind.
func (a *Assembler) Assemble(
	ctx context.Context,
	variant release.Variant,
	hash string,
	packages []string,
	destination string,
	progress Progress,
) (Stats, error) {
	if len(packages) == 0 {
		return Stats{}, fmt.Errorf("%s: %w: %w", hash, errNoPackages, release.ErrFormat)
	}

	if err := os.MkdirAll(filepath.Dir(destination), dirPermission); err != nil {
		return Stats{}, fmt.Errorf("create output directory: %w", err)
	}

	workDir, err := os.MkdirTemp(a.tempDir, "downgrade-roblox-")
	if err != nil {
		return Stats{}, fmt.Errorf("create download directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	partial := PartialPath(destination)

	output, err := os.Create(filepath.Clean(partial))
	if err != nil {
		return Stats{}, fmt.Errorf("create %s: %w: %w", partial, release.ErrPartialWrite, err)
	}

	promoted := false

	defer func() {
		if !promoted {
			_ = output.Close()
			_ = os.Remove(partial)
		}
	}()

	var (
		hasher = sha512.New()
		sink   = &countingWriter{w: io.MultiWriter(output, hasher)}
		zw     = zip.NewWriter(sink)
		job    = &assembly{
			Assembler: a,
			variant:   variant,
			hash:      hash,
			packages:  packages,
			table:     a.mappings.For(variant),
			workDir:   workDir,
			zw:        zw,
			progress:  progress,
		}
	)

	if err = writeSettings(zw); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", release.ErrPartialWrite, err)
	}

	job.stats.Files = 1

	if a.workers > 1 && len(packages) > 1 {
		err = job.runParallel(ctx)
	} else {
		err = job.runSequential(ctx)
	}

	if err != nil {
		return Stats{}, err
	}

	if err = zw.Close(); err != nil {
		return Stats{}, fmt.Errorf("finish archive: %w: %w", release.ErrPartialWrite, err)
	}

	if err = output.Close(); err != nil {
		return Stats{}, fmt.Errorf("close archive: %w: %w", release.ErrPartialWrite, err)
	}

	if err = ctx.Err(); err != nil {
		return Stats{}, err
	}

	if err = os.Rename(partial, destination); err != nil {
		return Stats{}, fmt.Errorf("promote archive: %w: %w", release.ErrPartialWrite, err)
	}

	promoted = true

	job.stats.Size = sink.n
	job.stats.Checksum = hex.EncodeToString(hasher.Sum(nil))

	logger.InfoKV(ctx, "Assembled archive",
		"path", destination,
		"packages", job.stats.Packages,
		"files", job.stats.Files,
		"size", humanize.IBytes(uint64(job.stats.Size)),
	)

	return job.stats, nil
}

// assembly is the state of one Assemble call.
type assembly struct {
	*Assembler

	variant  release.Variant
	hash     string
	packages []string
	table    release.PathMappingTable
	workDir  string
	zw       *zip.Writer
	progress Progress
	stats    Stats
}

// fetched is a package downloaded to disk.
type fetched struct {
	path string
	size int64
	err  error
}

func (j *assembly) runSequential(ctx context.Context) error {
	for i, pkg := range j.packages {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, size, err := j.fetch(ctx, pkg)
		if err != nil {
			return err
		}

		if err = j.merge(ctx, i, pkg, path, size); err != nil {
			return err
		}
	}

	return nil
}

// runParallel downloads with up to workers producers while this goroutine
// stays the only writer and consumes packages in list order.
func (j *assembly) runParallel(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan fetched, len(j.packages))
	for i := range results {
		results[i] = make(chan fetched, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)

	launched := make(chan struct{})

	go func() {
		defer close(launched)

		for i, pkg := range j.packages {
			i, pkg := i, pkg
			g.Go(func() error {
				path, size, err := j.fetch(gctx, pkg)
				results[i] <- fetched{path: path, size: size, err: err}

				return err
			})
		}
	}()

	var (
		consumeErr error
		fetchErr   bool
	)

	for i, pkg := range j.packages {
		var r fetched

		select {
		case r = <-results[i]:
		case <-ctx.Done():
			r.err = ctx.Err()
		}

		if r.err != nil {
			consumeErr, fetchErr = r.err, true

			break
		}

		if consumeErr = j.merge(ctx, i, pkg, r.path, r.size); consumeErr != nil {
			break
		}
	}

	if consumeErr != nil {
		cancel()
	}

	<-launched

	groupErr := g.Wait()

	// A producer failure cancels its siblings; report the failure, not the cancellation.
	if fetchErr && groupErr != nil {
		return groupErr
	}

	return consumeErr
}

// fetch downloads pkg into the work directory.
func (j *assembly) fetch(ctx context.Context, pkg string) (string, int64, error) {
	file, err := os.CreateTemp(j.workDir, "package-*.zip")
	if err != nil {
		return "", 0, fmt.Errorf("package %s: %w", pkg, err)
	}

	size, err := j.downloader.DownloadPackage(ctx, j.hash, pkg, file)
	closeErr := file.Close()

	if err != nil {
		return "", size, fmt.Errorf("package %s: %w", pkg, err)
	}

	if closeErr != nil {
		return "", size, fmt.Errorf("package %s: %w: %w", pkg, release.ErrPartialWrite, closeErr)
	}

	j.metrics.IncPackagesDownloaded(j.variant.String())
	j.metrics.AddBytesDownloaded(j.variant.String(), size)

	logger.DebugKV(ctx, "Downloaded package", "package", pkg, "size", humanize.IBytes(uint64(size)))

	return file.Name(), size, nil
}

// merge copies every file entry of the downloaded package into the output.
func (j *assembly) merge(ctx context.Context, index int, pkg, path string, size int64) error {
	defer func() {
		_ = os.Remove(path)
	}()

	// Package entries use backslash separators, which zip reports as insecure paths.
	reader, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("package %s: %w: %w", pkg, release.ErrFormat, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	prefix := j.table.Prefix(pkg)

	for _, entry := range reader.File {
		if err = ctx.Err(); err != nil {
			return err
		}

		name := strings.ReplaceAll(entry.Name, `\`, "/")
		if strings.HasSuffix(name, "/") {
			continue
		}

		name = prefix + name

		if err = copyRaw(j.zw, entry, name); err != nil {
			return fmt.Errorf("package %s, entry %s: %w", pkg, entry.Name, err)
		}

		j.stats.Files++

		if j.progress.OnEntry != nil {
			j.progress.OnEntry(name)
		}
	}

	j.stats.Packages++
	j.stats.Downloaded += size

	if j.progress.OnPackage != nil {
		j.progress.OnPackage(index+1, len(j.packages), pkg, size)
	}

	return nil
}

// copyRaw writes entry under name without decompressing it.
func copyRaw(zw *zip.Writer, entry *zip.File, name string) error {
	src, err := entry.OpenRaw()
	if err != nil {
		return fmt.Errorf("%w: %w", release.ErrFormat, err)
	}

	header := &zip.FileHeader{
		Name:               name,
		Method:             entry.Method,
		CRC32:              entry.CRC32,
		CompressedSize64:   entry.CompressedSize64,
		UncompressedSize64: entry.UncompressedSize64,
		ModifiedDate:       entry.ModifiedDate,
		ModifiedTime:       entry.ModifiedTime,
	}

	if !isASCII(name) && utf8.ValidString(name) {
		header.Flags |= utf8NameFlag
	}

	dst, err := zw.CreateRaw(header)
	if err != nil {
		return fmt.Errorf("%w: %w", release.ErrPartialWrite, err)
	}

	if _, err = io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: %w", release.ErrPartialWrite, err)
	}

	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}

	return true
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}
