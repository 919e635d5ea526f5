package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/metrics"
	"github.com/KirshWasHere/DowngradeRoblox/internal/repository/installs"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/assembler"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/installer"
)

// HistoryClient lists published builds.
type HistoryClient interface {
	FetchVersions(ctx context.Context, variant release.Variant, limit int) ([]release.DeployHistoryEntry, error)
}

// ManifestResolver lists the packages of a build of a given variant.
type ManifestResolver interface {
	ResolveFor(ctx context.Context, hash string, want release.Variant) ([]string, error)
}

// Assembler builds the unified archive.
type Assembler interface {
	Assemble(
		ctx context.Context,
		variant release.Variant,
		hash string,
		packages []string,
		destination string,
		progress assembler.Progress,
	) (assembler.Stats, error)
}

// Installer installs an archive into a versions directory.
type Installer interface {
	Install(
		ctx context.Context,
		variant release.Variant,
		root, hash, archive string,
		progress installer.EntryProgress,
	) (installer.Report, error)
}

// Recorder stores completed installs.
type Recorder interface {
	Put(ctx context.Context, record installs.Record) error
}

// Progress receives events of every variant. Nil callbacks are skipped.
type Progress struct {
	OnPackage func(variant release.Variant, done, total int, name string, size int64)
	OnExtract func(variant release.Variant, done, total int, name string)
}

// Options configures a Pipeline.
type Options struct {
	History   HistoryClient
	Manifests ManifestResolver
	Assembler Assembler
	Installer Installer
	// Records is optional.
	Records Recorder
	// Metrics is optional.
	Metrics metrics.Metrics
	// Roots maps each variant to its versions directory.
	Roots map[release.Variant]string
	// DownloadsDir receives the assembled archives.
	DownloadsDir string
	// KeepArchive keeps the archive after a successful install.
	KeepArchive bool
	// HistoryLimit bounds how many versions are read from the history.
	HistoryLimit int
	Progress     Progress
}

// Result is the outcome of one variant's pipeline.
type Result struct {
	RunID       string
	Variant     release.Variant
	Selection   Selection
	Hash        string
	ArchivePath string
	Directory   string
	Assembly    assembler.Stats
	Install     installer.Report
	Duration    time.Duration
	Err         error
}

// OK reports whether the pipeline completed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Pipeline runs install pipelines.
type Pipeline struct {
	history      HistoryClient
	manifests    ManifestResolver
	assembler    Assembler
	installer    Installer
	records      Recorder
	metrics      metrics.Metrics
	roots        map[release.Variant]string
	downloadsDir string
	keepArchive  bool
	historyLimit int
	progress     Progress
}

const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	// errMissingDependency is returned when a required collaborator is nil.
	errMissingDependency = errors.New("pipeline dependency is not set")
	// errNoRoot is returned when a variant has no versions directory.
	errNoRoot = errors.New("versions directory is not configured")
)

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.History == nil || opts.Manifests == nil || opts.Assembler == nil || opts.Installer == nil {
		return nil, errMissingDependency
	}

	if opts.DownloadsDir == "" {
		return nil, fmt.Errorf("downloads directory: %w", errMissingDependency)
	}

	p := &Pipeline{
		history:      opts.History,
		manifests:    opts.Manifests,
		assembler:    opts.Assembler,
		installer:    opts.Installer,
		records:      opts.Records,
		metrics:      opts.Metrics,
		roots:        opts.Roots,
		downloadsDir: opts.DownloadsDir,
		keepArchive:  opts.KeepArchive,
		historyLimit: opts.HistoryLimit,
		progress:     opts.Progress,
	}

	if p.metrics == nil {
		p.metrics = metrics.Noop{}
	}

	if p.historyLimit < DowngradeDepth {
		p.historyLimit = DowngradeDepth
	}

	return p, nil
}

// RunAll runs the pipeline for each variant in order. A failed variant does
// not prevent the next one from running.
func (p *Pipeline) RunAll(ctx context.Context, variants []release.Variant, sel Selection) []Result {
	results := make([]Result, 0, len(variants))

	for _, v := range variants {
		results = append(results, p.Run(ctx, v, sel))
	}

	return results
}

// Run installs the version of variant chosen by sel.
func (p *Pipeline) Run(ctx context.Context, variant release.Variant, sel Selection) Result {
	started := time.Now()

	result := Result{
		RunID:     uuid.NewString(),
		Variant:   variant,
		Selection: sel,
	}

	ctx = logger.WithKV(logger.WithName(ctx, "pipeline"), "variant", variant, "run_id", result.RunID)

	result.Err = p.run(ctx, &result)
	result.Duration = time.Since(started)

	outcome := resultOK
	if result.Err != nil {
		outcome = resultError

		logger.ErrorKV(ctx, "Pipeline failed", "selection", sel, "hash", result.Hash, "error", result.Err)
	} else {
		logger.InfoKV(ctx, "Pipeline complete", "hash", result.Hash, "directory", result.Directory, "took", result.Duration.Round(time.Millisecond))
	}

	p.metrics.IncPipelineRuns(variant.String(), outcome)

	return result
}

func (p *Pipeline) run(ctx context.Context, result *Result) error {
	variant := result.Variant

	root, ok := p.roots[variant]
	if !ok || root == "" {
		return fmt.Errorf("%s: %w", variant, errNoRoot)
	}

	if err := result.Selection.Validate(); err != nil {
		return err
	}

	hash, err := p.selectVersion(ctx, variant, result.Selection)
	if err != nil {
		return err
	}

	result.Hash = hash

	logger.InfoKV(ctx, "Selected version", "hash", hash, "selection", result.Selection)

	packages, err := p.manifests.ResolveFor(ctx, hash, variant)
	if err != nil {
		return err
	}

	result.ArchivePath = filepath.Join(p.downloadsDir, variant.ArchiveName(hash))

	started := time.Now()

	result.Assembly, err = p.assembler.Assemble(ctx, variant, hash, packages, result.ArchivePath, assembler.Progress{
		OnPackage: func(done, total int, name string, size int64) {
			if p.progress.OnPackage != nil {
				p.progress.OnPackage(variant, done, total, name, size)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("assemble %s: %w", hash, err)
	}

	p.metrics.ObserveStageDuration("assemble", time.Since(started).Seconds())

	result.Install, err = p.installer.Install(ctx, variant, root, hash, result.ArchivePath,
		func(done, total int, name string) {
			if p.progress.OnExtract != nil {
				p.progress.OnExtract(variant, done, total, name)
			}
		})
	result.Directory = result.Install.Directory

	if err != nil {
		return fmt.Errorf("install %s: %w", hash, err)
	}

	p.cleanupArchive(ctx, result.ArchivePath)
	p.record(ctx, result)

	return nil
}

func (p *Pipeline) selectVersion(ctx context.Context, variant release.Variant, sel Selection) (string, error) {
	if !sel.NeedsHistory() {
		return sel.Pick(nil)
	}

	entries, err := p.history.FetchVersions(ctx, variant, p.historyLimit)
	if err != nil {
		return "", err
	}

	return sel.Pick(entries)
}

func (p *Pipeline) cleanupArchive(ctx context.Context, path string) {
	if p.keepArchive {
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Could not delete archive", "path", path, "error", err)
	}
}

func (p *Pipeline) record(ctx context.Context, result *Result) {
	if p.records == nil {
		return
	}

	err := p.records.Put(ctx, installs.Record{
		Variant:         result.Variant,
		Hash:            result.Hash,
		Directory:       result.Directory,
		ArchiveChecksum: result.Assembly.Checksum,
		InstalledAt:     time.Now(),
	})
	if err != nil {
		logger.WarnKV(ctx, "Could not record install", "error", err)
	}
}
