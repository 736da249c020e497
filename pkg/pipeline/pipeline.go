// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives a release from a validated config to an updated
// index: key, sources, manifests, builds, archives, signatures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Work-Fort/Warehouse/pkg/build"
	"github.com/Work-Fort/Warehouse/pkg/index"
	"github.com/Work-Fort/Warehouse/pkg/manifest"
	"github.com/Work-Fort/Warehouse/pkg/packager"
	"github.com/Work-Fort/Warehouse/pkg/release"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/sources"
)

// Fetcher downloads crates that are not available locally
type Fetcher interface {
	Fetch(ctx context.Context, name, version, dir string) (string, error)
}

// Options configures one run
type Options struct {
	Config *release.Config
	// OutputDir is the published tree
	OutputDir string
	// WorkDir holds sources, target dirs and staged archives
	WorkDir string
	Keys    signing.Options
	// PatchManifests writes binstall metadata into local crates
	PatchManifests bool
	// Backend defaults to NewBackend(Config, BuildOutput)
	Backend build.Backend
	// Fetcher defaults to the crates.io client
	Fetcher     Fetcher
	BuildOutput io.Writer
	Logger      *log.Logger
	OnResult    func(build.Result)
	// Now stamps index entries; defaults to time.Now
	Now func() time.Time
}

// NewBackend returns the build backend selected by cfg
func NewBackend(cfg *release.Config, output io.Writer) build.Backend {
	if cfg.Backend == release.BackendCross {
		return &build.Cross{Output: output}
	}
	return &build.Cargo{Auditable: cfg.Auditable, Output: output}
}

// Run executes a release. Errors that stop the run before anything is built
// (no usable key, no work dir) are returned directly; everything after that
// is recorded in the report, including a failed finalize.
func Run(ctx context.Context, opts Options) (*Report, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("no release config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	report := &Report{RunID: uuid.NewString(), OutputDir: opts.OutputDir}
	logger.Info("Starting release", "run", report.RunID, "crates", len(cfg.Crates), "targets", len(cfg.Targets))

	key, err := signing.LoadOrGenerate(cfg.Key, opts.Keys)
	if err != nil {
		return nil, err
	}
	defer key.Close()
	report.KeyID = key.KeyID()
	report.PublicKey = key.ExportPublic()
	report.KeyGenerated = key.Generated()
	if key.Generated() {
		priv, _ := key.Paths()
		logger.Info("Generated signing key", "id", key.KeyID(), "path", priv)
	}

	if err := os.MkdirAll(opts.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	crates := make([]*CrateReport, len(cfg.Crates))
	for i := range cfg.Crates {
		cr := cfg.Crates[i]
		crates[i] = &CrateReport{Name: cr.Name, Version: cr.Version}
		if err := prepareCrate(ctx, opts, &cr, crates[i], logger); err != nil {
			crates[i].Err = err
			logger.Error("Crate excluded from release", "crate", crates[i].Name, "err", err)
			continue
		}
		cfg.Crates[i] = cr
	}

	switch {
	case cfg.BaseURL == "":
		report.Notes = append(report.Notes, "base-url is not set: index URLs are relative and manifests were not patched")
	case !opts.PatchManifests:
		report.Notes = append(report.Notes, "manifest patching disabled")
	default:
		for i := range cfg.Crates {
			patchCrate(cfg, &cfg.Crates[i], crates[i], key.ExportPublic(), logger)
		}
	}

	var tasks []build.Task
	for i, cr := range cfg.Crates {
		if crates[i].Err != nil {
			continue
		}
		for _, target := range cfg.Targets {
			tasks = append(tasks, build.Task{
				Crate:        cr.Name,
				Version:      cr.Version,
				ManifestPath: cr.ManifestPath,
				Target:       target,
				Bins:         cr.Bins,
				TargetDir:    filepath.Join(opts.WorkDir, "targets", cr.Name, target),
			})
		}
	}

	backend := opts.Backend
	if backend == nil {
		backend = NewBackend(cfg, opts.BuildOutput)
	}
	orch := &build.Orchestrator{
		Backend:  backend,
		Jobs:     cfg.Jobs,
		Timeout:  cfg.TimeoutDuration(),
		Logger:   logger,
		OnResult: opts.OnResult,
	}
	results := orch.Run(ctx, tasks)

	staging := filepath.Join(opts.WorkDir, "staging", report.RunID)
	defer os.RemoveAll(staging)
	pk := &packager.Packager{
		Format:    cfg.Format,
		OutDir:    staging,
		ModTime:   packager.ModTimeFromEnv(),
		Auditable: cfg.Auditable,
		Backend:   backend.Name(),
		Pins:      cfg.Pins(),
	}

	byName := make(map[string]*CrateReport, len(crates))
	for _, c := range crates {
		byName[c.Name] = c
	}
	var artifacts []*packager.Artifact
	for _, res := range results {
		tr := TargetReport{
			Target:   res.Task.Target,
			State:    res.State,
			Reason:   res.Reason,
			Err:      res.Err,
			Duration: res.Duration,
		}
		if res.State == build.StateSucceeded {
			art, err := pk.Package(res)
			if err != nil {
				tr.Err = err
				tr.Reason = "packaging failed"
				logger.Error("Packaging failed", "task", res.Task, "err", err)
			} else {
				tr.Artifact = art
				artifacts = append(artifacts, art)
			}
		}
		c := byName[res.Task.Crate]
		c.Targets = append(c.Targets, tr)
	}
	for _, c := range crates {
		report.Crates = append(report.Crates, *c)
	}
	report.Artifacts = artifacts

	if len(artifacts) == 0 {
		report.Notes = append(report.Notes, "no artifacts were produced; the index was not updated")
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		report.FinalizeErr = &index.IndexError{Err: fmt.Errorf("run cancelled: %w", err)}
		return report, nil
	}

	fin := &index.Finalizer{
		Dir:     opts.OutputDir,
		BaseURL: cfg.BaseURL,
		Layout:  cfg.Layout,
		Format:  cfg.Format,
		Signer:  key,
		Logger:  logger,
		Now:     opts.Now,
	}
	idx, err := fin.Finalize(artifacts)
	if err != nil {
		report.FinalizeErr = err
		logger.Error("Finalize failed", "err", err)
		return report, nil
	}
	report.Finalized = true
	report.IndexEntries = len(idx.Entries)
	report.IndexPath = index.IndexPath(opts.OutputDir)
	return report, nil
}

// prepareCrate puts the crate sources on disk and resolves its manifest
func prepareCrate(ctx context.Context, opts Options, cr *release.Crate, rep *CrateReport, logger *log.Logger) error {
	manifestPath := cr.ManifestPath
	if cr.Remote() {
		fetcher := opts.Fetcher
		if fetcher == nil {
			fetcher = sources.NewClient()
		}
		dir, err := fetcher.Fetch(ctx, cr.Name, cr.Version, filepath.Join(opts.WorkDir, "sources"))
		if err != nil {
			return err
		}
		manifestPath = filepath.Join(dir, manifest.FileName)
		rep.Remote = true
	} else if manifestPath == "" {
		dir := cr.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(opts.Config.Dir, dir)
		}
		manifestPath = filepath.Join(dir, manifest.FileName)
	}

	if err := cr.Resolve(manifestPath); err != nil {
		return fmt.Errorf("%s: %w", manifestPath, err)
	}
	rep.Name = cr.Name
	rep.Version = cr.Version
	logger.Debug("Resolved crate", "crate", cr.Name, "version", cr.Version, "bins", cr.Bins)
	return nil
}

// patchCrate writes binstall metadata into a local crate. Failure excludes
// only this crate.
func patchCrate(cfg *release.Config, cr *release.Crate, rep *CrateReport, pubkey string, logger *log.Logger) {
	if rep.Err != nil || rep.Remote {
		return
	}
	changed, err := manifest.PatchFile(cr.ManifestPath, manifest.Coordinates{
		Crate:     cr.Name,
		Version:   cr.Version,
		BaseURL:   cfg.BaseURL,
		Layout:    cfg.Layout,
		Format:    cfg.Format,
		Targets:   cfg.Targets,
		PublicKey: pubkey,
	})
	if err != nil {
		rep.Err = err
		logger.Error("Manifest patch failed", "crate", cr.Name, "err", err)
		return
	}
	rep.Patched = changed
	if changed {
		logger.Info("Patched manifest", "path", cr.ManifestPath)
	}
}
