// Package orchestrator drives the sync pipeline end-to-end for a chosen
// mode, per spec.md §4.F: pulls upstream pages, transforms and diffs each
// record, upserts the product store, schedules image jobs, and records
// progress and outcome in the sync log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/sync-engine/internal/changedetect"
	"github.com/maukemana/sync-engine/internal/imagesync"
	"github.com/maukemana/sync-engine/internal/mapping"
	"github.com/maukemana/sync-engine/internal/models"
	"github.com/maukemana/sync-engine/internal/repositories"
	"github.com/maukemana/sync-engine/internal/transform"
	"github.com/maukemana/sync-engine/internal/upstream"
)

// ErrConflict is returned when a sync is requested while one is already
// running, per spec.md §4.F "at most one sync is active per process".
var ErrConflict = errors.New("orchestrator: a sync is already running")

// ErrNoActiveSync is returned by ControlSync when there is nothing to
// control, or the given syncId doesn't match the running one.
var ErrNoActiveSync = errors.New("orchestrator: no matching active sync")

// ErrCancelled marks a run that was terminated by an explicit cancel
// signal, per spec.md §4.F/§5.
var ErrCancelled = errors.New("orchestrator: sync cancelled")

// ErrMissingProductIDs is returned when a selective sync is requested
// without any productIds, per spec.md §4.F ("selective: requires
// non-empty productIds").
var ErrMissingProductIDs = errors.New("orchestrator: selective sync requires non-empty productIds")

// UpstreamRecords is the subset of upstream.Client the orchestrator drives.
type UpstreamRecords interface {
	GetAllRecords(ctx context.Context, opts upstream.RecordsOptions) ([]mapping.Record, error)
}

// ControlAction is one of the three signals controlSync accepts.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionCancel ControlAction = "cancel"
)

// Options is the fully-resolved set of sync parameters, per spec.md §4.F.
// The HTTP layer is responsible for applying the documented defaults
// (downloadImages/validateData=true, batchSize=50, concurrentImages=5) via
// ResolveOptions before calling SyncFromFeishu or StartAsync.
type Options struct {
	Mode             models.SyncType
	ProductIDs       []string
	DownloadImages   bool
	ValidateData     bool
	DryRun           bool
	BatchSize        int
	ConcurrentImages int
}

// RawOptions mirrors the JSON request body, where every tuning knob is
// optional and defaults are applied by ResolveOptions.
type RawOptions struct {
	Mode             models.SyncType `json:"mode"`
	ProductIDs       []string        `json:"productIds,omitempty"`
	DownloadImages   *bool           `json:"downloadImages,omitempty"`
	ValidateData     *bool           `json:"validateData,omitempty"`
	DryRun           *bool           `json:"dryRun,omitempty"`
	BatchSize        *int            `json:"batchSize,omitempty"`
	ConcurrentImages *int            `json:"concurrentImages,omitempty"`
}

// ResolveOptions applies spec.md §4.F's documented option defaults.
func ResolveOptions(raw RawOptions) Options {
	opts := Options{
		Mode:             raw.Mode,
		ProductIDs:       raw.ProductIDs,
		DownloadImages:   true,
		ValidateData:     true,
		DryRun:           false,
		BatchSize:        50,
		ConcurrentImages: 5,
	}
	if raw.DownloadImages != nil {
		opts.DownloadImages = *raw.DownloadImages
	}
	if raw.ValidateData != nil {
		opts.ValidateData = *raw.ValidateData
	}
	if raw.DryRun != nil {
		opts.DryRun = *raw.DryRun
	}
	if raw.BatchSize != nil && *raw.BatchSize > 0 {
		opts.BatchSize = *raw.BatchSize
	}
	if raw.ConcurrentImages != nil && *raw.ConcurrentImages > 0 {
		opts.ConcurrentImages = *raw.ConcurrentImages
	}
	return opts
}

// Result is what SyncFromFeishu returns once a run reaches a terminal
// status.
type Result struct {
	SyncID string
	Status models.SyncStatus
	Stats  models.SyncStats
	Errors []string
}

// Orchestrator holds the one-sync-per-process state plus its collaborators.
type Orchestrator struct {
	upstream UpstreamRecords
	table    mapping.Table
	products *repositories.ProductRepository
	syncLogs *repositories.SyncLogRepository
	images   *imagesync.Service
	appToken string
	tableID  string

	broadcaster *ProgressBroadcaster
	log         *slog.Logger

	mu        sync.Mutex
	running   bool
	syncID    string
	cancelled atomic.Bool
	paused    atomic.Bool
}

func New(
	upstreamClient UpstreamRecords,
	table mapping.Table,
	products *repositories.ProductRepository,
	syncLogs *repositories.SyncLogRepository,
	images *imagesync.Service,
	appToken, tableID string,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		upstream:    upstreamClient,
		table:       table,
		products:    products,
		syncLogs:    syncLogs,
		images:      images,
		appToken:    appToken,
		tableID:     tableID,
		broadcaster: NewProgressBroadcaster(),
		log:         log,
	}
}

// Progress returns the broadcaster the HTTP layer subscribes to for
// /sync/stream.
func (o *Orchestrator) Progress() *ProgressBroadcaster { return o.broadcaster }

// ControlSync implements spec.md §4.F controlSync.
func (o *Orchestrator) ControlSync(action ControlAction, syncID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running || (syncID != "" && syncID != o.syncID) {
		return ErrNoActiveSync
	}

	switch action {
	case ActionPause:
		o.paused.Store(true)
	case ActionResume:
		o.paused.Store(false)
	case ActionCancel:
		o.cancelled.Store(true)
	default:
		return fmt.Errorf("orchestrator: unknown control action %q", action)
	}
	return nil
}

// checkpoint honors cancel and pause at a per-record boundary, cancel
// checked first, per spec.md §4.F "each per-record iteration first checks
// cancel (abort) then pause (block until resumed)".
func (o *Orchestrator) checkpoint(ctx context.Context) error {
	if o.cancelled.Load() {
		return ErrCancelled
	}
	for o.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		if o.cancelled.Load() {
			return ErrCancelled
		}
	}
	return nil
}

// Status implements the data behind GET /sync/status.
func (o *Orchestrator) Status(ctx context.Context) (current, last *models.SyncLog, err error) {
	o.mu.Lock()
	syncID := o.syncID
	running := o.running
	o.mu.Unlock()

	if running {
		current, err = o.syncLogs.FindByID(ctx, syncID)
		if err != nil {
			return nil, nil, err
		}
	}

	recent, err := o.syncLogs.FindRecent(ctx, 2)
	if err != nil {
		return current, nil, err
	}
	for _, r := range recent {
		if running && r.LogID == syncID {
			continue
		}
		last = r
		break
	}
	return current, last, nil
}

// SyncFromFeishu implements spec.md §4.F syncFromFeishu, blocking until the
// run reaches a terminal status. Callers that need to respond to an HTTP
// request before completion should use StartAsync instead.
func (o *Orchestrator) SyncFromFeishu(ctx context.Context, opts Options) (*Result, error) {
	syncID, err := o.claim(ctx, opts)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, syncID, opts), nil
}

// StartAsync claims the one-sync-per-process slot and opens the SyncLog row
// synchronously (so the caller can respond with syncId immediately), then
// runs the sync to completion in the background against ctx. Returns
// ErrConflict if a sync is already running.
func (o *Orchestrator) StartAsync(ctx context.Context, opts Options) (string, error) {
	syncID, err := o.claim(ctx, opts)
	if err != nil {
		return "", err
	}
	go o.run(ctx, syncID, opts)
	return syncID, nil
}

// claim reserves the one-sync-per-process slot and opens the SyncLog row.
func (o *Orchestrator) claim(ctx context.Context, opts Options) (string, error) {
	if opts.Mode == models.SyncSelective && len(opts.ProductIDs) == 0 {
		return "", ErrMissingProductIDs
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return "", ErrConflict
	}
	syncID := uuid.NewString()
	o.running = true
	o.syncID = syncID
	o.cancelled.Store(false)
	o.paused.Store(false)
	o.mu.Unlock()

	log := &models.SyncLog{
		LogID:     syncID,
		SyncType:  opts.Mode,
		StartTime: time.Now().UTC(),
		Status:    models.SyncRunning,
		Config: models.SyncConfig{
			Mode:             opts.Mode,
			ProductIDs:       opts.ProductIDs,
			DownloadImages:   opts.DownloadImages,
			ValidateData:     opts.ValidateData,
			DryRun:           opts.DryRun,
			BatchSize:        opts.BatchSize,
			ConcurrentImages: opts.ConcurrentImages,
			AppToken:         o.appToken,
			TableID:          o.tableID,
		},
		Progress: models.SyncProgress{Percentage: 0, CurrentOperation: StageInitializing},
	}
	if err := o.syncLogs.Create(ctx, log); err != nil {
		o.mu.Lock()
		o.running = false
		o.syncID = ""
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator: create sync log: %w", err)
	}

	o.emit(syncID, StageInitializing, 0)
	return syncID, nil
}

// run executes an already-claimed sync to completion and always releases
// the process-wide slot on return.
func (o *Orchestrator) run(ctx context.Context, syncID string, opts Options) *Result {
	stats := models.SyncStats{}
	var errorLogs models.ErrorLogList

	defer func() {
		o.mu.Lock()
		o.running = false
		o.syncID = ""
		o.mu.Unlock()
	}()

	finish := func(status models.SyncStatus) *Result {
		end := time.Now().UTC()
		if err := o.syncLogs.UpdateStatus(ctx, syncID, status, stats, errorLogs, &end); err != nil {
			o.log.Error("orchestrator: failed to close sync log", "syncId", syncID, "error", err)
		}
		return &Result{SyncID: syncID, Status: status, Stats: stats, Errors: errorMessages(errorLogs)}
	}

	// Stage: fetching_data
	o.emit(syncID, StageFetchingData, 5)
	raws, err := o.upstream.GetAllRecords(ctx, upstream.RecordsOptions{})
	if err != nil {
		errorLogs = append(errorLogs, models.ErrorLogEntry{Type: "UpstreamError", Message: err.Error(), Timestamp: time.Now().UTC()})
		stats.Errors++
		return finish(models.SyncFailed)
	}

	cutoff, err := o.cutoffFor(ctx, opts)
	if err != nil {
		errorLogs = append(errorLogs, models.ErrorLogEntry{Type: "StoreError", Message: err.Error(), Timestamp: time.Now().UTC()})
		stats.Errors++
		return finish(models.SyncFailed)
	}

	if opts.Mode == models.SyncSelective {
		wanted := map[string]struct{}{}
		for _, id := range opts.ProductIDs {
			wanted[id] = struct{}{}
		}
		filtered := raws[:0]
		for _, r := range raws {
			if _, ok := wanted[r.RecordID]; ok {
				filtered = append(filtered, r)
			}
		}
		raws = filtered
	}

	// Stage: processing_records
	o.emit(syncID, StageProcessingRecords, 10)
	batch := transform.BatchTransform(raws, o.table)
	stats.Errors += batch.TotalErrors

	for _, failed := range batch.Failed {
		errorLogs = append(errorLogs, models.ErrorLogEntry{
			Type: "TransformError", Message: fmt.Sprintf("%v", failed.Errors), ProductID: strPtr(failed.Raw.RecordID), Timestamp: time.Now().UTC(),
		})
	}

	var kept []*transform.Result
	for _, res := range batch.Successful {
		if opts.Mode == models.SyncIncremental && !res.Product.CollectTime.After(cutoff) {
			continue
		}
		kept = append(kept, res)
	}
	stats.TotalRecords = len(kept)

	imageJobs := map[string]*imagesync.DownloadJob{}

	for i, res := range kept {
		if err := o.checkpoint(ctx); err != nil {
			if errors.Is(err, ErrCancelled) {
				return finish(models.SyncCancelled)
			}
			return finish(models.SyncFailed)
		}

		product := res.Product
		existing, err := o.products.FindByID(ctx, product.ProductID)
		if err != nil {
			stats.Errors++
			errorLogs = append(errorLogs, models.ErrorLogEntry{Type: "StoreError", Message: err.Error(), ProductID: &product.ProductID, Timestamp: time.Now().UTC()})
			continue
		}

		expectedVersion := 0
		changed := true
		if existing != nil {
			expectedVersion = existing.Version
			diff := changedetect.DetectChanges(product, existing)
			changed = diff.HasChanges
			product.Version = existing.Version
		}

		if existing == nil {
			stats.CreatedRecords++
		} else if changed {
			stats.UpdatedRecords++
		}
		stats.ProcessedRecords++

		if !opts.DryRun && (existing == nil || changed) {
			if _, err := o.products.Upsert(ctx, product, expectedVersion); err != nil {
				stats.Errors++
				errorLogs = append(errorLogs, models.ErrorLogEntry{Type: "StoreError", Message: err.Error(), ProductID: &product.ProductID, Timestamp: time.Now().UTC()})
				continue
			}
		}

		if opts.DownloadImages {
			for imgType, tokens := range res.ImageTokens {
				if len(tokens) == 0 {
					continue
				}
				key := product.ProductID + "/" + string(imgType)
				imageJobs[key] = &imagesync.DownloadJob{ProductID: product.ProductID, Type: imgType, FileTokens: tokens}
			}
		}

		pct := int(math.Floor(float64(i+1) * 100 / float64(len(kept))))
		o.emit(syncID, StageProcessingRecords, 10+pct*70/100)
	}

	// Stage: downloading_images
	if opts.DownloadImages && !opts.DryRun && len(imageJobs) > 0 {
		o.emit(syncID, StageDownloadingImages, 85)
		jobs := make([]imagesync.DownloadJob, 0, len(imageJobs))
		for _, j := range imageJobs {
			jobs = append(jobs, *j)
		}
		batchResult := o.images.BatchDownloadFromFeishu(ctx, jobs, opts.ConcurrentImages)
		stats.ProcessedImages += len(batchResult.Successful)
		stats.FailedImages += len(batchResult.Failed)
		for _, f := range batchResult.Failed {
			errorLogs = append(errorLogs, models.ErrorLogEntry{
				Type: "StoreError", Message: fmt.Sprintf("image %s (%s): %v", f.FileToken, f.Type, f.Err), ProductID: &f.ProductID, Timestamp: time.Now().UTC(),
			})
		}
	}

	o.emit(syncID, StageDownloadingImages, 100)
	return finish(models.SyncCompleted)
}

func (o *Orchestrator) cutoffFor(ctx context.Context, opts Options) (time.Time, error) {
	if opts.Mode != models.SyncIncremental {
		return time.Time{}, nil
	}
	last, err := o.syncLogs.FindLastSuccessful(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		return time.Now().UTC().Add(-24 * time.Hour), nil
	}
	return last.StartTime, nil
}

func (o *Orchestrator) emit(syncID, stage string, pct int) {
	o.broadcaster.Publish(Progress{SyncID: syncID, Stage: stage, Percentage: pct, CurrentOperation: stage})
	progress := models.SyncProgress{Percentage: pct, CurrentOperation: stage}
	if err := o.syncLogs.UpdateProgress(context.Background(), syncID, progress); err != nil {
		o.log.Warn("orchestrator: failed to record sync progress", "syncId", syncID, "error", err)
	}
}

func errorMessages(logs models.ErrorLogList) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Message)
	}
	return out
}

func strPtr(s string) *string { return &s }
