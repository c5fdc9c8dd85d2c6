// Package importer runs sheet-import jobs: each link found in a workbook
// becomes a unit that is downloaded and then filed as a folder holding one
// PDF document.
package importer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"docuflex/internal/extract"
	"docuflex/internal/logging"
	"docuflex/internal/metrics"
	"docuflex/internal/util"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
)

var (
	ErrNothingToImport = errors.New("no pending or failed items to process")
	ErrJobRunning      = errors.New("import is already running")
	ErrJobNotFound     = errors.New("import job not found")
	ErrDownloadFailed  = errors.New("download failed")
)

// Unit is one link of a job and its progress.
type Unit struct {
	Link       extract.Link
	Status     Status
	FolderID   string
	DocumentID string
	Err        string
}

// Download is the outcome of fetching one link.
type Download struct {
	SizeLabel string
}

// Downloader fetches the payload behind a link.
type Downloader interface {
	Download(ctx context.Context, link extract.Link) (Download, error)
}

// Sink files a downloaded link into the tree.
type Sink interface {
	FileImport(ctx context.Context, req FileRequest) (folderID, documentID string, err error)
}

type FileRequest struct {
	ParentID string
	OwnerID  string
	Link     extract.Link
	Download Download
}

type Options struct {
	Stagger time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Job is one scanned workbook bound to a target folder.
type Job struct {
	ID       string
	ParentID string
	OwnerID  string

	mu      sync.Mutex
	units   []Unit
	running bool
	wg      sync.WaitGroup
}

func (j *Job) Units() []Unit {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Unit, len(j.units))
	copy(out, j.units)
	return out
}

func (j *Job) HasFailed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, u := range j.units {
		if u.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Wait blocks until the current run has settled every unit.
func (j *Job) Wait() {
	j.wg.Wait()
}

// Counts tallies units per status.
func (j *Job) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, u := range j.Units() {
		counts[u.Status]++
	}
	return counts
}

func (j *Job) set(index int, fn func(u *Unit)) {
	j.mu.Lock()
	fn(&j.units[index])
	j.mu.Unlock()
}

type Importer struct {
	downloader Downloader
	sink       Sink
	opts       Options
	logger     *zap.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

func New(downloader Downloader, sink Sink, opts Options, logger *zap.Logger) *Importer {
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Importer{
		downloader: downloader,
		sink:       sink,
		opts:       opts,
		logger:     logging.OrNop(logger),
		jobs:       make(map[string]*Job),
	}
}

// NewJob registers a job with every link pending.
func (im *Importer) NewJob(parentID, ownerID string, links []extract.Link) *Job {
	job := &Job{ID: util.NewID("import"), ParentID: parentID, OwnerID: ownerID}
	for _, link := range links {
		job.units = append(job.units, Unit{Link: link, Status: StatusPending})
	}
	im.mu.Lock()
	im.jobs[job.ID] = job
	im.mu.Unlock()
	return job
}

func (im *Importer) Job(id string) (*Job, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	job, ok := im.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Start processes every unit of the job, or only the failed ones when
// retryFailed is set. Units start index*Stagger apart and run
// concurrently; Start returns the number of units scheduled.
func (im *Importer) Start(ctx context.Context, job *Job, retryFailed bool) (int, error) {
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return 0, ErrJobRunning
	}
	var indexes []int
	for i, u := range job.units {
		if !retryFailed || u.Status == StatusFailed {
			indexes = append(indexes, i)
		}
	}
	if len(indexes) == 0 {
		job.mu.Unlock()
		return 0, ErrNothingToImport
	}
	job.running = true
	for _, i := range indexes {
		job.units[i].Status = StatusPending
		job.units[i].Err = ""
	}
	job.wg.Add(1)
	job.mu.Unlock()

	var settled sync.WaitGroup
	settled.Add(len(indexes))
	for order, index := range indexes {
		go func(order, index int) {
			defer settled.Done()
			im.runUnit(ctx, job, order, index)
		}(order, index)
	}
	go func() {
		defer job.wg.Done()
		settled.Wait()
		job.mu.Lock()
		job.running = false
		job.mu.Unlock()
		im.logger.Info("import process finished", zap.String("job_id", job.ID), zap.Any("counts", job.Counts()))
	}()
	return len(indexes), nil
}

func (im *Importer) runUnit(ctx context.Context, job *Job, order, index int) {
	if err := im.opts.Sleep(ctx, time.Duration(order)*im.opts.Stagger); err != nil {
		im.fail(job, index, err)
		return
	}
	job.set(index, func(u *Unit) { u.Status = StatusDownloading })
	link := job.Units()[index].Link

	dl, err := im.downloader.Download(ctx, link)
	if err != nil {
		im.fail(job, index, err)
		return
	}
	folderID, docID, err := im.sink.FileImport(ctx, FileRequest{
		ParentID: job.ParentID,
		OwnerID:  job.OwnerID,
		Link:     link,
		Download: dl,
	})
	if err != nil {
		im.fail(job, index, err)
		return
	}
	job.set(index, func(u *Unit) {
		u.Status = StatusSuccess
		u.FolderID = folderID
		u.DocumentID = docID
	})
	metrics.RecordImportUnit(string(StatusSuccess))
	im.logger.Info("import unit filed",
		zap.String("job_id", job.ID),
		zap.String("cell", link.Cell),
		logging.ItemID(docID),
	)
}

func (im *Importer) fail(job *Job, index int, err error) {
	job.set(index, func(u *Unit) {
		u.Status = StatusFailed
		u.Err = err.Error()
	})
	metrics.RecordImportUnit(string(StatusFailed))
	im.logger.Warn("import unit failed", zap.String("job_id", job.ID), zap.Int("unit", index), zap.Error(err))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SimulatedDownloader stands in for a real fetch: it waits a random
// latency and succeeds with the configured probability.
type SimulatedDownloader struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	SuccessRate int // percent
	Rand        func() float64
	Sleep       func(ctx context.Context, d time.Duration) error
}

func (d SimulatedDownloader) Download(ctx context.Context, link extract.Link) (Download, error) {
	roll := d.Rand
	if roll == nil {
		roll = rand.Float64
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	latency := d.MinLatency
	if spread := d.MaxLatency - d.MinLatency; spread > 0 {
		latency += time.Duration(roll() * float64(spread))
	}
	if err := sleep(ctx, latency); err != nil {
		return Download{}, err
	}
	if roll()*100 >= float64(d.SuccessRate) {
		return Download{}, fmt.Errorf("%w: %s", ErrDownloadFailed, link.URL)
	}
	return Download{SizeLabel: fmt.Sprintf("%.2f MB", roll()*5+1)}, nil
}
