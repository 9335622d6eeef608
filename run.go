// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"cmp"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/types/xslices"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog/internal/runfiles"
)

const (
	// DefaultBaseDir is where run directories are created if neither
	// Build().Dir nor $RUNLOG_DIR is set.
	DefaultBaseDir = "~/.runlog"

	// DefaultProject is used when Build().Project is not called.
	DefaultProject = "uncategorized"
)

// Environment variables honored by Build.
const (
	EnvBaseDir = "RUNLOG_DIR"
	EnvAPIKey  = "RUNLOG_API_KEY"
	EnvBaseURL = "RUNLOG_BASE_URL"
)

// RunBuilder configures a new run. Create it with Build, set what you need and
// call Done.
type RunBuilder struct {
	project, name string
	config        Config
	baseDir       string
	tags          []string
	notes         string
	apiKey        string
	baseURL       string
	resumeID      string
	quiet         bool
}

// Build starts the configuration of a new run. Settings not explicitly given
// are taken from the environment ($RUNLOG_DIR, $RUNLOG_API_KEY, $RUNLOG_BASE_URL)
// or defaulted. Call Done when finished configuring, to create the run.
func Build() *RunBuilder {
	return &RunBuilder{
		project: DefaultProject,
		baseDir: cmp.Or(os.Getenv(EnvBaseDir), DefaultBaseDir),
		apiKey:  os.Getenv(EnvAPIKey),
		baseURL: os.Getenv(EnvBaseURL),
	}
}

// Project sets the project under which the run is grouped.
func (b *RunBuilder) Project(name string) *RunBuilder {
	b.project = name
	return b
}

// Name sets a human-readable run name. Defaults to "run-<id>".
func (b *RunBuilder) Name(name string) *RunBuilder {
	b.name = name
	return b
}

// Config sets the hyperparameter set stored with the run.
func (b *RunBuilder) Config(config Config) *RunBuilder {
	b.config = config
	return b
}

// Dir sets the base directory under which run directories are created.
// A "~/" prefix is expanded.
func (b *RunBuilder) Dir(baseDir string) *RunBuilder {
	b.baseDir = baseDir
	return b
}

// Tags attaches free-form tags to the run.
func (b *RunBuilder) Tags(tags ...string) *RunBuilder {
	b.tags = append(b.tags, tags...)
	return b
}

// Notes attaches a free-form description to the run.
func (b *RunBuilder) Notes(notes string) *RunBuilder {
	b.notes = notes
	return b
}

// APIKey enables mirroring to a tracking server, overriding $RUNLOG_API_KEY.
func (b *RunBuilder) APIKey(key string) *RunBuilder {
	b.apiKey = key
	return b
}

// BaseURL sets the tracking server address, overriding $RUNLOG_BASE_URL.
func (b *RunBuilder) BaseURL(url string) *RunBuilder {
	b.baseURL = url
	return b
}

// Resume reopens the existing run with the given id instead of creating a new
// one. The run's history continues from where it stopped; step monotonicity is
// enforced against the recorded tail.
func (b *RunBuilder) Resume(runID string) *RunBuilder {
	b.resumeID = runID
	return b
}

// Quiet suppresses the announcement lines printed to stdout when the run is
// created and finished.
func (b *RunBuilder) Quiet() *RunBuilder {
	b.quiet = true
	return b
}

// Run is one tracked invocation of a training (or generation) program, with a
// fixed hyperparameter set. All methods are safe for concurrent use.
type Run struct {
	id, name, project string
	dir               string
	config            Config
	createdAt         time.Time
	quiet             bool

	mu        sync.Mutex
	status    RunStatus
	tags      []string
	notes     string
	lastSteps map[string]float64
	lastStep  int
	summary   map[string]any
	history   chan<- Record
	histErr   <-chan error
	syncer    *syncer
}

// Done creates (or resumes) the run: the run directory with its config is
// written, the history writer is started and, when a server is configured, the
// run is announced to it.
func (b *RunBuilder) Done() (*Run, error) {
	baseDir := data.ReplaceTildeInDir(b.baseDir)
	r := &Run{
		name:      b.name,
		project:   b.project,
		config:    b.config,
		quiet:     b.quiet,
		status:    StatusRunning,
		tags:      b.tags,
		notes:     b.notes,
		lastSteps: make(map[string]float64),
		lastStep:  -1,
		summary:   make(map[string]any),
		createdAt: time.Now(),
	}
	if b.config == nil {
		r.config = Config{}
	}

	if b.resumeID != "" {
		if err := r.resume(baseDir, b.resumeID); err != nil {
			return nil, err
		}
	} else if err := r.create(baseDir); err != nil {
		return nil, err
	}
	if r.name == "" {
		r.name = "run-" + r.id
	}

	r.history, r.histErr = runfiles.CreateJSONLWriter[Record](runfiles.HistoryPath(r.dir))
	if err := r.writeState(); err != nil {
		return nil, err
	}

	if b.apiKey != "" && b.baseURL != "" {
		r.syncer = newSyncer(b.baseURL, b.apiKey, r.project, r.id)
		if err := r.syncer.checkHealth(); err != nil {
			klog.Warningf("runlog: tracking server %s unreachable, syncing in background anyway: %v", b.baseURL, err)
		}
		r.syncer.postRun(r.snapshotState(), r.config)
	}

	r.announce()
	return r, nil
}

func (r *Run) create(baseDir string) error {
	// Run ids are random; retry a couple of times on the unlikely collision.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		r.id = runfiles.NewRunID()
		r.dir, err = runfiles.CreateRunDir(baseDir, r.project, r.id)
		if err == nil {
			break
		}
	}
	if err != nil {
		return errors.WithMessagef(err, "creating run directory under %q", baseDir)
	}
	return runfiles.WriteJSON(runfiles.ConfigPath(r.dir), r.config)
}

func (r *Run) resume(baseDir, runID string) error {
	r.id = runID
	r.dir = runfiles.RunDir(baseDir, r.project, runID)
	var state State
	if err := runfiles.ReadJSON(runfiles.StatePath(r.dir), &state); err != nil {
		return errors.WithMessagef(err, "resuming run %q", runID)
	}
	var config Config
	if err := runfiles.ReadJSON(runfiles.ConfigPath(r.dir), &config); err != nil {
		return errors.WithMessagef(err, "resuming run %q", runID)
	}
	r.config = config
	if r.name == "" {
		r.name = state.Name
	}
	r.tags = append(state.Tags, r.tags...)
	if r.notes == "" {
		r.notes = state.Notes
	}
	r.createdAt = state.CreatedAt

	// Seed step monotonicity from the recorded history tail.
	historyPath := runfiles.HistoryPath(r.dir)
	if _, err := os.Stat(historyPath); err == nil {
		err = runfiles.ScanJSONL(historyPath, func(rec Record) error {
			if rec.Step >= r.lastSteps[rec.Metric] {
				r.lastSteps[rec.Metric] = rec.Step
			}
			if int(rec.Step) > r.lastStep {
				r.lastStep = int(rec.Step)
			}
			return nil
		})
		if err != nil {
			return errors.WithMessagef(err, "resuming run %q", runID)
		}
	}
	return nil
}

// ID returns the run id (8 characters, unique within the project).
func (r *Run) ID() string { return r.id }

// Name returns the run name.
func (r *Run) Name() string { return r.name }

// Project returns the project name.
func (r *Run) Project() string { return r.project }

// Dir returns the run directory.
func (r *Run) Dir() string { return r.dir }

// Config returns a copy of the stored hyperparameter set.
func (r *Run) Config() Config {
	c := make(Config, len(r.config))
	for k, v := range r.config {
		c[k] = v
	}
	return c
}

// Status returns the current lifecycle state.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastStep returns the largest step logged so far, or -1 before the first log.
func (r *Run) LastStep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStep
}

// URL returns the address at which the run can be viewed: the tracking server
// page when syncing, otherwise a file:// URL of the run directory.
func (r *Run) URL() string {
	if r.syncer != nil {
		return r.syncer.runURL()
	}
	return "file://" + r.dir
}

// LogMetrics appends one record per entry of m, tagged with the given step.
// Metric kinds are inferred from the names ("loss", "accuracy"); use Log for
// full control. NaN and infinite values are skipped. Steps must be
// non-decreasing per metric.
func (r *Run) LogMetrics(step int, m Metrics) error {
	if len(m) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("LogMetrics")
	for _, name := range xslices.SortedKeys(m) {
		err := r.logLocked(Record{
			Metric: name,
			Kind:   inferKind(name),
			Step:   float64(step),
			Value:  m[name],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Log appends a single fully specified record to the run's history.
func (r *Run) Log(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("Log")
	return r.logLocked(rec)
}

func (r *Run) logLocked(rec Record) error {
	if rec.Metric == "" {
		return errors.New("record has no metric name")
	}
	if last, found := r.lastSteps[rec.Metric]; found && rec.Step < last {
		return errors.Errorf("out-of-order step for metric %q: step %g after step %g",
			rec.Metric, rec.Step, last)
	}
	if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) {
		klog.V(2).Infof("runlog: skipping unplottable value %g for metric %q at step %g",
			rec.Value, rec.Metric, rec.Step)
		return nil
	}
	r.lastSteps[rec.Metric] = rec.Step
	if int(rec.Step) > r.lastStep {
		r.lastStep = int(rec.Step)
	}
	if rec.Kind != KindMedia {
		r.summary[rec.Metric] = rec.Value
	}
	r.history <- rec
	if r.syncer != nil {
		r.syncer.enqueue(rec)
	}
	return nil
}

// inferKind guesses a plotting kind from a metric name, for the convenience
// entry points that don't take one.
func inferKind(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "loss"):
		return KindLoss
	case strings.Contains(lower, "acc"):
		return KindAccuracy
	default:
		return KindGeneric
	}
}

// SetSummary records a final value for the run summary, overriding the
// last-logged value of the metric, if any.
func (r *Run) SetSummary(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("SetSummary")
	r.summary[key] = value
}

// Summary returns a copy of the current summary: the last logged value per
// metric plus everything set with SetSummary.
func (r *Run) Summary() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := make(map[string]any, len(r.summary))
	for k, v := range r.summary {
		s[k] = v
	}
	return s
}

// Finish flushes and closes the run: the history writer is drained, the summary
// written, the state marked finished and, when syncing, the server notified.
// Finish is idempotent; finishing an already failed run is a no-op.
func (r *Run) Finish() error {
	return r.finish(StatusFinished, nil)
}

// FinishWithError closes the run like Finish, but marks it failed and records
// the error message in the run state.
func (r *Run) FinishWithError(cause error) {
	if err := r.finish(StatusFailed, cause); err != nil {
		klog.Errorf("runlog: failed to close run %s: %+v", r.id, err)
	}
}

func (r *Run) finish(status RunStatus, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return nil
	}
	r.status = status

	close(r.history)
	err := <-r.histErr

	if writeErr := runfiles.WriteJSON(runfiles.SummaryPath(r.dir), r.summary); err == nil {
		err = writeErr
	}
	state := r.snapshotStateLocked()
	state.FinishedAt = time.Now()
	if cause != nil {
		state.ExitError = cause.Error()
	}
	if writeErr := runfiles.WriteJSON(runfiles.StatePath(r.dir), state); err == nil {
		err = writeErr
	}

	if r.syncer != nil {
		// Queued records flush before the finish message is posted.
		if dropped := r.syncer.close(); dropped > 0 {
			klog.Warningf("runlog: %d records were dropped while syncing run %s", dropped, r.id)
		}
		r.syncer.postFinish(r.summary, state)
	}
	if !r.quiet {
		fmt.Printf("runlog: run %s %s, %d steps recorded in %s\n",
			r.id, status, r.lastStep+1, r.dir)
	}
	return err
}

// mustBeLive panics if the run is no longer accepting records: logging to a
// finished run is a programming error.
func (r *Run) mustBeLive(op string) {
	if r.status != StatusRunning {
		exceptions.Panicf("runlog.Run.%s called on %s run %s", op, r.status, r.id)
	}
}

func (r *Run) snapshotState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotStateLocked()
}

func (r *Run) snapshotStateLocked() State {
	return State{
		ID:        r.id,
		Name:      r.name,
		Project:   r.project,
		Tags:      r.tags,
		Notes:     r.notes,
		Status:    r.status,
		CreatedAt: r.createdAt,
		UpdatedAt: time.Now(),
		LastStep:  r.lastStep,
	}
}

func (r *Run) writeState() error {
	return runfiles.WriteJSON(runfiles.StatePath(r.dir), r.snapshotState())
}

func (r *Run) announce() {
	klog.V(1).Infof("runlog: run %s/%s id=%s dir=%s", r.project, r.name, r.id, r.dir)
	if r.quiet {
		return
	}
	out := termenv.NewOutput(os.Stdout)
	fmt.Printf("%s: tracking run %s/%s (%s)\n",
		out.String("runlog").Bold(), r.project, r.name, r.id)
	fmt.Printf("runlog: view at %s\n", out.Hyperlink(r.URL(), r.URL()))
}
