package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"harvester/internal/browser"
	"harvester/internal/config"
	"harvester/internal/extract"
	"harvester/internal/logging"
	"harvester/internal/output"
	"harvester/internal/proxy"
	"harvester/internal/queue"
	"harvester/internal/status"
	"harvester/internal/task"
	"harvester/internal/worker"
)

// Sequencer runs the two-stage harvest spec.md §4.5 describes: Stage A
// (ADLIST) to quiescence, assemble + write its CSV, seed Stage B (ADVIEW)
// from Stage A's output, run it to quiescence, assemble + left-join +
// write the final CSV.
type Sequencer struct {
	cfg      *config.Config
	site     extract.Schema
	listSite extract.ListSchema

	// RunID correlates every audit line this run's workers write, per
	// logging.AuditEntry.RunID. Set it before calling Run.
	RunID string

	adlistDir  string
	adviewDir  string
	logsDir    string
	filePrefix string
	ts         time.Time

	proxies *proxy.Pool
	logs    *logging.Registry

	// hostSystemIP is this machine's own unproxied egress IP, detected
	// once at startup for the Worker's proxy-effectiveness probe
	// (spec.md §4.2). Left empty (verification skipped) if detection
	// fails — matching the spec's "proceed anyway" posture for a signal
	// that's advisory, not load-bearing.
	hostSystemIP string

	// Notify is the best-effort external status sink (Component §2 Status
	// Reporter). A disabled/nil-backed Reporter is a no-op, so it's always
	// safe to call; set it via WithNotify before calling Run.
	notify      *status.Reporter
	statusMsgID string

	quiescencePoll time.Duration
}

// WithNotify attaches a status Reporter for phase-boundary progress
// notifications. Chainable; returns the same Sequencer.
func (s *Sequencer) WithNotify(r *status.Reporter) *Sequencer {
	s.notify = r
	return s
}

// Result holds the row counts and CSV paths a completed run produced.
type Result struct {
	ADListCSVPath string
	ADViewCSVPath string
	ADListRows    int
	ADViewRows    int
}

// New builds a Sequencer rooted at outputRoot/{adlist,adview,logs}_<ts>,
// per spec.md §6's timestamped-directory output layout.
func New(cfg *config.Config, outputRoot string, ts time.Time) (*Sequencer, error) {
	site, listSite, err := schemaFor(cfg.Site)
	if err != nil {
		return nil, err
	}

	logsDir := logging.TimestampedDir(outputRoot, "logs", ts)
	logs, err := logging.NewRegistry(logsDir)
	if err != nil {
		return nil, fmt.Errorf("phase: logging registry: %w", err)
	}

	records := make([]proxy.Record, 0, len(cfg.Proxies))
	for i, p := range cfg.Proxies {
		records = append(records, proxy.Record{Index: i, Host: p.Host, Port: p.Port, Username: p.Username, Password: p.Password})
	}

	hostIP, err := browser.DetectHostIP(context.Background(), 5*time.Second)
	if err != nil {
		hostIP = "" // verification step degrades to "proceed anyway" per spec.md §4.2
	}

	return &Sequencer{
		cfg:            cfg,
		site:           site,
		listSite:       listSite,
		hostSystemIP:   hostIP,
		adlistDir:      logging.TimestampedDir(outputRoot, "adlist", ts),
		adviewDir:      logging.TimestampedDir(outputRoot, "adview", ts),
		logsDir:        logsDir,
		filePrefix:     filePrefixFor(cfg.Site),
		ts:             ts,
		proxies:        proxy.NewPool(records),
		logs:           logs,
		notify:         status.New("", false, nil), // no-op until WithNotify overrides it
		quiescencePoll: time.Second, // spec.md §5: "Phase Sequencer polls this at 1 Hz"
	}, nil
}

func schemaFor(site string) (extract.Schema, extract.ListSchema, error) {
	return extract.SchemaFor(site)
}

// filePrefixFor matches spec.md §6's per-site CSV filename prefix
// (PG_adlist_<ts>.csv for the primary site).
func filePrefixFor(site string) string {
	switch site {
	case "iproperty":
		return "IP"
	default:
		return "PG"
	}
}

// Close releases the Sequencer's long-lived resources (proxy pool, log
// files). Call once after Run returns.
func (s *Sequencer) Close() error {
	s.proxies.Close()
	return s.logs.Close()
}

// Run executes both stages in order and returns the final row counts and
// CSV paths. Every notification is best-effort per spec.md §6: a disabled
// or unreachable sink never fails the run.
func (s *Sequencer) Run(ctx context.Context) (*Result, error) {
	s.statusMsgID = s.notify.Post(ctx, fmt.Sprintf("harvester run %s: starting ADLIST phase", s.RunID))

	listingRows, initialProxies, err := s.runStageA(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase: stage A: %w", err)
	}
	listingRows = dedupeListings(listingRows)

	adlistPath := filepath.Join(s.adlistDir, fmt.Sprintf("%s_adlist_%d.csv", s.filePrefix, s.ts.Unix()))
	if err := output.WriteADListCSV(adlistPath, listingRows); err != nil {
		return nil, fmt.Errorf("phase: write adlist csv: %w", err)
	}
	s.notify.Patch(ctx, s.statusMsgID, fmt.Sprintf("harvester run %s: ADLIST done (%d rows), starting ADVIEW phase", s.RunID, len(listingRows)))
	if f, err := os.Open(adlistPath); err == nil {
		s.notify.UploadFile(ctx, "file", filepath.Base(adlistPath), f)
		f.Close()
	}

	detailRows, err := s.runStageB(ctx, listingRows, initialProxies)
	if err != nil {
		return nil, fmt.Errorf("phase: stage B: %w", err)
	}

	index := output.BuildListingIndex(listingRows)
	adviewPath := filepath.Join(s.adviewDir, fmt.Sprintf("%s_adview_%d.csv", s.filePrefix, s.ts.Unix()))
	if err := output.WriteADViewCSV(adviewPath, detailRows, index, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("phase: write adview csv: %w", err)
	}
	s.notify.Patch(ctx, s.statusMsgID, fmt.Sprintf("harvester run %s: complete (%d adlist rows, %d adview rows)", s.RunID, len(listingRows), len(detailRows)))
	if f, err := os.Open(adviewPath); err == nil {
		s.notify.UploadFile(ctx, "file", filepath.Base(adviewPath), f)
		f.Close()
	}

	return &Result{
		ADListCSVPath: adlistPath,
		ADViewCSVPath: adviewPath,
		ADListRows:    len(listingRows),
		ADViewRows:    len(detailRows),
	}, nil
}

// runStageA builds and seeds Stage A with one list-page task per
// (intent, segment, page_no), runs it to quiescence, drains deferred tasks
// into a final sweep and waits again, per spec.md §4.5 steps 1-2. It
// returns the accumulated listing rows plus the set of proxy indices its
// workers picked up as their first assignment, for Stage B's freshness
// bias (step 5).
func (s *Sequencer) runStageA(ctx context.Context) ([]extract.ListingRow, map[int]bool, error) {
	stage := queue.NewStage()
	defer stage.Stop()

	audit, err := logging.NewAuditSet(s.adlistDir)
	if err != nil {
		return nil, nil, err
	}
	defer audit.Close()

	for _, cat := range s.cfg.Categories {
		for page := 1; page <= cat.MaxPages; page++ {
			stage.Submit(task.NewListPageTask(task.Intent(cat.Intent), task.Segment(cat.Segment), page))
		}
	}

	buf := newRowBuffer()
	initial := newProxyIndexSet()
	if err := s.runWorkers(ctx, stage, s.cfg.ADListWorkers, buf, s.adlistDir, audit, nil, initial.record); err != nil {
		return nil, nil, err
	}

	if n := stage.DrainDeferredIntoReady(); n > 0 {
		if err := s.runWorkers(ctx, stage, s.cfg.ADListWorkers, buf, s.adlistDir, audit, nil, initial.record); err != nil {
			return nil, nil, err
		}
	}

	return buf.snapshotListings(), initial.snapshot(), nil
}

// runStageB builds Stage B from Stage A's deduplicated output (one
// detail-page task per distinct URL, carrying intent/segment/listing_id)
// and runs it identically to Stage A, biasing each worker's very first
// proxy acquisition away from stageAInitial per spec.md §4.5 step 5.
func (s *Sequencer) runStageB(ctx context.Context, listingRows []extract.ListingRow, stageAInitial map[int]bool) ([]extract.DetailRow, error) {
	stage := queue.NewStage()
	defer stage.Stop()

	audit, err := logging.NewAuditSet(s.adviewDir)
	if err != nil {
		return nil, err
	}
	defer audit.Close()

	for _, r := range listingRows {
		stage.Submit(task.NewDetailPageTask(r.URL, task.Intent(r.Intent), task.Segment(r.Segment), r.ListingID))
	}

	buf := newRowBuffer()
	if err := s.runWorkers(ctx, stage, s.cfg.ADViewWorkers, buf, s.adviewDir, audit, stageAInitial, nil); err != nil {
		return nil, err
	}

	if n := stage.DrainDeferredIntoReady(); n > 0 {
		if err := s.runWorkers(ctx, stage, s.cfg.ADViewWorkers, buf, s.adviewDir, audit, stageAInitial, nil); err != nil {
			return nil, err
		}
	}

	return buf.snapshotDetails(), nil
}

// runWorkers launches n workers against stage and blocks until the stage
// reaches quiescence, at which point it cancels their shared context so
// Run returns. onInitialProxy, when non-nil, is invoked once per worker
// with the proxy index it first acquires.
func (s *Sequencer) runWorkers(ctx context.Context, stage *queue.Stage, n int, sink worker.RowSink, stageDir string, audit *logging.AuditSet, excludeInitial map[int]bool, onInitialProxy func(int)) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(runCtx)
	raw := dirRawWriter{dir: stageDir}

	for i := 0; i < n; i++ {
		id := i
		eg.Go(func() error {
			w := worker.New(worker.Config{
				ID:              id,
				Stage:           stage,
				Proxies:         s.proxies,
				Sink:            sink,
				Raw:             raw,
				Audit:           audit,
				Logs:            s.logs,
				Site:            s.site,
				ListSite:        s.listSite,
				Retry:           retryPolicyFrom(s.cfg.Retry),
				BinaryPath:      browserBinaryPath(s.cfg.Browser),
				Headless:        browserHeadless(s.cfg.Browser),
				AuthMode:        authModeFrom(s.cfg.ProxyAuthMode),
				ExtensionDir:    s.cfg.ProxyExtensionDir,
				PayloadSelector: browserSelector(s.cfg.Browser),
				PageLoadTimeout: time.Duration(browserPageLoad(s.cfg.Browser)) * time.Second,
				ElementWait:     time.Duration(browserElementWait(s.cfg.Browser)) * time.Second,
				LaunchStagger:   time.Duration(s.cfg.LaunchStaggerSeconds) * time.Second,
				InterRequestMin: durationSeconds(s.cfg.InterRequestSleepMinSeconds),
				InterRequestMax: durationSeconds(s.cfg.InterRequestSleepMaxSeconds),
				TakeTimeout:     500 * time.Millisecond,
				HostSystemIP:    s.hostSystemIP,
				IPEchoTimeout:   8 * time.Second,
				ListURL: func(intent task.Intent, segment task.Segment, pageNo int) string {
					return s.listURLFor(intent, segment, pageNo)
				},
				InitialExclude: excludeInitial,
				OnInitialProxy: onInitialProxy,
				RunID:          s.RunID,
			})
			err := w.Run(egCtx)
			if err == context.Canceled || err == context.DeadlineExceeded {
				return nil
			}
			return err
		})
	}

	stopWatch := make(chan struct{})
	go func() {
		defer close(stopWatch)
		s.waitQuiescent(runCtx, stage)
		cancel()
	}()

	stopStatus := make(chan struct{})
	go func() {
		defer close(stopStatus)
		s.reportProgress(runCtx, stage)
	}()

	err := eg.Wait()
	<-stopWatch
	<-stopStatus
	return err
}

// reportProgress periodically patches the live status message with the
// stage's current counters, until ctx is cancelled. Best-effort, per
// spec.md §6 — a disabled Reporter is a no-op.
func (s *Sequencer) reportProgress(ctx context.Context, stage *queue.Stage) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := stage.Snapshot()
			s.notify.Patch(ctx, s.statusMsgID, fmt.Sprintf(
				"harvester run %s: total=%d completed=%d ok=%d retried=%d deferred=%d final_exhausted=%d",
				s.RunID, m.Total, m.Completed, m.OK, m.Retried, m.Deferred, m.FinalExhausted))
		}
	}
}

// listURLFor resolves the configured category's search-URL base for a
// (intent, segment) pair and pages it, or "" if no category matches
// (shouldn't happen — every list-page task is seeded from a configured
// category).
func (s *Sequencer) listURLFor(intent task.Intent, segment task.Segment, pageNo int) string {
	for _, cat := range s.cfg.Categories {
		if cat.Intent == string(intent) && cat.Segment == string(segment) {
			return BuildListURL(cat.SearchURLBase, pageNo)
		}
	}
	return ""
}

// waitQuiescent polls Stage.IsQuiescent at the 1 Hz rate spec.md §5
// specifies, returning as soon as it's true or ctx is done.
func (s *Sequencer) waitQuiescent(ctx context.Context, stage *queue.Stage) {
	if stage.IsQuiescent() {
		return
	}
	ticker := time.NewTicker(s.quiescencePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stage.IsQuiescent() {
				return
			}
		}
	}
}

// proxyIndexSet collects proxy indices workers report as their initial
// assignment, safe for concurrent use by every worker goroutine.
type proxyIndexSet struct {
	mu  sync.Mutex
	set map[int]bool
}

func newProxyIndexSet() *proxyIndexSet {
	return &proxyIndexSet{set: make(map[int]bool)}
}

func (p *proxyIndexSet) record(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set[idx] = true
}

func (p *proxyIndexSet) snapshot() map[int]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]bool, len(p.set))
	for k := range p.set {
		out[k] = true
	}
	return out
}
