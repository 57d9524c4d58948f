// Package worker implements the per-Worker state machine spec.md §4.2
// defines: own a browser + proxy, fetch, extract, and apply the tiered
// retry/rotation policy on failure. One Worker runs one task at a time and
// is single-threaded with respect to its own browser, per spec.md §5.
//
// Grounded on the retry/rotate-on-error loop shape of
// _examples/other_examples/ScrapeGoat-And-ArchEnemy's internal engine
// scheduler (Scheduler.worker / handleFetchError), adapted from that
// source's per-domain throttle into the harvester's flat per-worker
// inter-request sleep, and composed with this repo's queue.Stage and
// proxy.Pool rather than that source's own queue type.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"harvester/internal/browser"
	"harvester/internal/extract"
	"harvester/internal/logging"
	"harvester/internal/proxy"
	"harvester/internal/queue"
	"harvester/internal/task"
)

// RowSink receives extracted rows as workers produce them. Implementations
// must be safe for concurrent use by every worker in a stage.
type RowSink interface {
	AddListing(extract.ListingRow)
	AddDetail(extract.DetailRow)
}

// Fetcher is the subset of *browser.Fetcher the Worker depends on,
// extracted as an interface so tests can substitute a fake instead of
// driving a real browser.
type Fetcher interface {
	Fetch(ctx context.Context, url, selector string, pageLoadTimeout, elementWait time.Duration) (string, *browser.FetchError)
	ProbeEgressIP(ctx context.Context, timeout time.Duration) (string, error)
	Close() error
}

// LaunchFunc opens a new Fetcher for the given options. Defaults to
// browser.Open; tests inject a fake.
type LaunchFunc func(ctx context.Context, opts browser.LaunchOptions) (Fetcher, error)

func defaultLaunch(ctx context.Context, opts browser.LaunchOptions) (Fetcher, error) {
	return browser.Open(ctx, opts)
}

// RawWriter persists the raw fetched JSON blob for a task.
type RawWriter interface {
	WriteRaw(t task.Task, jsonText string) error
}

// RetryPolicy holds the tiered backoff bounds spec.md §4.2 specifies.
type RetryPolicy struct {
	Attempt1DelayMin, Attempt1DelayMax time.Duration
	Attempt2DelayMin, Attempt2DelayMax time.Duration
}

// DefaultRetryPolicy matches spec.md's literal bounds: 60-180s after
// attempt 1, 600-780s after attempt 2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempt1DelayMin: 60 * time.Second,
		Attempt1DelayMax: 180 * time.Second,
		Attempt2DelayMin: 600 * time.Second,
		Attempt2DelayMax: 780 * time.Second,
	}
}

// Config bundles everything a Worker needs beyond its own ID.
type Config struct {
	ID               int
	Stage            *queue.Stage
	Proxies          *proxy.Pool
	Sink             RowSink
	Raw              RawWriter
	Audit            *logging.AuditSet
	Logs             *logging.Registry
	Site             extract.Schema
	ListSite         extract.ListSchema
	Retry            RetryPolicy
	BinaryPath       string
	Headless         bool
	AuthMode         browser.AuthMode
	ExtensionDir     string
	PayloadSelector  string
	PageLoadTimeout  time.Duration
	ElementWait      time.Duration
	LaunchStagger    time.Duration
	InterRequestMin  time.Duration
	InterRequestMax  time.Duration
	TakeTimeout      time.Duration
	IPEchoTimeout    time.Duration
	HostSystemIP     string // for the proxy-effectiveness probe comparison
	Now              func() time.Time

	// RunID correlates this worker's audit entries with the rest of the
	// process's invocation, per logging.AuditEntry.RunID.
	RunID string

	// ListURL builds the search-result-page URL for a list-page task. Only
	// used when processing task.KindListPage tasks.
	ListURL func(intent task.Intent, segment task.Segment, pageNo int) string

	// Launch opens a new Fetcher; defaults to browser.Open if nil.
	Launch LaunchFunc

	// InitialExclude names proxy indices this worker should avoid on its
	// very first acquisition only, per spec.md §4.5 step 5's freshness
	// bias ("prefer proxies not used as the initial assignment in Stage
	// A"). Ignored on every later rotation.
	InitialExclude map[int]bool

	// OnInitialProxy, if set, is called once with the proxy index this
	// worker acquires on its first launch, letting the Phase Sequencer
	// record Stage A's initial assignments for Stage B's bias above.
	OnInitialProxy func(idx int)
}

// Worker owns one browser + one proxy at a time, pulling tasks from a
// Stage until the context is cancelled.
type Worker struct {
	cfg          Config
	rng          *rand.Rand
	fetcher      Fetcher
	proxyRec     proxy.Record
	hasProxy     bool
	acquiredOnce bool
	uaIdx        int
}

// New constructs a Worker. Call Run to start its loop.
func New(cfg Config) *Worker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Launch == nil {
		cfg.Launch = defaultLaunch
	}
	return &Worker{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.ID))),
	}
}

func (w *Worker) perfLog() *zap.Logger { return w.cfg.Logs.Get(logging.CategoryPerformance) }
func (w *Worker) detectLog() *zap.Logger { return w.cfg.Logs.Get(logging.CategoryDetection) }
func (w *Worker) errLog() *zap.Logger  { return w.cfg.Logs.Get(logging.CategoryErrors) }
func (w *Worker) thread() zap.Field    { return logging.WorkerField(w.cfg.ID) }

// Run is the Worker's main loop: stagger, then repeatedly take a task from
// the Stage and process it, until ctx is cancelled or a Take times out
// while the Stage reports itself quiescent (callers typically run this
// under an errgroup keyed to Stage quiescence rather than relying on this
// loop alone to detect drain).
func (w *Worker) Run(ctx context.Context) error {
	stagger := time.Duration(w.cfg.ID+1) * w.cfg.LaunchStagger
	select {
	case <-time.After(stagger):
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			w.teardown()
			return ctx.Err()
		default:
		}

		t, ok := w.cfg.Stage.Take(w.cfg.TakeTimeout)
		if !ok {
			if w.cfg.Stage.IsQuiescent() {
				w.teardown()
				return nil
			}
			continue
		}
		w.process(ctx, t)
	}
}

func (w *Worker) teardown() {
	if w.fetcher != nil {
		_ = w.fetcher.Close()
		w.fetcher = nil
	}
	if w.hasProxy {
		w.cfg.Proxies.Release(w.proxyRec.Index)
		w.hasProxy = false
	}
}

// process runs one task through fetch -> extract -> success/recovery, per
// spec.md §4.2's four numbered steps.
func (w *Worker) process(ctx context.Context, t task.Task) {
	if w.fetcher == nil {
		if err := w.acquireAndLaunch(ctx); err != nil {
			w.errLog().Error("launch failed, deferring task", w.thread(), zap.Error(err))
			w.cfg.Stage.Defer(t)
			return
		}
	}

	url := t.URL
	if t.Kind == task.KindListPage {
		url = w.listPageURL(t)
	}

	jsonText, fetchErr := w.fetcher.Fetch(ctx, url, w.cfg.PayloadSelector, w.cfg.PageLoadTimeout, w.cfg.ElementWait)
	if fetchErr != nil {
		w.handleFailure(ctx, t, fetchErr)
		return
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		w.handleFailure(ctx, t, &browser.FetchError{Kind: browser.ErrMissingPayload, Message: fmt.Sprintf("json decode: %v", err)})
		return
	}

	if w.cfg.Raw != nil {
		if err := w.cfg.Raw.WriteRaw(t, jsonText); err != nil {
			w.errLog().Warn("raw write failed", w.thread(), zap.Error(err))
		}
	}

	switch t.Kind {
	case task.KindListPage:
		rows := extract.ExtractListings(payload, w.cfg.ListSite, string(t.Intent), string(t.Segment), t.PageNo, w.cfg.Now().Unix())
		for _, r := range rows {
			w.cfg.Sink.AddListing(r)
		}
	default:
		row := extract.Extract(payload, w.cfg.Site)
		row.ListingID = t.ListingID
		w.cfg.Sink.AddDetail(row)
	}

	w.cfg.Stage.MarkDone(t, true)
	if w.cfg.Audit != nil {
		_ = w.cfg.Audit.Successes.Write(logging.AuditEntry{
			Key:             string(t.Key),
			WorkerID:        w.cfg.ID,
			ProxyLabel:      browser.FormatProxyLabel(w.proxyRec),
			LastAttemptUnix: w.cfg.Now().Unix(),
			RunID:           w.cfg.RunID,
		})
	}
	w.perfLog().Info("fetch ok", w.thread(), zap.String("key", string(t.Key)))

	w.interRequestSleep(ctx)
}

// listPageURL resolves a list-page task's search-result URL via the
// Phase-Sequencer-supplied template function.
func (w *Worker) listPageURL(t task.Task) string {
	if w.cfg.ListURL == nil {
		return ""
	}
	return w.cfg.ListURL(t.Intent, t.Segment, t.PageNo)
}

// handleFailure implements spec.md §4.2 step 3: tear down, rotate proxy,
// relaunch with a fresh user-agent, then apply the tiered attempt policy.
func (w *Worker) handleFailure(ctx context.Context, t task.Task, fe *browser.FetchError) {
	w.errLog().Warn("fetch failed", w.thread(), zap.String("kind", string(fe.Kind)), zap.String("msg", fe.Message))

	w.teardown()
	if err := w.acquireAndLaunch(ctx); err != nil {
		w.errLog().Error("relaunch after failure failed", w.thread(), zap.Error(err))
	}

	switch t.Attempt {
	case 1:
		t.Attempt = 2
		delay := randBetween(w.rng, w.cfg.Retry.Attempt1DelayMin, w.cfg.Retry.Attempt1DelayMax)
		w.cfg.Stage.ScheduleRetry(t, delay)
	case 2:
		t.Attempt = 3
		delay := randBetween(w.rng, w.cfg.Retry.Attempt2DelayMin, w.cfg.Retry.Attempt2DelayMax)
		w.cfg.Stage.ScheduleRetry(t, delay)
	default: // attempt 3
		if t.Phase == task.PhaseFinalSweep {
			w.cfg.Stage.MarkFinalExhausted(t)
			if w.cfg.Audit != nil {
				_ = w.cfg.Audit.FailuresExhausted.Write(logging.AuditEntry{
					Key:             string(t.Key),
					Attempts:        t.Attempt,
					Reason:          string(fe.Kind),
					WorkerID:        w.cfg.ID,
					ProxyLabel:      browser.FormatProxyLabel(w.proxyRec),
					LastAttemptUnix: w.cfg.Now().Unix(),
					RunID:           w.cfg.RunID,
				})
			}
			return
		}
		w.cfg.Stage.Defer(t)
		if w.cfg.Audit != nil {
			_ = w.cfg.Audit.Deferred.Write(logging.AuditEntry{
				Key:             string(t.Key),
				Attempts:        t.Attempt,
				Reason:          string(fe.Kind),
				WorkerID:        w.cfg.ID,
				ProxyLabel:      browser.FormatProxyLabel(w.proxyRec),
				LastAttemptUnix: w.cfg.Now().Unix(),
				RunID:           w.cfg.RunID,
			})
		}
	}
}

// acquireAndLaunch rotates to a fresh proxy (not currently in use),
// launches a new browser with a freshly-picked user-agent, and runs the
// IP-echo verification probe, per spec.md §4.2.
func (w *Worker) acquireAndLaunch(ctx context.Context) error {
	firstAcquisition := !w.acquiredOnce
	if w.hasProxy {
		w.cfg.Proxies.Release(w.proxyRec.Index)
		w.hasProxy = false
	}
	excluded := map[int]bool{}
	if !firstAcquisition {
		excluded[w.proxyRec.Index] = true
	} else {
		for idx := range w.cfg.InitialExclude {
			excluded[idx] = true
		}
	}
	// Degrade to the full pool up front if the exclusion set would cover
	// every configured proxy, per spec.md §4.5 step 5 ("degrade to
	// any free proxy if impossible") — checked against pool size
	// rather than discovered by blocking, since Acquire would wait
	// forever on an exclusion set that covers the whole pool.
	if len(excluded) >= w.cfg.Proxies.Size() {
		excluded = map[int]bool{}
	}
	rec, err := w.cfg.Proxies.Acquire(excluded)
	if err != nil {
		return fmt.Errorf("worker: acquire proxy: %w", err)
	}
	w.proxyRec = rec
	w.hasProxy = true
	if firstAcquisition {
		w.acquiredOnce = true
		if w.cfg.OnInitialProxy != nil {
			w.cfg.OnInitialProxy(rec.Index)
		}
	}
	w.uaIdx++

	f, err := w.cfg.Launch(ctx, browser.LaunchOptions{
		BinaryPath:   w.cfg.BinaryPath,
		Headless:     w.cfg.Headless,
		UserAgent:    browser.PickUserAgent(w.uaIdx),
		Proxy:        rec,
		AuthMode:     w.cfg.AuthMode,
		ExtensionDir: w.cfg.ExtensionDir,
	})
	if err != nil {
		return err
	}
	w.fetcher = f

	w.verifyProxy(ctx)
	return nil
}

// verifyProxy runs the IP-echo probe spec.md §4.2 describes: if the
// observed egress IP equals the host's own system IP, the proxy had no
// effect, so rotate once and retry the probe. If it's still ineffective,
// proceed anyway — the site-side response is the ultimate signal.
func (w *Worker) verifyProxy(ctx context.Context) {
	if w.cfg.HostSystemIP == "" || w.cfg.IPEchoTimeout == 0 {
		return
	}
	ip, err := w.fetcher.ProbeEgressIP(ctx, w.cfg.IPEchoTimeout)
	if err != nil {
		w.detectLog().Warn("ip-echo probe failed", w.thread(), zap.Error(err))
		return
	}
	if ip != w.cfg.HostSystemIP {
		w.detectLog().Info("proxy verified effective", w.thread(), zap.String("egress_ip", ip))
		return
	}

	w.detectLog().Warn("proxy ineffective, egress matches host IP; rotating once", w.thread())
	_ = w.fetcher.Close()
	w.cfg.Proxies.Release(w.proxyRec.Index)
	w.hasProxy = false

	excluded := map[int]bool{w.proxyRec.Index: true}
	if w.cfg.Proxies.Size() <= 1 {
		excluded = nil
	}
	rec, err := w.cfg.Proxies.Acquire(excluded)
	if err != nil {
		return
	}
	w.proxyRec = rec
	w.hasProxy = true
	w.uaIdx++
	f, err := w.cfg.Launch(ctx, browser.LaunchOptions{
		BinaryPath: w.cfg.BinaryPath,
		Headless:   w.cfg.Headless,
		UserAgent:  browser.PickUserAgent(w.uaIdx),
		Proxy:      rec,
		AuthMode:   w.cfg.AuthMode,
	})
	if err != nil {
		return
	}
	w.fetcher = f

	ip2, err := w.fetcher.ProbeEgressIP(ctx, w.cfg.IPEchoTimeout)
	if err != nil {
		w.detectLog().Warn("second ip-echo probe failed, proceeding anyway", w.thread(), zap.Error(err))
		return
	}
	if ip2 == w.cfg.HostSystemIP {
		w.detectLog().Warn("proxy still ineffective after rotation; proceeding anyway", w.thread())
	} else {
		w.detectLog().Info("proxy verified effective after rotation", w.thread(), zap.String("egress_ip", ip2))
	}
}

func (w *Worker) interRequestSleep(ctx context.Context) {
	d := randBetween(w.rng, w.cfg.InterRequestMin, w.cfg.InterRequestMax)
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func randBetween(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(rng.Int63n(int64(span)))
}
