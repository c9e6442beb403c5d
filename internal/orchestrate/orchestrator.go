// Package orchestrate coordinates the slow consolidation work (summarize,
// promote) around the fast ingest pass: a daily full pipeline, a lightweight
// per-query trigger, a force-run path for the CLI, and a polling consumer
// for the background job queue.
package orchestrate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tactical/internal/entities"
	"tactical/internal/ingest"
	"tactical/internal/logging"
	"tactical/internal/model"
	"tactical/internal/promote"
	"tactical/internal/store"
	"tactical/internal/summarize"
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Options configures pool sizes and the LLM selection used by background
// stages.
type Options struct {
	HomeDir          string
	SummarizeWorkers int
	PromoteWorkers   int
	MinUserMessages  int
	Model            string
	Backend          string
}

func (o Options) withDefaults() Options {
	if o.SummarizeWorkers <= 0 {
		o.SummarizeWorkers = 8
	}
	if o.PromoteWorkers <= 0 {
		o.PromoteWorkers = 4
	}
	if o.MinUserMessages <= 0 {
		o.MinUserMessages = defaultMinUserMessages
	}
	return o
}

// Orchestrator coordinates ingest/summarize/promote across the three
// scheduling surfaces spec'd for the pipeline.
type Orchestrator struct {
	store      *store.Store
	ingestor   *ingest.Ingestor
	summarizer *summarize.Summarizer
	promoter   *promote.Promoter
	opts       Options

	mu               sync.Mutex
	summarizeRunning bool
	promoteRunning   bool
	dailyRunning     bool
}

// New returns an Orchestrator wired to the given components.
func New(s *store.Store, ing *ingest.Ingestor, summ *summarize.Summarizer, prom *promote.Promoter, opts Options) *Orchestrator {
	return &Orchestrator{store: s, ingestor: ing, summarizer: summ, promoter: prom, opts: opts.withDefaults()}
}

// DailyStats summarizes one full-pipeline run.
type DailyStats struct {
	Ingested      int
	Summarized    int
	Promoted      int
	SelfTestOK    bool
	SelfTestError string
}

// AutoIngest runs the fast, synchronous ingest pass. Safe to call before
// every query.
func (o *Orchestrator) AutoIngest() (*ingest.Stats, error) {
	return o.ingestor.Ingest()
}

// tryEnter atomically checks and sets one of the three re-entrancy flags,
// returning false (no-op) if that stage is already running.
func (o *Orchestrator) tryEnter(flag *bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if *flag {
		return false
	}
	*flag = true
	return true
}

func (o *Orchestrator) leave(flag *bool) {
	o.mu.Lock()
	*flag = false
	o.mu.Unlock()
}

// DailyAutoProcess runs ingest -> summarize -> promote -> self-test and
// persists the daily/promote sentinels on completion. It is a no-op
// (returns nil, nil) when a daily run is already in progress, or — unless
// force is set — the daily sentinel shows today's date already ran.
func (o *Orchestrator) DailyAutoProcess(ctx context.Context, force bool) (*DailyStats, error) {
	now := nowFunc()
	if !force && !shouldRunDaily(o.opts.HomeDir, now) {
		return nil, nil
	}
	if !o.tryEnter(&o.dailyRunning) {
		return nil, nil
	}
	defer o.leave(&o.dailyRunning)

	timer := logging.StartTimer(logging.CategoryOrchestrate, "orchestrate.DailyAutoProcess")
	defer timer.Stop()
	log := logging.Get(logging.CategoryOrchestrate)

	stats := &DailyStats{}

	ingestStats, err := o.ingestor.Ingest()
	if err != nil {
		return nil, err
	}
	stats.Ingested = ingestStats.Sessions

	var toSummarize []string
	for _, id := range ingestStats.NewSessionIDs {
		sess, err := o.store.GetSession(id)
		if err != nil || sess == nil {
			continue
		}
		ok, err := passesQualityFilter(o.store, sess, o.opts.MinUserMessages)
		if err != nil || !ok {
			continue
		}
		toSummarize = append(toSummarize, id)
	}
	stats.Summarized += o.summarizeBatch(ctx, toSummarize)

	for _, id := range ingestStats.UpdatedSessionIDs {
		if _, err := o.store.DeleteSummary(id); err != nil && log != nil {
			log.Warn("failed to clear stale summary for %s: %v", id, err)
			continue
		}
		stats.Summarized += o.summarizeBatch(ctx, []string{id})
	}

	backfill, err := o.store.GetUnsummarizedSessions(o.opts.MinUserMessages)
	if err != nil {
		return nil, err
	}
	var backfillIDs []string
	for _, sess := range backfill {
		ok, err := passesQualityFilter(o.store, sess, o.opts.MinUserMessages)
		if err != nil || !ok {
			continue
		}
		backfillIDs = append(backfillIDs, sess.ID)
	}
	stats.Summarized += o.summarizeBatch(ctx, backfillIDs)

	projects, err := o.store.ListDistinctProjects()
	if err != nil {
		return nil, err
	}
	stats.Promoted = o.promoteBatch(ctx, projects)

	selfTestErr := o.selfTest()
	stats.SelfTestOK = selfTestErr == nil
	if selfTestErr != nil {
		stats.SelfTestError = selfTestErr.Error()
		if log != nil {
			log.Warn("self-test failed after daily pipeline: %v", selfTestErr)
		}
	}

	if err := markDailyRun(o.opts.HomeDir, now); err != nil {
		return nil, err
	}
	if err := markPromoteRun(o.opts.HomeDir, now); err != nil {
		return nil, err
	}

	return stats, nil
}

// selfTest runs the non-fatal diagnostic the daily pipeline ends with: a
// stats query and an FTS smoke query. Its error (if any) is surfaced but
// never aborts the pipeline.
func (o *Orchestrator) selfTest() error {
	if _, err := o.store.Stats(); err != nil {
		return err
	}
	if _, err := o.store.SearchFTS("the", 1); err != nil {
		return err
	}
	return nil
}

// summarizeBatch summarizes ids concurrently, bounded by SummarizeWorkers.
// Individual failures are logged and don't stop the rest of the batch.
func (o *Orchestrator) summarizeBatch(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	log := logging.Get(logging.CategorySummarize)

	var mu sync.Mutex
	count := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.SummarizeWorkers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			summary, err := o.summarizer.SummarizeSession(gctx, id, o.opts.Model, o.opts.Backend)
			if err != nil {
				if log != nil {
					log.Warn("summarize failed for session %s: %v", id, err)
				}
				return nil
			}
			if summary != nil {
				mu.Lock()
				count++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return count
}

// promoteBatch runs promotion for every project concurrently, bounded by
// PromoteWorkers. Individual failures are logged and don't stop the batch.
func (o *Orchestrator) promoteBatch(ctx context.Context, projectPaths []string) int {
	if len(projectPaths) == 0 {
		return 0
	}
	log := logging.Get(logging.CategoryPromote)

	var mu sync.Mutex
	count := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.PromoteWorkers)
	for _, path := range projectPaths {
		path := path
		g.Go(func() error {
			res, err := o.promoter.PromoteProjectKnowledge(gctx, path, o.opts.Model, o.opts.Backend)
			if err != nil {
				if log != nil {
					log.Warn("promote failed for project %s: %v", path, err)
				}
				return nil
			}
			if res != nil {
				mu.Lock()
				count += len(res.Entries)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return count
}

// OnQuery runs the lightweight refresh every query operation is preceded by:
// a synchronous ingest, then either kicking off the daily pipeline in the
// background (if its sentinel is stale) or, failing that, background
// summarization of any newly ingested sessions plus a cooldown-gated
// background promote.
func (o *Orchestrator) OnQuery(ctx context.Context) (*ingest.Stats, error) {
	ingestStats, err := o.AutoIngest()
	if err != nil {
		return nil, err
	}

	now := nowFunc()
	if shouldRunDaily(o.opts.HomeDir, now) {
		// DailyAutoProcess takes dailyRunning itself, so it is started on a
		// plain goroutine rather than through runInBackground.
		go func() {
			if _, err := o.DailyAutoProcess(ctx, false); err != nil {
				o.logBackgroundError("daily pipeline", err)
			}
		}()
		return ingestStats, nil
	}

	if len(ingestStats.NewSessionIDs) > 0 {
		ids := append([]string(nil), ingestStats.NewSessionIDs...)
		o.runInBackground(&o.summarizeRunning, func() {
			o.summarizeBatch(ctx, ids)
		})
	}

	if shouldRunPromote(o.opts.HomeDir, now) {
		o.runInBackground(&o.promoteRunning, func() {
			projects, err := o.store.ListDistinctProjects()
			if err != nil {
				o.logBackgroundError("promote project listing", err)
				return
			}
			o.promoteBatch(ctx, projects)
			if err := markPromoteRun(o.opts.HomeDir, nowFunc()); err != nil {
				o.logBackgroundError("promote sentinel write", err)
			}
		})
	}

	return ingestStats, nil
}

// runInBackground starts fn on its own goroutine unless the given
// re-entrancy flag is already held, in which case the attempt is silently
// ignored.
func (o *Orchestrator) runInBackground(flag *bool, fn func()) {
	if !o.tryEnter(flag) {
		return
	}
	go func() {
		defer o.leave(flag)
		fn()
	}()
}

func (o *Orchestrator) logBackgroundError(stage string, err error) {
	if log := logging.Get(logging.CategoryOrchestrate); log != nil {
		log.Warn("%s failed: %v", stage, err)
	}
}

// ForceRun runs the full pipeline immediately, ignoring both the daily and
// promote cooldowns.
func (o *Orchestrator) ForceRun(ctx context.Context) (*DailyStats, error) {
	return o.DailyAutoProcess(ctx, true)
}

// --- Background job-queue consumer (extract_entities | summarize | promote) ---

// RunWorker drains the job queue until it's empty or maxJobs have been
// processed (a nil maxJobs means unbounded). Each job's failure is recorded
// via FinishJob and does not stop the drain.
func (o *Orchestrator) RunWorker(ctx context.Context, maxJobs *int) (int, error) {
	log := logging.Get(logging.CategoryOrchestrate)
	processed := 0
	for maxJobs == nil || processed < *maxJobs {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		job, err := o.store.ClaimJob(nowFunc().Unix())
		if err != nil {
			return processed, err
		}
		if job == nil {
			break
		}

		errMsg := ""
		if err := o.processJob(ctx, job); err != nil {
			errMsg = err.Error()
			if log != nil {
				log.Error("job %d (%s) failed: %v", job.ID, job.JobType, err)
			}
		}
		if err := o.store.FinishJob(job.ID, nowFunc().Unix(), errMsg); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (o *Orchestrator) processJob(ctx context.Context, job *model.Job) error {
	switch job.JobType {
	case "extract_entities":
		_, err := entities.ExtractForSession(o.store, job.TargetID)
		return err
	case "summarize":
		_, err := o.summarizer.SummarizeSession(ctx, job.TargetID, o.opts.Model, o.opts.Backend)
		return err
	case "promote":
		_, err := o.promoter.PromoteProjectKnowledge(ctx, job.TargetID, o.opts.Model, o.opts.Backend)
		return err
	default:
		if log := logging.Get(logging.CategoryOrchestrate); log != nil {
			log.Warn("unknown job type %q for job %d", job.JobType, job.ID)
		}
		return nil
	}
}

// RunBackgroundLoop continuously drains the job queue, sleeping
// pollInterval between empty drains, until ctx is canceled.
func (o *Orchestrator) RunBackgroundLoop(ctx context.Context, pollInterval time.Duration) error {
	if log := logging.Get(logging.CategoryOrchestrate); log != nil {
		log.Info("background worker started")
	}
	maxJobs := 10
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := o.RunWorker(ctx, &maxJobs)
		if err != nil {
			return err
		}
		if processed == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
}
