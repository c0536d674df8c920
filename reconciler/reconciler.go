package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"devcollab/domain"
)

// Resolver is the part of the task lifecycle the reconciler drives.
type Resolver interface {
	CreatorCredential(ctx context.Context, t domain.Task) (string, error)
	ResolveCompletion(ctx context.Context, taskID string, newStatus domain.Status) (*domain.Task, error)
}

// Config tunes the reconciliation loop.
type Config struct {
	Interval    time.Duration
	CallTimeout time.Duration
	Workers     int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Reconciler periodically advances tasks awaiting completion review from the
// state of their pull requests.
type Reconciler struct {
	store  domain.TaskStore
	tasks  Resolver
	oracle domain.PullRequestOracle
	lease  Lease
	logger *log.Logger
	cfg    Config
	now    func() time.Time

	running atomic.Bool
	wg      *conc.WaitGroup
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLease makes every pass hold l, so that replicas do not overlap.
func WithLease(l Lease) Option {
	return func(r *Reconciler) { r.lease = l }
}

func New(store domain.TaskStore, tasks Resolver, oracle domain.PullRequestOracle, logger *log.Logger, cfg Config, opts ...Option) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Reconciler{
		store:  store,
		tasks:  tasks,
		oracle: oracle,
		logger: logger,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		wg:     conc.NewWaitGroup(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a pass immediately and then on every interval until ctx is
// cancelled. It returns once the in-flight pass has finished.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.WithFields(log.Fields{"interval": r.cfg.Interval, "workers": r.cfg.Workers}).Info("reconciler started")
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.start(ctx)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.start(ctx)
		}
	}
}

func (r *Reconciler) start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("previous reconciliation pass still running, skipping tick")
		return
	}
	r.wg.Go(func() {
		defer r.running.Store(false)
		r.pass(ctx)
	})
}

// Tick runs one pass synchronously unless another pass is in flight. It
// reports whether a pass ran.
func (r *Reconciler) Tick(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("previous reconciliation pass still running, skipping tick")
		return false
	}
	defer r.running.Store(false)
	r.pass(ctx)
	return true
}

func (r *Reconciler) pass(ctx context.Context) {
	if r.lease != nil {
		held, release, ok, err := r.lease.Acquire(ctx)
		if err != nil {
			r.logger.WithError(err).Error("acquire reconciler lease")
			return
		}
		if !ok {
			r.logger.Debug("reconciler lease held elsewhere, skipping pass")
			return
		}
		defer release()
		ctx = held
	}

	metrics, ctx := newPassMetrics(ctx, r.logger)
	candidates, err := r.store.QueryByStatus(ctx, domain.StatusRequestComplete)
	if err != nil {
		r.logger.WithError(err).Error("query tasks awaiting completion")
		metrics.Finish(err)
		return
	}
	metrics.SetCandidates(len(candidates))
	r.logger.WithField("count", len(candidates)).Debug("reconciling tasks")

	p := pool.New().WithMaxGoroutines(r.cfg.Workers)
	for _, t := range candidates {
		p.Go(func() {
			metrics.Record(r.safeReconcile(ctx, t))
		})
	}
	p.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, ErrLeaseLost) {
		r.logger.WithError(cause).Warn("reconciler lease lost, pass cut short")
		metrics.Finish(cause)
		return
	}
	metrics.Finish(nil)
}

// safeReconcile isolates one task: errors and panics are logged and never
// reach the rest of the pass.
func (r *Reconciler) safeReconcile(ctx context.Context, t domain.Task) outcome {
	res := outcomeFailed
	var err error
	var pc panics.Catcher
	pc.Try(func() { res, err = r.reconcile(ctx, t) })
	if rec := pc.Recovered(); rec != nil {
		res, err = outcomeFailed, rec.AsError()
	}
	if err != nil {
		r.logger.WithFields(log.Fields{"task": t.ID, "error": err.Error()}).Error("reconcile task")
		return outcomeFailed
	}
	return res
}

func (r *Reconciler) reconcile(ctx context.Context, t domain.Task) (outcome, error) {
	entry := r.logger.WithField("task", t.ID)
	if t.PullRequestURL == "" {
		entry.Warn("task has no pull request url")
		return outcomeSkipped, nil
	}
	ref, err := domain.ParsePullRequestURL(t.PullRequestURL)
	if err != nil {
		entry.WithError(err).Error("invalid pull request url")
		return outcomeSkipped, nil
	}
	credential, err := r.tasks.CreatorCredential(ctx, t)
	if err != nil {
		if errors.Is(err, domain.ErrMissingCredential) {
			entry.WithError(err).Error("no access token for project creator")
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("resolve credential: %w", err)
	}

	merged, err := r.ask(ctx, func(ctx context.Context) (bool, error) {
		return r.oracle.IsMerged(ctx, ref, credential)
	})
	if err != nil {
		return outcomeFailed, err
	}
	res := outcomeUnchanged
	if merged {
		entry.WithField("pull_request", ref.String()).Info("pull request merged, completing task")
		if done, err := r.resolve(ctx, t.ID, domain.StatusCompleted); !done {
			return outcomeSkipped, err
		}
		res = outcomeCompleted
	} else {
		closed, err := r.ask(ctx, func(ctx context.Context) (bool, error) {
			return r.oracle.IsClosed(ctx, ref, credential)
		})
		if err != nil {
			return outcomeFailed, err
		}
		if closed {
			entry.WithField("pull_request", ref.String()).Info("pull request closed without merge, rejecting task")
			if done, err := r.resolve(ctx, t.ID, domain.StatusRequestRejected); !done {
				return outcomeSkipped, err
			}
			// The task record is gone.
			return outcomeRejected, nil
		}
	}

	now := r.now().UTC()
	if _, err := r.store.Merge(ctx, t.ID, domain.TaskPatch{LastChecked: &now}, ""); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res, nil
		}
		return outcomeFailed, fmt.Errorf("record last checked: %w", err)
	}
	return res, nil
}

// resolve applies a system completion decision. A task that was removed or
// moved on since it was listed is not an error.
func (r *Reconciler) resolve(ctx context.Context, id string, to domain.Status) (bool, error) {
	_, err := r.tasks.ResolveCompletion(ctx, id, to)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition):
		r.logger.WithFields(log.Fields{"task": id, "error": err.Error()}).Info("task changed during reconciliation")
		return false, nil
	default:
		return false, fmt.Errorf("resolve completion: %w", err)
	}
}

// ask bounds a single oracle call by the configured timeout.
func (r *Reconciler) ask(ctx context.Context, call func(context.Context) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return call(ctx)
}
