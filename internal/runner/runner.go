package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/attack"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/evaluate"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/orchestrator"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/session"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/telemetry"
)

// Runner ties the engine, the evaluation pipeline, and the session
// store together into the run modes the CLI exposes.
type Runner struct {
	orch     *orchestrator.Orchestrator
	engine   *attack.Engine
	pipeline *evaluate.Pipeline
	store    session.Store
	sink     telemetry.Sink
	logger   *slog.Logger

	// OnRecord, when set, is called after each record is appended.
	OnRecord func(rec session.Record)
}

func New(orch *orchestrator.Orchestrator, engine *attack.Engine, pipeline *evaluate.Pipeline, store session.Store, sink telemetry.Sink) *Runner {
	if store == nil {
		store = session.NewMemoryStore()
	}
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Runner{
		orch:     orch,
		engine:   engine,
		pipeline: pipeline,
		store:    store,
		sink:     sink,
		logger:   slog.Default().With("component", "runner"),
	}
}

// Run executes one selection as one session. Unknown targets fail
// before any model call is made. The session is sealed on every exit
// path, including cancellation.
func (r *Runner) Run(ctx context.Context, sel attack.Selection) (*session.Session, error) {
	if len(sel.Targets) == 0 {
		return nil, errors.New("selection names no targets")
	}
	for _, target := range sel.Targets {
		if !r.orch.HasTarget(target) {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrUnknownTarget, target)
		}
	}

	sess := session.New(sel.Targets)
	if err := r.store.CreateSession(ctx, sess.Snapshot()); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	r.logger.Info("session started", "session", sess.ID(), "targets", sel.Targets)

	outcomes := r.engine.Execute(ctx, sel)
	for _, out := range outcomes {
		verdict := r.pipeline.Evaluate(ctx, out.Call.Attack, out.Result)
		rec := session.Record{
			AttackID:   out.Call.Attack.ID,
			AttackName: out.Call.Attack.Name,
			Category:   string(out.Call.Attack.Category),
			Complexity: out.Call.Attack.Complexity.String(),
			Target:     out.Call.Target,
			Prompt:     out.Call.Prompt.Prompt,
			Params:     out.Call.Prompt.Params,
			Generation: out.Result,
			Evaluation: verdict,
		}
		if err := sess.Append(rec); err != nil {
			break
		}
		recs := sess.Records()
		stored := recs[len(recs)-1]
		if err := r.store.AppendRecord(context.WithoutCancel(ctx), sess.ID(), stored); err != nil {
			r.logger.Warn("persist record failed", "session", sess.ID(), "error", err)
		}
		r.sink.RecordAttack(ctx, out.Call.Target, verdict.Classification)
		if r.OnRecord != nil {
			r.OnRecord(stored)
		}
	}

	cancelled := ctx.Err() != nil
	sess.Seal(cancelled)
	if err := r.store.SealSession(context.WithoutCancel(ctx), sess.ID(), sess.Status(), sess.Summary()); err != nil {
		r.logger.Warn("persist seal failed", "session", sess.ID(), "error", err)
	}
	r.sink.RecordSession(ctx, sess.Status())
	sum := sess.Summary()
	r.logger.Info("session sealed",
		"session", sess.ID(),
		"status", sess.Status(),
		"total", sum.Total,
		"refused", sum.Refused,
		"partial", sum.Partial,
		"full_compliance", sum.FullCompliance,
		"failures", sum.Failures)
	return sess, nil
}

// RunAllTargets runs the selection against every registered target in
// a single session.
func (r *Runner) RunAllTargets(ctx context.Context, sel attack.Selection) (*session.Session, error) {
	sel.Targets = r.orch.Targets()
	return r.Run(ctx, sel)
}

// RunBatch executes several selections, each as its own session.
// With parallel set the selections run concurrently; results keep the
// input order either way.
func (r *Runner) RunBatch(ctx context.Context, sels []attack.Selection, parallel bool) ([]*session.Session, error) {
	sessions := make([]*session.Session, len(sels))
	errs := make([]error, len(sels))

	if !parallel {
		for i, sel := range sels {
			sessions[i], errs[i] = r.Run(ctx, sel)
		}
		return sessions, errors.Join(errs...)
	}

	var wg sync.WaitGroup
	for i, sel := range sels {
		wg.Add(1)
		go func(i int, sel attack.Selection) {
			defer wg.Done()
			sessions[i], errs[i] = r.Run(ctx, sel)
		}(i, sel)
	}
	wg.Wait()
	return sessions, errors.Join(errs...)
}
