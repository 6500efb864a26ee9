package attack

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/adapter"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/orchestrator"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/resilience"
)

// Selection names what a run should cover. Nil Categories or
// Complexities means no filtering on that dimension.
type Selection struct {
	Targets      []string
	Categories   []Category
	Complexities []Complexity
}

// PlannedCall is one concrete attack invocation: a target, a
// definition, and one rendered prompt variant.
type PlannedCall struct {
	Target string
	Attack Definition
	Prompt RenderedPrompt
}

// Outcome pairs a planned call with its generation result. A failed
// dispatch still produces an Outcome whose result carries a failure
// kind, so the batch shape always matches the plan.
type Outcome struct {
	Call   PlannedCall
	Result adapter.GenerationResult
	Err    error
}

// Engine expands selections into concrete calls and dispatches them
// through the orchestrator under a concurrency cap.
type Engine struct {
	orch          *orchestrator.Orchestrator
	catalog       *Catalog
	maxConcurrent int64
	delay         time.Duration
	logger        *slog.Logger
}

func NewEngine(orch *orchestrator.Orchestrator, catalog *Catalog, maxConcurrent int, delay time.Duration) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		orch:          orch,
		catalog:       catalog,
		maxConcurrent: int64(maxConcurrent),
		delay:         delay,
		logger:        slog.Default().With("component", "attack-engine"),
	}
}

// Plan expands a selection into the full ordered list of calls:
// targets in the given order, attacks in catalog order, and prompt
// variants in expansion order. The returned order is the scheduling
// order, and result slices are indexed by it.
func (e *Engine) Plan(sel Selection) []PlannedCall {
	defs := e.catalog.Filter(sel.Categories, sel.Complexities)
	var plan []PlannedCall
	for _, target := range sel.Targets {
		for _, def := range defs {
			for _, rendered := range Expand(def) {
				plan = append(plan, PlannedCall{Target: target, Attack: def, Prompt: rendered})
			}
		}
	}
	return plan
}

// Execute dispatches every planned call and returns one Outcome per
// call, in plan order. A single failing call never aborts the batch;
// it is recorded as a failure marker and dispatch continues. On
// context cancellation the calls not yet scheduled get cancellation
// markers, while in-flight calls are awaited.
func (e *Engine) Execute(ctx context.Context, sel Selection) []Outcome {
	plan := e.Plan(sel)
	return e.ExecutePlan(ctx, plan)
}

func (e *Engine) ExecutePlan(ctx context.Context, plan []PlannedCall) []Outcome {
	outcomes := make([]Outcome, len(plan))
	sem := semaphore.NewWeighted(e.maxConcurrent)
	var wg sync.WaitGroup

	dispatched := 0
dispatch:
	for i, call := range plan {
		if e.delay > 0 {
			timer := time.NewTimer(e.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				break dispatch
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break dispatch
		}
		dispatched = i + 1
		wg.Add(1)
		go func(idx int, call PlannedCall) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[idx] = e.invoke(ctx, call)
		}(i, call)
	}
	wg.Wait()

	for i := dispatched; i < len(plan); i++ {
		outcomes[i] = Outcome{
			Call: plan[i],
			Result: adapter.GenerationResult{
				Backend:     plan[i].Target,
				Prompt:      plan[i].Prompt.Prompt,
				FailureKind: "cancelled",
				CreatedAt:   time.Now().UTC(),
			},
			Err: ctx.Err(),
		}
	}
	return outcomes
}

// invoke runs one planned call. A multi-turn attack sends each
// rendered turn in order, carrying the conversation so far as
// history; the outcome holds the final turn's result, which is what
// evaluation judges. A failing turn aborts the remaining turns of
// that call only.
func (e *Engine) invoke(ctx context.Context, call PlannedCall) Outcome {
	turns := call.Prompt.Turns
	if len(turns) == 0 {
		turns = []string{call.Prompt.Prompt}
	}

	var history []adapter.Message
	var res adapter.GenerationResult
	for i, turn := range turns {
		req := adapter.Request{
			Prompt:       turn,
			SystemPrompt: call.Attack.SystemPrompt,
			History:      history,
		}
		var err error
		res, err = e.orch.Generate(ctx, call.Target, req)
		if err != nil {
			e.logger.Warn("attack call failed",
				"target", call.Target,
				"attack", call.Attack.ID,
				"turn", i+1,
				"kind", failureKind(err),
				"error", err)
			return Outcome{
				Call: call,
				Result: adapter.GenerationResult{
					Backend:     call.Target,
					Prompt:      turn,
					FailureKind: failureKind(err),
					CreatedAt:   time.Now().UTC(),
				},
				Err: err,
			}
		}
		history = append(history,
			adapter.Message{Role: "user", Content: turn},
			adapter.Message{Role: "assistant", Content: res.Text})
	}
	return Outcome{Call: call, Result: res}
}

// failureKind maps a dispatch error to the marker stored on the
// result so downstream evaluation can tell infrastructure failures
// apart from model responses.
func failureKind(err error) string {
	var reqErr *adapter.RequestError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilience.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, resilience.ErrRateLimitWaitTimeout):
		return "rate_limit_wait_timeout"
	case errors.Is(err, adapter.ErrTimeout):
		return "adapter_timeout"
	case errors.Is(err, orchestrator.ErrUnknownTarget):
		return "unknown_target"
	case errors.As(err, &reqErr):
		return "adapter_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
