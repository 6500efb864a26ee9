package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/adapter"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/resilience"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/telemetry"
)

// ErrUnknownTarget is returned for a backend name that was never
// registered. Fatal at setup; a run never starts against it.
var ErrUnknownTarget = errors.New("unknown target")

// Orchestrator owns one resilient client per configured backend and
// presents a uniform generate/health surface keyed by backend name.
// Targets are added at session setup and removed at teardown only.
type Orchestrator struct {
	mu         sync.RWMutex
	clients    map[string]*resilience.Client
	judge      string
	healthConc int64
}

func New(healthCheckConcurrency int) *Orchestrator {
	if healthCheckConcurrency <= 0 {
		healthCheckConcurrency = 4
	}
	return &Orchestrator{
		clients:    make(map[string]*resilience.Client),
		healthConc: int64(healthCheckConcurrency),
	}
}

// Build constructs an orchestrator from the run configuration: every
// target plus the judge backend (when configured) gets an adapter from
// the registry, is initialized, and is wrapped in a resilient client.
func Build(ctx context.Context, cfg config.Config, reg *adapter.Registry, sink telemetry.Sink) (*Orchestrator, error) {
	orch := New(cfg.Execution.HealthCheckConcurrency)
	backends := make([]config.BackendConfig, 0, len(cfg.Targets)+1)
	backends = append(backends, cfg.Targets...)
	if cfg.Judge != nil {
		backends = append(backends, *cfg.Judge)
	}
	for _, bc := range backends {
		ad, err := reg.Create(bc)
		if err != nil {
			return nil, err
		}
		if err := ad.Initialize(ctx); err != nil {
			return nil, err
		}
		if err := orch.AddTarget(bc.Name, resilience.NewClient(bc, ad, sink)); err != nil {
			return nil, err
		}
		slog.Info("registered backend", "name", bc.Name, "kind", bc.Kind, "model", bc.ModelName)
	}
	if cfg.Judge != nil {
		orch.judge = cfg.Judge.Name
	}
	return orch, nil
}

// JudgeTarget returns the judge backend name, empty when none is
// configured. The judge is routable like any target but excluded from
// Targets so attack runs never point at it.
func (o *Orchestrator) JudgeTarget() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.judge
}

func (o *Orchestrator) AddTarget(name string, client *resilience.Client) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.clients[name]; exists {
		return fmt.Errorf("target %q already registered", name)
	}
	o.clients[name] = client
	return nil
}

func (o *Orchestrator) RemoveTarget(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.clients, name)
}

// Targets returns the registered backend names, sorted.
func (o *Orchestrator) Targets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.clients))
	for name := range o.clients {
		if name == o.judge {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTarget reports whether a backend name is registered.
func (o *Orchestrator) HasTarget(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.clients[name]
	return ok
}

func (o *Orchestrator) client(name string) (*resilience.Client, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	client, ok := o.clients[name]
	if !ok {
		return nil, fmt.Errorf("backend %q: %w", name, ErrUnknownTarget)
	}
	return client, nil
}

// Generate routes one generation request to the named backend.
func (o *Orchestrator) Generate(ctx context.Context, target string, req adapter.Request) (adapter.GenerationResult, error) {
	client, err := o.client(target)
	if err != nil {
		return adapter.GenerationResult{}, err
	}
	return client.Generate(ctx, req)
}

// GenerateStream routes a streaming request to the named backend.
// adapter.ErrStreamingUnsupported passes through untouched.
func (o *Orchestrator) GenerateStream(ctx context.Context, target string, req adapter.Request) (<-chan string, error) {
	client, err := o.client(target)
	if err != nil {
		return nil, err
	}
	return client.GenerateStream(ctx, req)
}

// HealthCheckAll probes every registered backend with bounded
// concurrency. A backend that fails or panics its probe is reported
// unhealthy; nothing propagates.
func (o *Orchestrator) HealthCheckAll(ctx context.Context) map[string]bool {
	o.mu.RLock()
	clients := make(map[string]*resilience.Client, len(o.clients))
	for name, client := range o.clients {
		clients[name] = client
	}
	o.mu.RUnlock()

	sem := semaphore.NewWeighted(o.healthConc)
	var wg sync.WaitGroup
	var resMu sync.Mutex
	results := make(map[string]bool, len(clients))

	for name, client := range clients {
		if err := sem.Acquire(ctx, 1); err != nil {
			resMu.Lock()
			results[name] = false
			resMu.Unlock()
			continue
		}
		wg.Add(1)
		go func(name string, client *resilience.Client) {
			defer wg.Done()
			defer sem.Release(1)
			healthy := func() (ok bool) {
				defer func() {
					if recover() != nil {
						ok = false
					}
				}()
				return client.HealthCheck(ctx)
			}()
			resMu.Lock()
			results[name] = healthy
			resMu.Unlock()
		}(name, client)
	}
	wg.Wait()
	return results
}

// Close shuts down every adapter. Errors are aggregated, not fatal.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for name, client := range o.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	clear(o.clients)
	return errors.Join(errs...)
}
