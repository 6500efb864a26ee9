package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/adapter"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/resilience"
)

type stubAdapter struct {
	healthy bool
	text    string
}

func (s *stubAdapter) Initialize(context.Context) error { return nil }
func (s *stubAdapter) HealthCheck(context.Context) bool { return s.healthy }
func (s *stubAdapter) Close() error                     { return nil }

func (s *stubAdapter) Generate(context.Context, adapter.Request) (adapter.GenerationResult, error) {
	return adapter.GenerationResult{Text: s.text}, nil
}

func (s *stubAdapter) GenerateStream(context.Context, adapter.Request) (<-chan string, error) {
	return nil, adapter.ErrStreamingUnsupported
}

func stubClient(name string, ad adapter.Adapter) *resilience.Client {
	return resilience.NewClient(config.BackendConfig{
		Name: name, Kind: "stub",
		RateLimitRPM: 60000, RateWaitSec: 5,
		PoolSize: 2, PoolWaitSec: 5, TimeoutSec: 5,
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 5, TimeoutSec: 60},
	}, ad, nil)
}

func TestGenerateUnknownTarget(t *testing.T) {
	orch := New(2)
	_, err := orch.Generate(context.Background(), "ghost", adapter.Request{Prompt: "hi"})
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestAddTargetRejectsDuplicate(t *testing.T) {
	orch := New(2)
	if err := orch.AddTarget("a", stubClient("a", &stubAdapter{healthy: true})); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := orch.AddTarget("a", stubClient("a", &stubAdapter{healthy: true})); err == nil {
		t.Fatalf("duplicate target accepted")
	}
}

func TestGenerateRoutesByName(t *testing.T) {
	orch := New(2)
	_ = orch.AddTarget("a", stubClient("a", &stubAdapter{healthy: true, text: "from-a"}))
	_ = orch.AddTarget("b", stubClient("b", &stubAdapter{healthy: true, text: "from-b"}))

	res, err := orch.Generate(context.Background(), "b", adapter.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if res.Text != "from-b" {
		t.Fatalf("routed to wrong backend: %q", res.Text)
	}
}

func TestHealthCheckAllReportsPerTarget(t *testing.T) {
	orch := New(2)
	_ = orch.AddTarget("up", stubClient("up", &stubAdapter{healthy: true}))
	_ = orch.AddTarget("down", stubClient("down", &stubAdapter{healthy: false}))

	health := orch.HealthCheckAll(context.Background())
	if len(health) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(health))
	}
	if !health["up"] || health["down"] {
		t.Fatalf("unexpected health map: %v", health)
	}
}

func TestRemoveTarget(t *testing.T) {
	orch := New(2)
	_ = orch.AddTarget("a", stubClient("a", &stubAdapter{healthy: true}))
	orch.RemoveTarget("a")
	if orch.HasTarget("a") {
		t.Fatalf("target still present after removal")
	}
}
