package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type coordFake struct {
	mu           sync.Mutex
	registered   bool
	deregistered bool
	heartbeats   int
	disabled     map[domain.Phase]bool
	flagReads    map[domain.Phase]int
	progress     []domain.PhaseProgress
}

func newCoordFake() *coordFake {
	return &coordFake{
		disabled:  make(map[domain.Phase]bool),
		flagReads: make(map[domain.Phase]int),
	}
}

func (c *coordFake) Register(_ context.Context, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = true
	return nil
}

func (c *coordFake) Heartbeat(_ context.Context, _ string, _ domain.WorkerStatus, _ domain.Phase, _ string, _ map[string]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats++
	return nil
}

func (c *coordFake) PhaseEnabled(_ context.Context, _ string, phase domain.Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flagReads[phase]++
	return !c.disabled[phase]
}

func (c *coordFake) ReportProgress(_ context.Context, _ string, _ domain.Phase, p domain.PhaseProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, p)
}

func (c *coordFake) Deregister(_ context.Context, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deregistered = true
	return nil
}

func (c *coordFake) disable(phase domain.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[phase] = true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerDrainsPhasesInOrder(t *testing.T) {
	coord := newCoordFake()
	ctx, cancel := context.WithCancel(context.Background())

	var order []domain.Phase
	var mu sync.Mutex
	remaining := map[domain.Phase]int{domain.PhaseSegment: 3, domain.PhaseEnrich: 1}

	phase := func(name domain.Phase) PhaseSpec {
		return PhaseSpec{Name: name, Batch: 2, Run: func(context.Context, int) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			n := remaining[name]
			if n > 2 {
				n = 2
			}
			remaining[name] -= n
			if name == domain.PhaseEnrich && remaining[name] == 0 {
				cancel()
			}
			return n, nil
		}}
	}

	r := NewRunner("w1", "test", coord, []PhaseSpec{phase(domain.PhaseSegment), phase(domain.PhaseEnrich)}, nil,
		Options{HeartbeatInterval: time.Hour, IdleWait: time.Millisecond}, testLogger())
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// Segment drains (2 then 1 then 0) before enrich runs.
	want := []domain.Phase{domain.PhaseSegment, domain.PhaseSegment, domain.PhaseSegment, domain.PhaseEnrich}
	if len(order) != len(want) {
		t.Fatalf("unexpected call order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected call order %v", order)
		}
	}
	if !coord.registered || !coord.deregistered {
		t.Fatalf("expected register + deregister, got %v/%v", coord.registered, coord.deregistered)
	}
}

func TestRunnerSkipsDisabledPhase(t *testing.T) {
	coord := newCoordFake()
	coord.disable(domain.PhaseEnrich)
	ctx, cancel := context.WithCancel(context.Background())

	ran := false
	specs := []PhaseSpec{
		{Name: domain.PhaseEnrich, Batch: 1, Run: func(context.Context, int) (int, error) {
			ran = true
			return 0, nil
		}},
		{Name: domain.PhaseEmbed, Batch: 1, Run: func(context.Context, int) (int, error) {
			cancel()
			return 0, nil
		}},
	}

	r := NewRunner("w1", "test", coord, specs, nil, Options{HeartbeatInterval: time.Hour}, testLogger())
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ran {
		t.Fatalf("disabled phase must not run")
	}
}

func TestRunnerReReadsFlagBetweenSubBatches(t *testing.T) {
	coord := newCoordFake()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	specs := []PhaseSpec{{Name: domain.PhaseEnrich, Batch: 1, Run: func(context.Context, int) (int, error) {
		calls++
		// Operator flips the flag while the phase still has work.
		coord.disable(domain.PhaseEnrich)
		if calls > 1 {
			cancel()
		}
		return 1, nil
	}}}

	r := NewRunner("w1", "test", coord, specs, nil, Options{HeartbeatInterval: time.Hour, IdleWait: time.Millisecond}, testLogger())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the toggle to stop the phase after one sub-batch, got %d", calls)
	}
}

func TestRunnerOncePhaseSinglePass(t *testing.T) {
	coord := newCoordFake()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	specs := []PhaseSpec{{Name: domain.PhaseIngest, Once: true, Run: func(context.Context, int) (int, error) {
		calls++
		cancel()
		return 5, nil
	}}}

	r := NewRunner("w1", "test", coord, specs, nil, Options{HeartbeatInterval: time.Hour}, testLogger())
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single pass, got %d", calls)
	}
}
