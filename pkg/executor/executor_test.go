package executor

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/ops"
	"github.com/archspace/archspace/pkg/telemetry"
)

func fixed(s *core.Scope, v float64) *core.Hyperparameter {
	h := core.NewDiscrete(s, []float64{v})
	_ = h.Assign(v)
	return h
}

// diamond builds In -> {scale(2), bias(1)} -> sum -> Out.
func diamond(t *testing.T) (*core.Graph, core.Inputs) {
	t.Helper()
	s := core.NewScope()
	r := ops.DefaultRegistry()

	src, err := r.Build(s, "relu", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	left, _ := r.Build(s, "scale", map[string]*core.Hyperparameter{"factor": fixed(s, 2)})
	right, _ := r.Build(s, "bias", map[string]*core.Hyperparameter{"amount": fixed(s, 1)})
	sum, _ := r.BuildCombiner(s, "sum", 2)

	for _, c := range []struct {
		o core.Output
		i core.Input
	}{
		{src.Out(), left.In()},
		{src.Out(), right.In()},
		{left.Out(), sum.Inputs["In0"]},
		{right.Out(), sum.Inputs["In1"]},
	} {
		if err := s.Connect(c.o, c.i); err != nil {
			t.Fatalf("Expected connect to succeed, got: %v", err)
		}
	}

	g, err := core.Finalize(sum.Outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return g, src.Inputs
}

func TestExecutor_Run(t *testing.T) {
	g, inputs := diamond(t)
	e := New()

	result, err := e.Run(context.Background(), g, map[string]any{"In": ops.Vector{1, -1}}, inputs, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Status != StatusSucceeded {
		t.Errorf("Expected status %s, got %s", StatusSucceeded, result.Status)
	}
	if result.RunID == "" {
		t.Errorf("Expected a run ID")
	}
	if result.Levels != 3 {
		t.Errorf("Expected 3 levels, got %d", result.Levels)
	}
	// relu([1,-1]) = [1,0]; 2x + (x+1) = [4,1]
	got := result.Outputs["Out"].(ops.Vector)
	if !slices.Equal(got, ops.Vector{4, 1}) {
		t.Errorf("Expected [4 1], got %v", got)
	}
	if len(result.Modules) != 4 {
		t.Errorf("Expected 4 module results, got %d", len(result.Modules))
	}
}

func TestExecutor_FeedErrors(t *testing.T) {
	g, inputs := diamond(t)
	e := New()

	_, err := e.Run(context.Background(), g, nil, inputs, nil)
	if core.CodeOf(err) != core.ErrCodeUnresolvedInput {
		t.Errorf("Expected %s for a missing feed, got %v", core.ErrCodeUnresolvedInput, err)
	}

	_, err = e.Run(context.Background(), g, map[string]any{"In": 1.0, "Extra": 2.0}, inputs, nil)
	if core.CodeOf(err) != core.ErrCodeBadValue {
		t.Errorf("Expected %s for an unknown feed, got %v", core.ErrCodeBadValue, err)
	}

	if _, err := e.Run(context.Background(), nil, nil, nil, nil); !core.IsContract(err) {
		t.Errorf("Expected contract error for a nil graph, got %v", err)
	}
}

func TestExecutor_ForwardFailure(t *testing.T) {
	s := core.NewScope()
	boom := errors.New("boom")
	frag, err := ops.SISO(s, "fail", nil, func(map[string]any) (ops.ForwardFunc, error) {
		return func(map[string]any) (map[string]any, error) { return nil, boom }, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	g, err := core.Finalize(frag.Outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m, _ := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	result, err := New(WithMetrics(m)).Run(context.Background(), g, map[string]any{"In": 1.0}, frag.Inputs, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected forward error, got %v", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("Expected status %s, got %s", StatusFailed, result.Status)
	}
	if mr := result.Modules["M.fail-0"]; mr.Error == "" {
		t.Errorf("Expected module error recorded, got %+v", mr)
	}

	var buf bytes.Buffer
	_ = m.WriteText(&buf)
	if !strings.Contains(buf.String(), `archspace_executions_total{status="failed"} 1`) {
		t.Errorf("Expected failed execution counted, got:\n%s", buf.String())
	}
}

func TestExecutor_Cancelled(t *testing.T) {
	g, inputs := diamond(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New().Run(ctx, g, map[string]any{"In": 1.0}, inputs, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if result.Status != StatusCancelled {
		t.Errorf("Expected status %s, got %s", StatusCancelled, result.Status)
	}
	if len(result.Modules) != 0 {
		t.Errorf("Expected no module to run, got %d", len(result.Modules))
	}
}

func TestExecutor_MaxParallel(t *testing.T) {
	s := core.NewScope()
	var running, peak atomic.Int32
	slow := func(map[string]any) (ops.ForwardFunc, error) {
		return func(in map[string]any) (map[string]any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return map[string]any{"Out": in["In"]}, nil
		}, nil
	}

	outputs := make(core.Outputs)
	feed := make(map[string]any)
	inputs := make(core.Inputs)
	for i := 0; i < 6; i++ {
		frag, err := ops.SISO(s, "slow", nil, slow)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		name := "Branch" + string(rune('A'+i))
		outputs[name] = frag.Out()
		inputs[name] = frag.In()
		feed[name] = float64(i)
	}
	g, err := core.Finalize(outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	result, err := New(WithMaxParallel(2)).Run(context.Background(), g, feed, inputs, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent forwards, got %d", peak.Load())
	}
	if result.Outputs["BranchC"] != 2.0 {
		t.Errorf("Expected BranchC = 2, got %v", result.Outputs["BranchC"])
	}
}
