package generator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"nanochatd/internal/backend"
	"nanochatd/internal/sampler"
)

// fakeRuntime pushes its pieces through onPiece like the llama runtime.
type fakeRuntime struct {
	pieces   []string
	failWith error
	produced atomic.Int32
	returned chan struct{}
	prompt   string
	opts     backend.StreamOptions
}

func newFakeRuntime(p ...string) *fakeRuntime {
	return &fakeRuntime{pieces: p, returned: make(chan struct{})}
}

func (f *fakeRuntime) VocabSize() int { return 32 }
func (f *fakeRuntime) Close() error   { return nil }

func (f *fakeRuntime) PieceID(p string) int {
	for i, s := range f.pieces {
		if s == p {
			return i
		}
	}
	return -1
}

func (f *fakeRuntime) Stream(ctx context.Context, prompt string, opts backend.StreamOptions, onPiece func(string) error) error {
	defer close(f.returned)
	f.prompt, f.opts = prompt, opts
	for _, p := range f.pieces {
		f.produced.Add(1)
		if err := onPiece(p); err != nil {
			return err
		}
	}
	return f.failWith
}

func TestStreamedRunsToRuntimeEnd(t *testing.T) {
	rt := newFakeRuntime("Hel", "lo", "!")
	g := newGen(t, rt, -1, nil)
	r := g.Start(context.Background(), hi, sampler.Policy{Temperature: 0.5, MaxTokens: 10, TopK: 4, Stop: []string{"zz"}})
	steps := collect(r)
	if len(steps) != 4 || steps[0].Text != "Hel" || steps[1].TokenID != 1 {
		t.Fatalf("steps=%+v", steps)
	}
	if last := steps[3]; last.Index != 4 || last.TokenID != -1 || last.Text != "" {
		t.Fatalf("eos step=%+v", last)
	}
	if r.State() != StateStoppedEOS || r.Text() != "Hello!" {
		t.Fatalf("state=%s text=%q", r.State(), r.Text())
	}
	if _, c := r.Usage(); c != 4 {
		t.Fatalf("completion=%d", c)
	}
	if rt.prompt != "User: Hi\nAssistant: " {
		t.Fatalf("prompt=%q", rt.prompt)
	}
	if rt.opts.MaxTokens != 10 || rt.opts.TopK != 4 || len(rt.opts.Stop) != 0 {
		t.Fatalf("opts=%+v", rt.opts)
	}
}

func TestStreamedEndFlushesHeldText(t *testing.T) {
	rt := newFakeRuntime("Hello", "<")
	r := newGen(t, rt, 7, nil).Start(context.Background(), hi, sampler.Policy{Temperature: 1, MaxTokens: 10, Stop: []string{"<stop>"}})
	steps := collect(r)
	if len(steps) != 3 || steps[1].Text != "" || steps[2].Text != "<" || steps[2].TokenID != 7 {
		t.Fatalf("steps=%+v", steps)
	}
	if joined(steps) != r.Text() || r.State() != StateStoppedEOS {
		t.Fatalf("text=%q state=%s", r.Text(), r.State())
	}
}

func TestStreamedPullsOnePieceAtATime(t *testing.T) {
	rt := newFakeRuntime("a", "b", "c", "d", "e")
	r := newGen(t, rt, -1, nil).Start(context.Background(), hi, sampler.Policy{Temperature: 1, MaxTokens: 10})
	for i := 1; i <= 3; i++ {
		if !r.Next() {
			t.Fatalf("step %d missing", i)
		}
		time.Sleep(5 * time.Millisecond)
		if got := rt.produced.Load(); got > int32(i) {
			t.Fatalf("runtime ran ahead: produced %d after %d pulls", got, i)
		}
	}
	r.Close()
	select {
	case <-rt.returned:
	case <-time.After(time.Second):
		t.Fatalf("runtime not released after Close")
	}
}

func TestStreamedMaxTokensStopsRuntime(t *testing.T) {
	rt := newFakeRuntime("a", "b", "c", "d")
	r := newGen(t, rt, -1, nil).Start(context.Background(), hi, sampler.Policy{Temperature: 1, MaxTokens: 2})
	if steps := collect(r); len(steps) != 2 || r.State() != StateStoppedMaxLen {
		t.Fatalf("steps=%d state=%s", len(steps), r.State())
	}
	select {
	case <-rt.returned:
	case <-time.After(time.Second):
		t.Fatalf("runtime still running after MAXLEN")
	}
}

func TestStreamedStopString(t *testing.T) {
	rt := newFakeRuntime("Sure", ".\nUser:", " more")
	r := newGen(t, rt, -1, nil).Start(context.Background(), hi, sampler.Policy{Temperature: 1, MaxTokens: 10, Stop: []string{"\nUser:"}})
	steps := collect(r)
	if len(steps) != 2 || steps[1].Text != "." || r.State() != StateStoppedStop {
		t.Fatalf("steps=%+v state=%s", steps, r.State())
	}
}

func TestStreamedRuntimeError(t *testing.T) {
	rt := newFakeRuntime("x")
	rt.failWith = errors.New("kv cache full")
	r := newGen(t, rt, -1, nil).Start(context.Background(), hi, sampler.Policy{Temperature: 1, MaxTokens: 10})
	steps := collect(r)
	if len(steps) != 1 || r.State() != StateFailed || !backend.IsGenerationError(r.Err()) {
		t.Fatalf("steps=%d state=%s err=%v", len(steps), r.State(), r.Err())
	}
}

func TestStreamedCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt := newFakeRuntime("a", "b", "c", "d")
	r := newGen(t, rt, -1, nil).Start(ctx, hi, sampler.Policy{Temperature: 1, MaxTokens: 10})
	if !r.Next() || !r.Next() {
		t.Fatalf("expected two steps")
	}
	cancel()
	if r.Next() {
		t.Fatalf("step after cancel")
	}
	if r.State() != StateFailed || !errors.Is(r.Err(), context.Canceled) {
		t.Fatalf("state=%s err=%v", r.State(), r.Err())
	}
	select {
	case <-rt.returned:
	case <-time.After(time.Second):
		t.Fatalf("runtime not released after cancel")
	}
}

// serialRuntime admits one Stream at a time through an engine lock.
type serialRuntime struct {
	*fakeRuntime
	engine  *backend.EngineLock
	entered atomic.Int32
}

func (s *serialRuntime) Serial() {}

func (s *serialRuntime) Stream(ctx context.Context, prompt string, opts backend.StreamOptions, onPiece func(string) error) error {
	if err := s.engine.Lock(ctx); err != nil {
		return err
	}
	defer s.engine.Unlock()
	s.entered.Add(1)
	for _, p := range s.pieces {
		if err := onPiece(p); err != nil {
			return err
		}
	}
	return nil
}

func TestStreamedCancelWhileEngineHeld(t *testing.T) {
	rt := &serialRuntime{fakeRuntime: newFakeRuntime("a", "b", "c"), engine: backend.NewEngineLock()}
	pool := NewPool(1)
	g, err := New(Config{Model: rt, EOS: -1, Pool: pool, NewSampler: greedy})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	holder := g.Start(context.Background(), hi, sampler.Policy{Temperature: 1, MaxTokens: 10})
	if !holder.Next() {
		t.Fatalf("holder produced no step")
	}

	ctx, cancel := context.WithCancel(context.Background())
	waiter := g.Start(ctx, hi, sampler.Policy{Temperature: 1, MaxTokens: 10})
	next := make(chan bool)
	go func() { next <- waiter.Next() }()

	// a queued run holds no pool slot
	time.Sleep(10 * time.Millisecond)
	slotCtx, slotCancel := context.WithTimeout(context.Background(), time.Second)
	defer slotCancel()
	if err := pool.Do(slotCtx, func() error { return nil }); err != nil {
		t.Fatalf("pool slot taken by queued run: %v", err)
	}

	cancel()
	select {
	case ok := <-next:
		if ok {
			t.Fatalf("queued run produced a step")
		}
	case <-time.After(time.Second):
		t.Fatalf("queued run did not observe cancellation")
	}
	closed := make(chan struct{})
	go func() { waiter.Close(); close(closed) }()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("Close blocked behind the engine holder")
	}
	if waiter.State() != StateFailed || !errors.Is(waiter.Err(), context.Canceled) {
		t.Fatalf("state=%s err=%v", waiter.State(), waiter.Err())
	}
	if n := rt.entered.Load(); n != 1 {
		t.Fatalf("engine entered %d times", n)
	}

	if steps := collect(holder); len(steps) != 3 || holder.State() != StateStoppedEOS {
		t.Fatalf("holder steps=%+v state=%s", steps, holder.State())
	}
}
