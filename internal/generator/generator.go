// Package generator runs the step-by-step decoding loop. A Run is a state
// machine that is pulled one step at a time:
//
//	INIT -> STEPPING -> STOPPED_EOS | STOPPED_MAXLEN | STOPPED_STOPSTRING | FAILED
//
// Cancellation is observed only between steps.
package generator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nanochatd/internal/backend"
	"nanochatd/internal/sampler"
	"nanochatd/internal/tokenizer"
)

// DefaultYieldEvery is the step interval between scheduler yields.
const DefaultYieldEvery = 10

// State is the decoding loop state.
type State int

const (
	StateInit State = iota
	StateStepping
	StateStoppedEOS
	StateStoppedMaxLen
	StateStoppedStop
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStepping:
		return "stepping"
	case StateStoppedEOS:
		return "stopped_eos"
	case StateStoppedMaxLen:
		return "stopped_maxlen"
	case StateStoppedStop:
		return "stopped_stopstring"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further steps follow.
func (s State) Terminal() bool { return s >= StateStoppedEOS }

// FinishReason maps a successful terminal state to the protocol value.
func (s State) FinishReason() string {
	switch s {
	case StateStoppedEOS, StateStoppedStop:
		return "stop"
	case StateStoppedMaxLen:
		return "length"
	}
	return ""
}

// Step is one emitted token.
type Step struct {
	// Index counts emitted steps from 1.
	Index   int
	TokenID int
	Text    string
}

// Config wires a Generator to a loaded model.
type Config struct {
	Model     backend.Model
	Tokenizer *tokenizer.Adapter
	// EOS is the end-of-sequence id; negative disables the check.
	EOS        int
	Pool       *Pool
	YieldEvery int
	Logger     zerolog.Logger
	// NewSampler builds the per-run sampler; defaults to sampler.NewSeeded.
	NewSampler func(seed uint64) *sampler.Sampler
}

// Generator starts Runs against one model. It is safe for concurrent use.
type Generator struct {
	cfg      Config
	backend  backend.Backend
	streamer backend.Streamer
	yield    func()
}

// New checks which capability the model offers and fixes the step source
// used by every Run.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == nil {
		return nil, errors.New("generator: nil model")
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = tokenizer.New(nil)
	}
	if cfg.YieldEvery <= 0 {
		cfg.YieldEvery = DefaultYieldEvery
	}
	if cfg.NewSampler == nil {
		cfg.NewSampler = sampler.NewSeeded
	}
	g := &Generator{cfg: cfg, yield: runtime.Gosched}
	switch m := cfg.Model.(type) {
	case backend.Backend:
		g.backend = m
	case backend.Streamer:
		g.streamer = m
	default:
		return nil, fmt.Errorf("generator: model %T provides neither Forward nor Stream", cfg.Model)
	}
	return g, nil
}

// Run is one generation. It is owned by a single goroutine.
type Run struct {
	g         *Generator
	ctx       context.Context
	msgs      []tokenizer.Message
	policy    sampler.Policy
	state     State
	pending   State
	err       error
	src       stepSource
	step      Step
	emitted   int
	prompt    int
	text      strings.Builder
	released  int
	maxStop   int
	started   time.Time
	firstStep time.Duration
	log       zerolog.Logger
}

// Start prepares a Run. No model work happens until the first Next.
func (g *Generator) Start(ctx context.Context, msgs []tokenizer.Message, p sampler.Policy) *Run {
	r := &Run{
		g:       g,
		ctx:     ctx,
		msgs:    msgs,
		policy:  p,
		state:   StateInit,
		started: time.Now(),
		log:     g.cfg.Logger,
	}
	for _, s := range p.Stop {
		r.maxStop = max(r.maxStop, len(s))
	}
	return r
}

func (r *Run) init() {
	tok := r.g.cfg.Tokenizer
	if r.g.backend != nil {
		ids := tok.EncodeConversation(r.msgs)
		r.prompt = len(ids)
		r.src = &sampledSource{
			model:  r.g.backend,
			tok:    tok,
			smp:    r.g.cfg.NewSampler(r.policy.Seed),
			pool:   r.g.cfg.Pool,
			policy: r.policy,
			eos:    r.g.cfg.EOS,
			tokens: append(make([]int, 0, len(ids)+r.policy.MaxTokens), ids...),
		}
	} else {
		prompt := tokenizer.RenderConversation(r.msgs)
		r.prompt = len(tok.EncodeConversation(r.msgs))
		// stop markers are matched here, not by the runtime
		r.src = newStreamedSource(r.ctx, r.g.streamer, r.g.cfg.Pool, prompt, backend.StreamOptions{
			MaxTokens:     r.policy.MaxTokens,
			Temperature:   r.policy.Temperature,
			TopK:          r.policy.TopK,
			TopP:          r.policy.TopP,
			RepeatPenalty: r.policy.RepeatPenalty,
			Seed:          int(r.policy.Seed),
		})
	}
	r.state = StateStepping
}

// Next advances one step. It returns false once the Run is terminal; State
// and Err then describe the outcome.
func (r *Run) Next() bool {
	if r.state.Terminal() {
		return false
	}
	if r.pending.Terminal() {
		r.finish(r.pending, nil)
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.finish(StateFailed, err)
		return false
	}
	if r.state == StateInit {
		r.init()
	}

	id, text, done, err := r.src.next(r.ctx)
	if cerr := r.ctx.Err(); cerr != nil {
		// a step computed after cancellation is dropped
		r.finish(StateFailed, cerr)
		return false
	}
	if err != nil {
		r.finish(StateFailed, &backend.GenerationError{Step: r.emitted + 1, Err: err})
		return false
	}
	eos := done || (r.g.backend != nil && id == r.g.cfg.EOS)
	if done {
		// the runtime ended on its own; report it as an EOS step
		id, text = r.g.cfg.EOS, ""
	}

	prev := r.text.Len()
	r.text.WriteString(text)
	if cut, hit := r.findStop(prev); hit {
		full := r.text.String()
		r.text.Reset()
		r.text.WriteString(full[:cut])
		frag := r.release(cut)
		if frag == "" {
			r.finish(StateStoppedStop, nil)
			return false
		}
		r.emit(id, frag)
		r.pending = StateStoppedStop
		return true
	}

	maxLen := r.policy.MaxTokens > 0 && r.emitted+1 >= r.policy.MaxTokens
	upto := r.text.Len()
	if !eos && !maxLen {
		upto -= r.heldBack()
	}
	r.emit(id, r.release(upto))
	switch {
	case eos:
		r.pending = StateStoppedEOS
	case maxLen:
		r.pending = StateStoppedMaxLen
	}
	if r.emitted%r.g.cfg.YieldEvery == 0 {
		r.g.yield()
	}
	return true
}

func (r *Run) emit(id int, text string) {
	r.emitted++
	if r.emitted == 1 {
		r.firstStep = time.Since(r.started)
	}
	r.step = Step{Index: r.emitted, TokenID: id, Text: text}
}

// findStop looks for a stop marker that ends inside the text appended after
// prev and returns where the marker starts.
func (r *Run) findStop(prev int) (int, bool) {
	if r.maxStop == 0 {
		return 0, false
	}
	full := r.text.String()
	from := max(0, prev-r.maxStop+1)
	best := -1
	for _, s := range r.policy.Stop {
		if s == "" {
			continue
		}
		if i := strings.Index(full[from:], s); i >= 0 && (best < 0 || from+i < best) {
			best = from + i
		}
	}
	return best, best >= 0
}

// heldBack is the length of the longest unreleased tail that could still
// grow into a stop marker.
func (r *Run) heldBack() int {
	full := r.text.String()
	tail := len(full) - r.released
	best := 0
	for _, s := range r.policy.Stop {
		for k := min(len(s)-1, tail); k > best; k-- {
			if strings.HasSuffix(full, s[:k]) {
				best = k
				break
			}
		}
	}
	return best
}

// release hands out the text between the last release and upto.
func (r *Run) release(upto int) string {
	if upto <= r.released {
		return ""
	}
	out := r.text.String()[r.released:upto]
	r.released = upto
	return out
}

func (r *Run) finish(s State, err error) {
	r.state = s
	r.err = err
	if r.src != nil {
		r.src.close()
	}
	ev := r.log.Debug()
	if s == StateFailed && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		ev = r.log.Warn().Err(err)
	}
	ev.Str("state", s.String()).Int("steps", r.emitted).Int("prompt_tokens", r.prompt).
		Dur("dur", time.Since(r.started)).Msg("generation finished")
}

// Step is the step produced by the last successful Next.
func (r *Run) Step() Step { return r.step }

// State is the current state.
func (r *Run) State() State { return r.state }

// Err is the failure of a FAILED run.
func (r *Run) Err() error { return r.err }

// Text is the output emitted so far, truncated at a stop marker. It always
// equals the concatenated Step texts.
func (r *Run) Text() string { return r.text.String()[:r.released] }

// Usage reports prompt and completion token counts.
func (r *Run) Usage() (prompt, completion int) { return r.prompt, r.emitted }

// TimeToFirstStep is zero until a step has been emitted.
func (r *Run) TimeToFirstStep() time.Duration { return r.firstStep }

// Close ends the run early, releasing engine resources. A run closed before
// reaching a terminal state ends as FAILED with context.Canceled.
func (r *Run) Close() {
	switch {
	case r.state.Terminal():
	case r.pending.Terminal():
		r.finish(r.pending, nil)
	default:
		r.finish(StateFailed, context.Canceled)
	}
}
