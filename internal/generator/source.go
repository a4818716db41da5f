package generator

import (
	"context"
	"errors"
	"sync"

	"nanochatd/internal/backend"
	"nanochatd/internal/sampler"
	"nanochatd/internal/tokenizer"
)

// stepSource produces one (id, text) pair per call. done reports that the
// engine ended on its own.
type stepSource interface {
	next(ctx context.Context) (id int, text string, done bool, err error)
	close()
}

// sampledSource drives a Backend: forward, sample, append, decode.
type sampledSource struct {
	model     backend.Backend
	tok       *tokenizer.Adapter
	smp       *sampler.Sampler
	pool      *Pool
	policy    sampler.Policy
	eos       int
	tokens    []int
	generated []int
}

func (s *sampledSource) next(ctx context.Context) (int, string, bool, error) {
	var logits []float32
	err := s.pool.Do(ctx, func() error {
		var ferr error
		logits, ferr = s.model.Forward(ctx, s.tokens)
		return ferr
	})
	if err != nil {
		return 0, "", false, err
	}
	if n := s.model.VocabSize(); n > 0 && len(logits) > n {
		logits = logits[:n]
	}
	if len(logits) == 0 {
		return 0, "", false, errors.New("forward pass returned no logits")
	}
	id := s.smp.Choose(logits, s.policy, s.generated)
	s.tokens = append(s.tokens, id)
	s.generated = append(s.generated, id)
	if id == s.eos {
		return id, "", false, nil
	}
	return id, s.tok.Decode(id), false, nil
}

func (s *sampledSource) close() {}

// streamedSource adapts a Streamer, which pushes pieces from its own loop,
// to one piece per pull. The runtime is held after each piece until the
// next pull.
type streamedSource struct {
	pieces  chan string
	resume  chan struct{}
	done    chan struct{}
	err     error
	cancel  context.CancelFunc
	pieceID func(string) int
	started bool
	once    sync.Once
}

func newStreamedSource(ctx context.Context, s backend.Streamer, pool *Pool, prompt string, opts backend.StreamOptions) *streamedSource {
	ctx, cancel := context.WithCancel(ctx)
	ss := &streamedSource{
		pieces:  make(chan string),
		resume:  make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
		pieceID: func(string) int { return -1 },
	}
	if p, ok := s.(interface{ PieceID(string) int }); ok {
		ss.pieceID = p.PieceID
	}
	onPiece := func(piece string) error {
		select {
		case ss.pieces <- piece:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-ss.resume:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	run := func() error { return s.Stream(ctx, prompt, opts, onPiece) }
	go func() {
		defer close(ss.done)
		if _, ok := s.(backend.Serial); ok {
			// queued on the engine, not on a pool slot
			ss.err = run()
			return
		}
		ss.err = pool.Do(ctx, run)
	}()
	return ss
}

func (ss *streamedSource) next(ctx context.Context) (int, string, bool, error) {
	if ss.started {
		select {
		case ss.resume <- struct{}{}:
		case <-ss.done:
		case <-ctx.Done():
			return 0, "", false, ctx.Err()
		}
	}
	ss.started = true
	select {
	case p := <-ss.pieces:
		return ss.pieceID(p), p, false, nil
	case <-ss.done:
		if ss.err != nil {
			return 0, "", false, ss.err
		}
		return 0, "", true, nil
	case <-ctx.Done():
		return 0, "", false, ctx.Err()
	}
}

// close stops the runtime and waits for it to return.
func (ss *streamedSource) close() {
	ss.once.Do(func() {
		ss.cancel()
		<-ss.done
	})
}
