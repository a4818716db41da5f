// Package streaming turns a generation Run into chat-completion wire events.
//
// A streamed response is a sequence of server-sent events:
//
//	data: {chunk with role "assistant" and the first fragment}
//	data: {chunk per further step}
//	data: {chunk with finish_reason}
//	data: {usage chunk}          (stream_options.include_usage only)
//	data: [DONE]
//
// A failure after the first byte ends the stream with a single error event
// and no [DONE].
package streaming

import (
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"nanochatd/internal/generator"
	"nanochatd/pkg/types"
)

const (
	ObjectChunk      = "chat.completion.chunk"
	ObjectCompletion = "chat.completion"
	ContentType      = "text/event-stream"
)

var doneEvent = []byte("data: [DONE]\n\n")

// NewID returns a fresh completion id.
func NewID() string { return "chatcmpl-" + uuid.NewString() }

// Options describe one response.
type Options struct {
	// ID defaults to NewID().
	ID           string
	Model        string
	Created      time.Time
	IncludeUsage bool
}

// Session writes one streamed response. It is not safe for concurrent use.
type Session struct {
	w       io.Writer
	flush   func()
	opts    Options
	created int64
	started bool
	events  int
}

// New prepares a session writing to w. flush may be nil.
func New(w io.Writer, flush func(), opts Options) *Session {
	if opts.ID == "" {
		opts.ID = NewID()
	}
	if opts.Created.IsZero() {
		opts.Created = time.Now()
	}
	if flush == nil {
		flush = func() {}
	}
	return &Session{w: w, flush: flush, opts: opts, created: opts.Created.Unix()}
}

// ID is the completion id used in every chunk.
func (s *Session) ID() string { return s.opts.ID }

// Started reports whether any byte has been written.
func (s *Session) Started() bool { return s.started }

// Events counts data events written so far, [DONE] included.
func (s *Session) Events() int { return s.events }

// Stream drains run into SSE events and closes it.
//
// If the run fails before anything was written, the run error is returned
// and the caller still owns the response status. Once the stream has
// started, failures are reported in-band and Stream returns nil. A write
// error stops the run and is returned as is.
func (s *Session) Stream(run *generator.Run) error {
	defer run.Close()
	for run.Next() {
		if err := s.writeStep(run.Step()); err != nil {
			return err
		}
	}
	if run.State() == generator.StateFailed {
		if !s.started {
			return run.Err()
		}
		return s.writeError(run.Err())
	}
	reason := run.State().FinishReason()
	if err := s.writeChunk(types.ChatCompletionChunk{
		Choices: []types.ChunkChoice{{Delta: types.ChunkDelta{}, FinishReason: &reason}},
	}); err != nil {
		return err
	}
	if s.opts.IncludeUsage {
		p, c := run.Usage()
		if err := s.writeChunk(types.ChatCompletionChunk{
			Choices: []types.ChunkChoice{},
			Usage:   &types.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c},
		}); err != nil {
			return err
		}
	}
	return s.write(doneEvent)
}

func (s *Session) writeStep(st generator.Step) error {
	d := types.ChunkDelta{Content: st.Text}
	if st.Index == 1 {
		d.Role = "assistant"
	}
	return s.writeChunk(types.ChatCompletionChunk{Choices: []types.ChunkChoice{{Delta: d}}})
}

func (s *Session) writeChunk(c types.ChatCompletionChunk) error {
	c.ID, c.Object, c.Created, c.Model = s.opts.ID, ObjectChunk, s.created, s.opts.Model
	return s.writeData(c)
}

func (s *Session) writeError(err error) error {
	return s.writeData(ErrorPayload(err))
}

func (s *Session) writeData(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, '\n', '\n')
	return s.write(buf)
}

func (s *Session) write(b []byte) error {
	s.started = true
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	s.events++
	s.flush()
	return nil
}
