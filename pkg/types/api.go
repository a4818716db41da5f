package types

// ChatMessage is one conversation turn.
type ChatMessage struct {
	// One of system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// StreamOptions tunes the SSE stream.
type StreamOptions struct {
	// Send a final chunk carrying token usage before [DONE].
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Pointer fields distinguish "absent" from zero.
type ChatCompletionRequest struct {
	// Optional model identifier. Ignored beyond echoing in responses.
	// example: nanochat-d32
	Model string `json:"model,omitempty" example:"nanochat-d32"`
	// Conversation, oldest first.
	Messages []ChatMessage `json:"messages"`
	// Sampling temperature.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of generated tokens.
	// example: 256
	MaxTokens *int `json:"max_tokens,omitempty" example:"256"`
	// Alias of max_tokens; wins when both are set.
	MaxCompletionTokens *int `json:"max_completion_tokens,omitempty"`
	// example: 50
	TopK *int `json:"top_k,omitempty" example:"50"`
	// example: 0.9
	TopP             *float64 `json:"top_p,omitempty" example:"0.9"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Stop sequences; a string or a list of strings.
	Stop StopList `json:"stop,omitempty" swaggertype:"array,string"`
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// Stream as server-sent events. Defaults to true.
	// example: true
	Stream        *bool          `json:"stream,omitempty" example:"true"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// ChunkDelta is the incremental content of a streamed choice.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one choice inside a stream chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// Usage counts tokens for one completion.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 40
	CompletionTokens int `json:"completion_tokens" example:"40"`
	// example: 52
	TotalTokens int `json:"total_tokens" example:"52"`
}

// ChatCompletionChunk is the payload of one SSE data event.
type ChatCompletionChunk struct {
	// example: chatcmpl-6f1c2a7e-0c43-4c59-9a43-2b1d3f0a9e11
	ID string `json:"id"`
	// Always chat.completion.chunk.
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// CompletionChoice is one choice of a non-streamed completion.
type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the response of a non-streamed request.
type ChatCompletion struct {
	ID string `json:"id"`
	// Always chat.completion.
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

// ErrorDetail describes a failure in OpenAI form.
type ErrorDetail struct {
	// example: Too many messages (max 500)
	Message string `json:"message" example:"Too many messages (max 500)"`
	// example: invalid_request_error
	Type string `json:"type" example:"invalid_request_error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ErrorResponse is a consistent JSON error payload, also used as the
// terminal SSE event of a failed stream.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Streaming reports whether the response is sent as server-sent events.
// An absent stream field means true.
func (r ChatCompletionRequest) Streaming() bool { return r.Stream == nil || *r.Stream }

// IncludeUsage reports whether a streamed response ends with a usage chunk.
func (r ChatCompletionRequest) IncludeUsage() bool {
	return r.StreamOptions != nil && r.StreamOptions.IncludeUsage
}
