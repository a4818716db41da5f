package manager

import (
	"fmt"
	"math"

	"nanochatd/internal/backend"
	"nanochatd/internal/sampler"
	"nanochatd/internal/tokenizer"
	"nanochatd/pkg/types"
)

// maxStops bounds the number of stop sequences per request.
const maxStops = 16

// validateMessages checks the conversation shape and converts it.
func validateMessages(in []types.ChatMessage) ([]tokenizer.Message, error) {
	if len(in) == 0 {
		return nil, ErrValidation("messages must not be empty")
	}
	if len(in) > MaxMessages {
		return nil, ErrValidation(fmt.Sprintf("Too many messages (max %d)", MaxMessages))
	}
	out := make([]tokenizer.Message, len(in))
	for i, msg := range in {
		if !tokenizer.ValidRole(msg.Role) {
			return nil, ErrValidation(fmt.Sprintf("messages[%d]: invalid role %q", i, msg.Role))
		}
		out[i] = tokenizer.Message{Role: msg.Role, Content: msg.Content}
	}
	return out, nil
}

// buildPolicy clamps the request's sampling fields to the backend limits.
// Absent fields take the defaults; out-of-range values are clamped, not
// rejected.
func buildPolicy(req types.ChatCompletionRequest, l backend.Limits) (sampler.Policy, error) {
	p := sampler.Policy{
		Temperature: l.DefaultTemperature,
		MaxTokens:   l.DefaultMaxTokens,
		TopK:        l.DefaultTopK,
	}
	if req.Temperature != nil {
		if math.IsNaN(*req.Temperature) {
			return p, ErrValidation("temperature must be a number")
		}
		p.Temperature = clampF(*req.Temperature, l.MinTemperature, l.MaxTemperature)
	}
	maxTokens := req.MaxTokens
	if req.MaxCompletionTokens != nil {
		maxTokens = req.MaxCompletionTokens
	}
	if maxTokens != nil {
		p.MaxTokens = clampI(*maxTokens, 1, l.MaxTokens)
	}
	if req.TopK != nil {
		p.TopK = clampI(*req.TopK, 1, l.MaxTopK)
	}
	if req.TopP != nil {
		if math.IsNaN(*req.TopP) {
			return p, ErrValidation("top_p must be a number")
		}
		p.TopP = clampF(*req.TopP, 0, 1)
		if p.TopP == 0 {
			// an empty nucleus keeps only the most likely token
			p.TopK = 1
		}
	}
	if req.RepeatPenalty != nil {
		p.RepeatPenalty = clampF(*req.RepeatPenalty, 0, 10)
	}
	if req.FrequencyPenalty != nil {
		p.FrequencyPenalty = clampF(*req.FrequencyPenalty, -2, 2)
	}
	if req.PresencePenalty != nil {
		p.PresencePenalty = clampF(*req.PresencePenalty, -2, 2)
	}
	if len(req.Stop) > maxStops {
		return p, ErrValidation(fmt.Sprintf("Too many stop sequences (max %d)", maxStops))
	}
	for _, s := range req.Stop {
		if s != "" {
			p.Stop = append(p.Stop, s)
		}
	}
	if req.Seed != nil {
		p.Seed = uint64(*req.Seed)
	}
	return p, nil
}

func clampF(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampI(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
