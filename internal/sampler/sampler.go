// Package sampler turns next-token logits into a token id under a sampling
// policy.
package sampler

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"
)

// MinTemperature is the smallest divisor applied to logits.
const MinTemperature = 1e-4

// Policy is the sampling configuration for one generation. Zero values of
// TopK, TopP and the penalties disable the corresponding step.
type Policy struct {
	Temperature      float64
	MaxTokens        int
	TopK             int
	TopP             float64
	RepeatPenalty    float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	Seed             uint64
}

// Source is the random draw used for categorical sampling. *rand.Rand
// satisfies it.
type Source interface {
	Float64() float64
}

// Greedy is a Source that always draws zero, reducing sampling to argmax.
type Greedy struct{}

func (Greedy) Float64() float64 { return 0 }

// Sampler is not safe for concurrent use; each generation owns one.
type Sampler struct {
	src Source
}

// New returns a Sampler drawing from src.
func New(src Source) *Sampler {
	if src == nil {
		src = Greedy{}
	}
	return &Sampler{src: src}
}

// NewSeeded returns a Sampler with a PCG source. A zero seed is replaced by
// the current time.
func NewSeeded(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

type tokenProb struct {
	id   int
	prob float64
}

// Choose samples one id from logits. history is the generated suffix used
// for penalties. The result is always in [0, len(logits)) for non-empty
// logits; logits is not modified.
func (s *Sampler) Choose(logits []float32, p Policy, history []int) int {
	if len(logits) == 0 {
		return 0
	}
	work := make([]float64, len(logits))
	temp := math.Max(p.Temperature, MinTemperature)
	for i, v := range logits {
		f := float64(v)
		if math.IsNaN(f) {
			f = math.Inf(-1)
		}
		work[i] = f / temp
	}
	if p.TopK > 0 && p.TopK < len(work) {
		applyTopK(work, p.TopK)
	}
	if p.TopP > 0 && p.TopP < 1 {
		applyTopP(work, p.TopP)
	}
	applyPenalties(work, p, history)

	cands := softmax(work)
	if len(cands) == 0 {
		return argMax(logits)
	}
	r := s.src.Float64()
	acc := 0.0
	last := cands[0].id
	for _, c := range cands {
		if c.prob <= 0 {
			break
		}
		acc += c.prob
		last = c.id
		if r < acc {
			return c.id
		}
	}
	// rounding left r above the cumulative mass
	return last
}

// ranked returns candidate indices ordered by value descending, lower index
// first on ties.
func ranked(work []float64) []int {
	idx := make([]int, 0, len(work))
	for i, v := range work {
		if !math.IsInf(v, -1) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return work[idx[a]] > work[idx[b]] })
	return idx
}

func applyTopK(work []float64, k int) {
	idx := ranked(work)
	if len(idx) <= k {
		return
	}
	for _, i := range idx[k:] {
		work[i] = math.Inf(-1)
	}
}

func applyTopP(work []float64, topP float64) {
	cands := softmax(work)
	cum := 0.0
	keep := len(cands)
	for n, c := range cands {
		cum += c.prob
		if cum >= topP {
			keep = n + 1
			break
		}
	}
	for _, c := range cands[keep:] {
		work[c.id] = math.Inf(-1)
	}
}

func applyPenalties(work []float64, p Policy, history []int) {
	if len(history) == 0 {
		return
	}
	repeat := p.RepeatPenalty > 0 && p.RepeatPenalty != 1
	if !repeat && p.FrequencyPenalty == 0 && p.PresencePenalty == 0 {
		return
	}
	counts := make(map[int]int, len(history))
	for _, id := range history {
		if id >= 0 && id < len(work) {
			counts[id]++
		}
	}
	for id, n := range counts {
		v := work[id]
		if math.IsInf(v, -1) {
			continue
		}
		if repeat {
			if v > 0 {
				v /= p.RepeatPenalty
			} else {
				v *= p.RepeatPenalty
			}
		}
		v -= float64(n) * p.FrequencyPenalty
		v -= p.PresencePenalty
		work[id] = v
	}
}

// softmax normalizes the unmasked entries of work and returns them sorted by
// probability descending, lower index first on ties.
func softmax(work []float64) []tokenProb {
	maxV := math.Inf(-1)
	for _, v := range work {
		if v > maxV {
			maxV = v
		}
	}
	if math.IsInf(maxV, -1) {
		return nil
	}
	cands := make([]tokenProb, 0, len(work))
	sum := 0.0
	for i, v := range work {
		if math.IsInf(v, -1) {
			continue
		}
		e := 0.0
		switch {
		case math.IsInf(maxV, 1):
			// only +Inf entries carry mass
			if math.IsInf(v, 1) {
				e = 1
			}
		default:
			e = math.Exp(v - maxV)
		}
		cands = append(cands, tokenProb{id: i, prob: e})
		sum += e
	}
	for i := range cands {
		cands[i].prob /= sum
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].prob > cands[b].prob })
	return cands
}

func argMax(logits []float32) int {
	best, bestV := 0, math.Inf(-1)
	for i, v := range logits {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		if f > bestV {
			best, bestV = i, f
		}
	}
	return best
}
