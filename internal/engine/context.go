package engine

import (
	"context"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/recallmem/recall/internal/model"
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query      string
	Predicates []model.Predicate
	Metric     model.Metric
	Budget     int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextEntry is a scored record packed into assembled context.
type ContextEntry struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	MemoryType string    `json:"memory_type"`
	CreatedAt  time.Time `json:"created_at"`
	Similarity float64   `json:"similarity"`
	Score      float64   `json:"score"`
	Truncated  bool      `json:"truncated,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget  int            `json:"budget"`
	Used    int            `json:"used"`
	Entries []ContextEntry `json:"entries"`
}

// candidatePool is how many matches context assembly ranks before packing.
const candidatePool = 50

// AssembleContext searches for records relevant to the query and greedily
// packs them into a token budget, most valuable first. Value combines the
// search similarity with recency (exponential decay, roughly a one-week
// half-life). An entry that only partly fits is truncated and marked.
func (e *Engine) AssembleContext(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 4000
	}
	charBudget := budget * 4

	matches, err := e.Search(ctx, p.Query, model.SearchOptions{
		Predicates: p.Predicates,
		Metric:     p.Metric,
		K:          candidatePool,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &ContextResult{Budget: budget, Used: 0, Entries: []ContextEntry{}}, nil
	}

	now := time.Now()
	type scored struct {
		match model.MatchResult
		score float64
	}
	candidates := make([]scored, 0, len(matches))
	for _, m := range matches {
		age := now.Sub(m.Record.CreatedAt).Hours() / 24.0
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-0.1 * age)
		candidates = append(candidates, scored{
			match: m,
			score: m.Similarity*0.7 + recency*0.3,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	result := &ContextResult{Budget: budget, Entries: []ContextEntry{}}
	used := 0
	for _, c := range candidates {
		rec := c.match.Record
		entry := ContextEntry{
			ID:         rec.ID,
			Text:       rec.Text,
			MemoryType: rec.MemoryType,
			CreatedAt:  rec.CreatedAt,
			Similarity: c.match.Similarity,
			Score:      math.Round(c.score*100) / 100,
		}
		if used+len(rec.Text) <= charBudget {
			result.Entries = append(result.Entries, entry)
			used += len(rec.Text)
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			// Back the cut up to a rune boundary so it never splits a
			// multibyte character.
			cut := remaining
			for cut > 0 && !utf8.RuneStart(rec.Text[cut]) {
				cut--
			}
			entry.Text = rec.Text[:cut] + "..."
			entry.Truncated = true
			result.Entries = append(result.Entries, entry)
			used += len(entry.Text)
		}
		break // budget full
	}
	result.Used = used / 4
	return result, nil
}
