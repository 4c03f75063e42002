package respbank

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/qoldau/qoldau/internal/lockfile"
	"github.com/qoldau/qoldau/internal/types"
)

// Search tuning. The keyword boost rewards query terms the author tagged;
// the category penalty is softer for Kazakh because that half of the bank
// is thinner.
const (
	keywordBoost      = 0.05
	keywordBoostCap   = 0.15
	categoryPenaltyKK = 0.05
	categoryPenaltyRU = 0.10
	candidateFactor   = 5
)

// Match is one search result.
type Match struct {
	ResponseID string         `json:"response_id"`
	Text       string         `json:"text"`
	Category   string         `json:"category"`
	Language   types.Language `json:"language"`
	Keywords   []string       `json:"keywords,omitempty"`
	Similarity float64        `json:"similarity"`
}

// index is the immutable snapshot readers see. vectors[i] describes
// items[i]; both are replaced wholesale on rebuild.
type index struct {
	items   []types.ResponseTemplate
	vectors [][]float32
}

// Bank owns the response index and its disk cache.
type Bank struct {
	sourcePath string
	cacheDir   string
	encoder    Encoder
	log        *slog.Logger

	idx atomic.Pointer[index]
}

// New builds an unloaded bank; call Build before searching.
func New(sourcePath, cacheDir string, encoder Encoder, log *slog.Logger) *Bank {
	if log == nil {
		log = slog.Default()
	}
	return &Bank{
		sourcePath: sourcePath,
		cacheDir:   cacheDir,
		encoder:    encoder,
		log:        log.With("component", "respbank"),
	}
}

// Len reports the number of indexed templates.
func (b *Bank) Len() int {
	idx := b.idx.Load()
	if idx == nil {
		return 0
	}
	return len(idx.items)
}

// Build loads the source file and populates the index, reusing the disk
// cache when its recorded source hash still matches. Rebuilds are
// serialized across processes by a lockfile next to the cache.
func (b *Bank) Build(ctx context.Context) error {
	templates, err := loadBank(b.sourcePath)
	if err != nil {
		return err
	}
	srcHash, err := hashFile(b.sourcePath)
	if err != nil {
		return err
	}

	if b.cacheDir != "" {
		if idx, err := loadCache(b.cacheDir, srcHash, b.encoder.Dims()); err == nil {
			b.idx.Store(idx)
			b.log.Info("response index loaded from cache", "items", len(idx.items))
			return nil
		} else if err != errCacheMiss {
			b.log.Warn("response index cache unreadable, rebuilding", "error", err)
		}
	}

	idx, err := b.embed(ctx, templates)
	if err != nil {
		return err
	}
	b.idx.Store(idx)
	b.log.Info("response index built", "items", len(idx.items))

	if b.cacheDir != "" {
		lock, err := lockfile.Acquire(filepath.Join(b.cacheDir, "index.lock"))
		if err != nil {
			b.log.Warn("response index cache lock failed, skipping write", "error", err)
			return nil
		}
		defer lock.Release()
		if err := writeCache(b.cacheDir, srcHash, idx); err != nil {
			b.log.Warn("response index cache write failed", "error", err)
		}
	}
	return nil
}

func (b *Bank) embed(ctx context.Context, templates []types.ResponseTemplate) (*index, error) {
	texts := make([]string, len(templates))
	for i, t := range templates {
		texts[i] = t.Text
	}
	vectors, err := b.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed response bank: %w", err)
	}
	if len(vectors) != len(templates) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d templates", len(vectors), len(templates))
	}
	for _, v := range vectors {
		normalize(v)
	}
	return &index{items: templates, vectors: vectors}, nil
}

// Search returns the top-k templates for query, ranked by boosted cosine
// similarity. language narrows the candidate set; category only adjusts
// scores, it never filters.
func (b *Bank) Search(ctx context.Context, query string, language types.Language, category string, k int) ([]Match, error) {
	idx := b.idx.Load()
	if idx == nil || len(idx.items) == 0 {
		return nil, fmt.Errorf("response index not built")
	}
	if k <= 0 {
		k = 3
	}

	queryVecs, err := b.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := queryVecs[0]
	normalize(queryVec)

	queryLower := strings.ToLower(query)
	categoryLower := strings.ToLower(strings.TrimSpace(category))

	candidates := make([]Match, 0, len(idx.items))
	for i, item := range idx.items {
		if language != "" && item.Language != language {
			continue
		}
		candidates = append(candidates, Match{
			ResponseID: item.ID,
			Text:       item.Text,
			Category:   item.Category,
			Language:   item.Language,
			Keywords:   item.Keywords,
			Similarity: cosine(queryVec, idx.vectors[i]),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	limit := k * candidateFactor
	if limit > len(candidates) {
		limit = len(candidates)
	}
	candidates = candidates[:limit]

	for i := range candidates {
		candidates[i].Similarity = adjust(candidates[i], queryLower, categoryLower)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// adjust applies the keyword boost and category penalty to a raw cosine
// score.
func adjust(m Match, queryLower, categoryLower string) float64 {
	score := m.Similarity

	var boost float64
	for _, kw := range m.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(queryLower, kw) {
			boost += keywordBoost
		}
	}
	if boost > keywordBoostCap {
		boost = keywordBoostCap
	}
	score += boost

	if categoryLower != "" && !strings.EqualFold(m.Category, categoryLower) {
		if m.Language == types.LangKK {
			score -= categoryPenaltyKK
		} else {
			score -= categoryPenaltyRU
		}
	}
	return score
}

// Templates lists the indexed templates, optionally narrowed by language
// and category.
func (b *Bank) Templates(language types.Language, category string) []types.ResponseTemplate {
	idx := b.idx.Load()
	if idx == nil {
		return nil
	}
	out := make([]types.ResponseTemplate, 0, len(idx.items))
	for _, item := range idx.items {
		if language != "" && item.Language != language {
			continue
		}
		if category != "" && !strings.EqualFold(item.Category, category) {
			continue
		}
		out = append(out, item)
	}
	return out
}
