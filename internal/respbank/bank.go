// Package respbank loads the bilingual canned-response bank and serves
// nearest-neighbor lookups over it.
//
// The index is a flat matrix of L2-normalized embeddings plus parallel
// metadata, rebuilt as a whole and swapped atomically, so readers never
// take a lock.
package respbank

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/qoldau/qoldau/internal/types"
)

// Template is one language variant of a bank response.
type Template struct {
	ResponseID string         `json:"response_id"`
	Category   string         `json:"category"`
	Language   types.Language `json:"language"`
	Text       string         `json:"text"`
	Keywords   []string       `json:"keywords,omitempty"`
}

type bankFile struct {
	Responses []struct {
		ID       string   `json:"id"`
		Category string   `json:"category"`
		Keywords []string `json:"keywords"`
		RU       string   `json:"ru"`
		KZ       string   `json:"kz"`
	} `json:"responses"`
}

// loadBank parses the source file into per-language templates. A response
// contributes one template per non-empty language field; the file's "kz"
// key maps to the kk language code.
func loadBank(path string) ([]types.ResponseTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response bank: %w", err)
	}

	var f bankFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse response bank: %w", err)
	}
	if len(f.Responses) == 0 {
		return nil, fmt.Errorf("response bank %s has no responses", path)
	}

	var templates []types.ResponseTemplate
	for i, r := range f.Responses {
		if r.ID == "" {
			r.ID = fmt.Sprintf("resp-%d", i+1)
		}
		if text := strings.TrimSpace(r.RU); text != "" {
			templates = append(templates, types.ResponseTemplate{
				ID:       r.ID,
				Category: r.Category,
				Language: types.LangRU,
				Text:     text,
				Keywords: r.Keywords,
			})
		}
		if text := strings.TrimSpace(r.KZ); text != "" {
			templates = append(templates, types.ResponseTemplate{
				ID:       r.ID,
				Category: r.Category,
				Language: types.LangKK,
				Text:     text,
				Keywords: r.Keywords,
			})
		}
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("response bank %s has no usable texts", path)
	}
	return templates, nil
}
