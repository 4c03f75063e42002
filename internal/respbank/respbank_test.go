package respbank

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qoldau/qoldau/internal/types"
)

const bankFixture = `{
  "responses": [
    {"id": "pay-1", "category": "billing", "keywords": ["оплата", "счет"],
     "ru": "Счет можно оплатить в личном кабинете в разделе Платежи.",
     "kz": "Шотты жеке кабинеттегі Төлемдер бөлімінде төлеуге болады."},
    {"id": "pwd-1", "category": "technical", "keywords": ["пароль"],
     "ru": "Для сброса пароля нажмите Забыли пароль на странице входа."},
    {"id": "doc-1", "category": "hr", "keywords": [],
     "ru": "Справка о занятости оформляется в отделе кадров за один день."}
  ]
}`

func writeBank(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "responses.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func builtBank(t *testing.T) *Bank {
	t.Helper()
	b := New(writeBank(t, bankFixture), "", NewHashEncoder(256), nil)
	require.NoError(t, b.Build(context.Background()))
	return b
}

func TestLoadBankSplitsLanguages(t *testing.T) {
	templates, err := loadBank(writeBank(t, bankFixture))
	require.NoError(t, err)
	// pay-1 contributes two language variants, the others one each.
	require.Len(t, templates, 4)

	var kk int
	for _, tpl := range templates {
		if tpl.Language == types.LangKK {
			kk++
		}
		assert.True(t, tpl.Language == types.LangRU || tpl.Language == types.LangKK)
	}
	assert.Equal(t, 1, kk)
}

func TestBuildFailsOnAbsentOrEmptyFile(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "missing.json"), "", NewHashEncoder(64), nil)
	assert.Error(t, b.Build(context.Background()))

	b = New(writeBank(t, `{"responses": []}`), "", NewHashEncoder(64), nil)
	assert.Error(t, b.Build(context.Background()))
}

func TestHashEncoderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEncoder(256)
	a, err := e.Encode(context.Background(), []string{"сброс пароля на странице входа"})
	require.NoError(t, err)
	b, err := e.Encode(context.Background(), []string{"сброс пароля на странице входа"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])

	var norm float64
	for _, v := range a[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestSearchFiltersByLanguageAndRanks(t *testing.T) {
	b := builtBank(t)

	matches, err := b.Search(context.Background(), "как оплатить счет через личный кабинет", types.LangRU, "", 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "pay-1", matches[0].ResponseID)
	for _, m := range matches {
		assert.Equal(t, types.LangRU, m.Language)
	}

	kkMatches, err := b.Search(context.Background(), "шотты қалай төлеймін", types.LangKK, "", 3)
	require.NoError(t, err)
	require.Len(t, kkMatches, 1)
	assert.Equal(t, types.LangKK, kkMatches[0].Language)
}

func TestAdjustKeywordBoostCapsAtFifteen(t *testing.T) {
	m := Match{
		Similarity: 0.5,
		Keywords:   []string{"оплата", "счет", "платеж", "тариф"},
		Language:   types.LangRU,
	}
	got := adjust(m, "оплата счет платеж тариф", "")
	assert.InDelta(t, 0.65, got, 1e-9, "four keyword hits still cap at +0.15")

	one := adjust(Match{Similarity: 0.5, Keywords: []string{"счет"}, Language: types.LangRU}, "где мой счет", "")
	assert.InDelta(t, 0.55, one, 1e-9)
}

func TestAdjustCategoryPenaltyByLanguage(t *testing.T) {
	ru := adjust(Match{Similarity: 0.5, Category: "billing", Language: types.LangRU}, "q", "technical")
	assert.InDelta(t, 0.40, ru, 1e-9)

	kk := adjust(Match{Similarity: 0.5, Category: "billing", Language: types.LangKK}, "q", "technical")
	assert.InDelta(t, 0.45, kk, 1e-9)

	same := adjust(Match{Similarity: 0.5, Category: "Billing", Language: types.LangRU}, "q", "billing")
	assert.InDelta(t, 0.50, same, 1e-9)
}

func TestTemplatesListing(t *testing.T) {
	b := builtBank(t)

	all := b.Templates("", "")
	assert.Len(t, all, 4)

	ru := b.Templates(types.LangRU, "")
	assert.Len(t, ru, 3)

	billing := b.Templates("", "billing")
	assert.Len(t, billing, 2)
}

// countingEncoder wraps the hash encoder and counts Encode calls.
type countingEncoder struct {
	*HashEncoder
	calls int
}

func (c *countingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.HashEncoder.Encode(ctx, texts)
}

func TestCacheRoundTrip(t *testing.T) {
	path := writeBank(t, bankFixture)
	cacheDir := t.TempDir()

	first := New(path, cacheDir, NewHashEncoder(64), nil)
	require.NoError(t, first.Build(context.Background()))
	require.FileExists(t, filepath.Join(cacheDir, "index.bin"))
	require.FileExists(t, filepath.Join(cacheDir, "meta.json"))

	// Same source hash: the second bank loads from disk, no embedding pass.
	enc := &countingEncoder{HashEncoder: NewHashEncoder(64)}
	second := New(path, cacheDir, enc, nil)
	require.NoError(t, second.Build(context.Background()))
	assert.Zero(t, enc.calls)
	assert.Equal(t, first.Len(), second.Len())

	res1, err := first.Search(context.Background(), "оплатить счет", types.LangRU, "", 2)
	require.NoError(t, err)
	res2, err := second.Search(context.Background(), "оплатить счет", types.LangRU, "", 2)
	require.NoError(t, err)
	require.Equal(t, len(res1), len(res2))
	for i := range res1 {
		assert.Equal(t, res1[i].ResponseID, res2[i].ResponseID)
		assert.False(t, math.Abs(res1[i].Similarity-res2[i].Similarity) > 1e-6)
	}
}

func TestCacheInvalidatedOnSourceChange(t *testing.T) {
	path := writeBank(t, bankFixture)
	cacheDir := t.TempDir()

	first := New(path, cacheDir, NewHashEncoder(64), nil)
	require.NoError(t, first.Build(context.Background()))

	changed := `{"responses": [{"id": "only", "category": "misc", "keywords": [], "ru": "Новый единственный ответ."}]}`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))

	enc := &countingEncoder{HashEncoder: NewHashEncoder(64)}
	second := New(path, cacheDir, enc, nil)
	require.NoError(t, second.Build(context.Background()))
	assert.Equal(t, 1, enc.calls, "stale cache must force a re-embed")
	assert.Equal(t, 1, second.Len())
}
