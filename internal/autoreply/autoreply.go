// Package autoreply drafts answers for typical tickets from the canned
// response bank.
//
// A draft is advisory: CanAutoReply=false never blocks ticket creation,
// it only demotes the ticket from the automated queue.
package autoreply

import (
	"context"
	"regexp"
	"strings"

	"github.com/qoldau/qoldau/internal/respbank"
	"github.com/qoldau/qoldau/internal/types"
)

// maxDraftRunes caps the outgoing text in code points, not bytes.
const maxDraftRunes = 1000

// Decline reasons reported on the draft.
const (
	ReasonNoMatch       = "no-match"
	ReasonLowSimilarity = "low-similarity"
	ReasonNotTypical    = "not-typical"
	ReasonUnsafe        = "unsafe-template"
)

// Draft is the engine's verdict for one ticket.
type Draft struct {
	CanAutoReply bool           `json:"can_auto_reply"`
	Text         string         `json:"text"`
	MatchedID    string         `json:"matched_id,omitempty"`
	Similarity   float64        `json:"similarity"`
	Reason       string         `json:"reason,omitempty"`
	Language     types.Language `json:"language"`
}

// Searcher is the slice of the response bank the engine needs.
type Searcher interface {
	Search(ctx context.Context, query string, language types.Language, category string, k int) ([]respbank.Match, error)
}

// Thresholds gate auto-reply per language. The Kazakh half of the bank is
// thinner, so its floor sits lower.
type Thresholds struct {
	RU       float64
	KK       float64
	Verbatim float64
}

// DefaultThresholds match the shipped configuration.
var DefaultThresholds = Thresholds{RU: 0.65, KK: 0.50, Verbatim: 0.80}

// Engine generates drafts against a response bank.
type Engine struct {
	bank Searcher
	th   Thresholds
}

// New builds an engine. Zero thresholds fall back to the defaults.
func New(bank Searcher, th Thresholds) *Engine {
	if th.RU == 0 {
		th.RU = DefaultThresholds.RU
	}
	if th.KK == 0 {
		th.KK = DefaultThresholds.KK
	}
	if th.Verbatim == 0 {
		th.Verbatim = DefaultThresholds.Verbatim
	}
	return &Engine{bank: bank, th: th}
}

// kazakhLetters are the Cyrillic letters unique to Kazakh; any one of them
// in the query marks it kk.
const kazakhLetters = "әғқңөұүһі"

var greetings = map[types.Language]string{
	types.LangRU: "Спасибо за обращение! ",
	types.LangKK: "Хабарласқаныңызға рахмет! ",
}

var fallbacks = map[types.Language]string{
	types.LangRU: "Спасибо за обращение. Ваш запрос принят в работу. Наш специалист свяжется с вами в ближайшее время.",
	types.LangKK: "Хабарласқаныңызға рахмет. Сіздің сұрағыңыз жұмысқа алынды. Біздің маманы жақын арада сізбен байланысады.",
}

// forbidden rejects drafts whose template asks the reader to mutate data
// or hand over credentials.
var forbidden = map[types.Language][]*regexp.Regexp{
	types.LangRU: {
		regexp.MustCompile(`(?i)изменить.*базу данных`),
		regexp.MustCompile(`(?i)удалить.*данные`),
		regexp.MustCompile(`(?i)предоставить.*пароль`),
	},
	types.LangKK: {
		regexp.MustCompile(`(?i)деректер базасын.*өзгерту`),
		regexp.MustCompile(`(?i)деректерді.*жою`),
		regexp.MustCompile(`(?i)құпия сөзді.*беру`),
	},
}

// DetectLanguage classifies query as kk or ru by alphabet. English text
// ends up ru; the bank carries no en templates.
func DetectLanguage(query string) types.Language {
	lower := strings.ToLower(query)
	if strings.ContainsAny(lower, kazakhLetters) {
		return types.LangKK
	}
	return types.LangRU
}

// GenerateDraft produces a draft reply for query. language, category and
// issueType are optional hints from the classifier; an unset language is
// detected from the query text.
func (e *Engine) GenerateDraft(ctx context.Context, query string, category string, issueType types.IssueType, language types.Language) Draft {
	if language != types.LangRU && language != types.LangKK {
		language = DetectLanguage(query)
	}
	threshold := e.th.RU
	if language == types.LangKK {
		threshold = e.th.KK
	}

	matches, err := e.bank.Search(ctx, query, language, category, 3)
	if err != nil || len(matches) == 0 {
		return declined(language, ReasonNoMatch, 0)
	}
	best := matches[0]

	if issueType != types.IssueTypical {
		return declined(language, ReasonNotTypical, best.Similarity)
	}
	if best.Similarity < threshold {
		return declined(language, ReasonLowSimilarity, best.Similarity)
	}

	text := best.Text
	if best.Similarity < e.th.Verbatim {
		greeting := greetings[language]
		if !strings.HasPrefix(text, greeting) {
			text = greeting + text
		}
	}
	if unsafe(language, text) {
		return Draft{
			CanAutoReply: false,
			Text:         fallbacks[language],
			MatchedID:    best.ResponseID,
			Similarity:   best.Similarity,
			Reason:       ReasonUnsafe,
			Language:     language,
		}
	}

	return Draft{
		CanAutoReply: true,
		Text:         truncate(text),
		MatchedID:    best.ResponseID,
		Similarity:   best.Similarity,
		Language:     language,
	}
}

func declined(language types.Language, reason string, similarity float64) Draft {
	return Draft{
		CanAutoReply: false,
		Text:         fallbacks[language],
		Similarity:   similarity,
		Reason:       reason,
		Language:     language,
	}
}

func unsafe(language types.Language, text string) bool {
	for _, re := range forbidden[language] {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) > maxDraftRunes {
		runes = runes[:maxDraftRunes]
	}
	return strings.TrimSpace(string(runes))
}
