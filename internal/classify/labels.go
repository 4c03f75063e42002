package classify

import (
	"strings"

	"github.com/qoldau/qoldau/internal/types"
)

// The upstream model emits Russian label names; English names are accepted
// too for test fixtures and future model versions. Anything else maps to
// the conservative defaults with confidence forced down.

// defaultLabelConfidence replaces the reported confidence when the label
// itself could not be understood.
const defaultLabelConfidence = 0.3

func mapPriority(label string, conf float64) (types.Priority, float64) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "низкий", "low":
		return types.PriorityLow, conf
	case "средний", "medium":
		return types.PriorityMedium, conf
	case "высокий", "high":
		return types.PriorityHigh, conf
	case "критический", "critical":
		return types.PriorityCritical, conf
	default:
		return types.PriorityMedium, defaultLabelConfidence
	}
}

func mapIssueType(label string, conf float64) (types.IssueType, float64) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "типовой", "typical":
		return types.IssueTypical, conf
	case "простой", "simple":
		return types.IssueSimple, conf
	case "сложный", "complex":
		return types.IssueComplex, conf
	default:
		return types.IssueComplex, defaultLabelConfidence
	}
}
