// Package routing decides which queue a classified ticket lands in.
//
// The policy is a pure function over the classifier output: rules are
// evaluated top to bottom and the first match wins, so the ordering below is
// part of the contract.
package routing

import (
	"fmt"
	"strings"

	"github.com/qoldau/qoldau/internal/types"
)

// Queue is a routing destination. Queues map 1:1 to departments.
type Queue string

// The fixed queue set.
const (
	QueueAutomated       Queue = "Automated"
	QueueHighPriority    Queue = "HighPriority"
	QueueBilling         Queue = "Billing"
	QueueTechSupport     Queue = "TechSupport"
	QueueHR              Queue = "HR"
	QueueCustomerService Queue = "CustomerService"
	QueueGeneralSupport  Queue = "GeneralSupport"
	QueueManualReview    Queue = "ManualReview"
)

// AllQueues lists every destination, used to seed the department table.
var AllQueues = []Queue{
	QueueAutomated, QueueHighPriority, QueueBilling, QueueTechSupport,
	QueueHR, QueueCustomerService, QueueGeneralSupport, QueueManualReview,
}

// Input is the classifier output the policy decides on.
type Input struct {
	Category  string
	Priority  types.Priority
	IssueType types.IssueType

	ConfCategory  float64
	ConfPriority  float64
	ConfIssueType float64
}

// Decision is the routing outcome.
type Decision struct {
	Queue              Queue
	Message            string
	NeedsClarification bool
	LowConfidenceAxes  []string // e.g. "category (50%)"
}

// Thresholds tune the policy gates.
type Thresholds struct {
	// ClarifyConfidence is the per-axis floor below which a ticket needs
	// human clarification.
	ClarifyConfidence float64
	// AutoConfidence is the issue-type confidence needed for the automated
	// queue.
	AutoConfidence float64
}

// DefaultThresholds match the shipped configuration.
var DefaultThresholds = Thresholds{ClarifyConfidence: 0.70, AutoConfidence: 0.75}

// categorySubstrings maps lowercase category substrings to queues. Checked
// in a fixed order so overlapping names resolve deterministically.
var categorySubstrings = []struct {
	substrings []string
	queue      Queue
}{
	{[]string{"billing", "платеж"}, QueueBilling},
	{[]string{"technical", "it"}, QueueTechSupport},
	{[]string{"hr", "кадр"}, QueueHR},
	{[]string{"customer", "сервис"}, QueueCustomerService},
}

// Route applies the policy. See the package comment for rule ordering.
func Route(in Input, th Thresholds) Decision {
	if low := lowConfidenceAxes(in, th.ClarifyConfidence); len(low) > 0 {
		return Decision{
			Queue:              QueueManualReview,
			Message:            "low classifier confidence: " + strings.Join(low, ", "),
			NeedsClarification: true,
			LowConfidenceAxes:  low,
		}
	}

	if in.IssueType == types.IssueTypical {
		if in.ConfIssueType >= th.AutoConfidence {
			return Decision{
				Queue:   QueueAutomated,
				Message: "typical issue with high confidence, eligible for auto-reply",
			}
		}
		return Decision{
			Queue:   QueueGeneralSupport,
			Message: fmt.Sprintf("typical issue but confidence %.0f%% below the automation gate", in.ConfIssueType*100),
		}
	}

	if in.Priority == types.PriorityHigh || in.Priority == types.PriorityCritical {
		return Decision{
			Queue:   QueueHighPriority,
			Message: fmt.Sprintf("%s priority ticket", in.Priority),
		}
	}

	if in.ConfCategory >= th.ClarifyConfidence {
		lower := strings.ToLower(in.Category)
		for _, m := range categorySubstrings {
			for _, sub := range m.substrings {
				if strings.Contains(lower, sub) {
					return Decision{
						Queue:   m.queue,
						Message: fmt.Sprintf("category %q routed to %s", in.Category, m.queue),
					}
				}
			}
		}
		return Decision{
			Queue:   QueueGeneralSupport,
			Message: fmt.Sprintf("category %q has no dedicated queue", in.Category),
		}
	}

	return Decision{
		Queue:   QueueGeneralSupport,
		Message: "category uncertain",
	}
}

// lowConfidenceAxes lists axes strictly below the floor, with percentages,
// in a stable order.
func lowConfidenceAxes(in Input, floor float64) []string {
	axes := []struct {
		name string
		conf float64
	}{
		{"category", in.ConfCategory},
		{"priority", in.ConfPriority},
		{"issue-type", in.ConfIssueType},
	}
	var low []string
	for _, a := range axes {
		if a.conf < floor {
			low = append(low, fmt.Sprintf("%s (%.0f%%)", a.name, a.conf*100))
		}
	}
	return low
}
