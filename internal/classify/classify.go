// Package classify calls the external ML classifier and maps its labels
// onto the canonical enums.
//
// Upstream failure is not an error: the gateway degrades to a fixed
// fallback prediction and reports the cause on the result, so the
// orchestrator can record it without branching on error types.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// Confidence carries the per-axis posterior of the winning labels.
type Confidence struct {
	Category  float64 `json:"category"`
	Priority  float64 `json:"priority"`
	IssueType float64 `json:"issue_type"`
}

// Min returns the lowest axis confidence.
func (c Confidence) Min() float64 {
	m := c.Category
	if c.Priority < m {
		m = c.Priority
	}
	if c.IssueType < m {
		m = c.IssueType
	}
	return m
}

// Prediction is the gateway's result. Degraded is set when the upstream
// was unreachable and the fallback values are in effect.
type Prediction struct {
	Category      string           `json:"category"`
	Priority      types.Priority   `json:"priority"`
	IssueType     types.IssueType  `json:"issue_type"`
	Confidence    Confidence       `json:"confidence"`
	Degraded      bool             `json:"degraded,omitempty"`
	DegradedCause string           `json:"degraded_cause,omitempty"`
}

// Gateway is an HTTP client for the classifier's /predict endpoint.
type Gateway struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *slog.Logger
}

// New builds a gateway. timeout bounds each Classify call end to end,
// retries included.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
		log:     log.With("component", "classify"),
	}
}

type predictRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type predictResponse struct {
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	ProblemType string `json:"problem_type"`
	Confidence  struct {
		Category    float64 `json:"category"`
		Priority    float64 `json:"priority"`
		ProblemType float64 `json:"problem_type"`
	} `json:"confidence"`
}

// Classify returns the prediction for (subject, body). The only error it
// returns is ErrInvalidInput for an empty submission; upstream failures
// yield a degraded fallback prediction instead.
func (g *Gateway) Classify(ctx context.Context, subject, body string) (*Prediction, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" && body == "" {
		return nil, fmt.Errorf("subject and body are both empty: %w", storage.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.predict(ctx, predictRequest{Subject: subject, Body: body})
	if err != nil {
		g.log.Warn("classifier unreachable, using fallback", "error", err)
		return fallback(err), nil
	}

	pred := &Prediction{Category: strings.TrimSpace(resp.Category)}
	if pred.Category == "" {
		pred.Category = "General"
	}
	pred.Confidence.Category = clamp01(resp.Confidence.Category)
	pred.Priority, pred.Confidence.Priority = mapPriority(resp.Priority, clamp01(resp.Confidence.Priority))
	pred.IssueType, pred.Confidence.IssueType = mapIssueType(resp.ProblemType, clamp01(resp.Confidence.ProblemType))
	return pred, nil
}

// predict posts to /predict with exponential backoff. Connection errors and
// 5xx responses retry; 4xx is permanent.
func (g *Gateway) predict(ctx context.Context, req predictRequest) (*predictResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	var result *predictResponse
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			g.baseURL+"/predict", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := g.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return err
		}
		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("classifier returned %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("classifier returned %d", httpResp.StatusCode))
		}

		var parsed predictResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("malformed classifier response: %w", err))
		}
		result = &parsed
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// fallback is the prediction used when the upstream cannot be reached.
func fallback(cause error) *Prediction {
	return &Prediction{
		Category:      "General",
		Priority:      types.PriorityMedium,
		IssueType:     types.IssueComplex,
		Confidence:    Confidence{Category: 0.3, Priority: 0.3, IssueType: 0.3},
		Degraded:      true,
		DegradedCause: cause.Error(),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
