package respbank

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Encoder turns texts into fixed-width embedding vectors. Vectors are not
// required to be normalized; the index normalizes before insertion.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
}

// HashEncoder is the default in-process encoder: deterministic feature
// hashing over unigrams and adjacent bigrams. Not as good as learned
// embeddings, but stable across runs and needs no network.
type HashEncoder struct {
	dims int
}

// NewHashEncoder returns a hash encoder with the given dimensionality.
func NewHashEncoder(dims int) *HashEncoder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEncoder{dims: dims}
}

func (e *HashEncoder) Dims() int { return e.dims }

func (e *HashEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.hashVector(t)
	}
	return out, nil
}

func (e *HashEncoder) hashVector(text string) []float32 {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))

	features := make(map[string]int, len(words)*2)
	for _, w := range words {
		features[w]++
	}
	for i := 0; i < len(words)-1; i++ {
		features[words[i]+" "+words[i+1]]++
	}

	vec := make([]float32, e.dims)
	for feature, count := range features {
		h := sha256.Sum256([]byte(feature))
		idx := (int(h[0])<<8 | int(h[1])) % e.dims
		sign := float32(1)
		if h[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign * float32(count)
	}
	normalize(vec)
	return vec
}

// HTTPEncoder calls an external embedding service. Selection between hash
// and http happens at config time; there is no runtime fallback.
type HTTPEncoder struct {
	url    string
	dims   int
	client *http.Client
}

// NewHTTPEncoder returns an encoder posting to url. dims must match what
// the service produces; it is verified on the first response.
func NewHTTPEncoder(url string, dims int) *HTTPEncoder {
	if dims <= 0 {
		dims = 256
	}
	return &HTTPEncoder{
		url:    url,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPEncoder) Dims() int { return e.dims }

func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]any{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal encode request: %w", err)
	}

	var embeddings [][]float32
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("encoder returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("encoder returned %d", resp.StatusCode))
		}

		var parsed struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("malformed encoder response: %w", err))
		}
		embeddings = parsed.Embeddings
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d embeddings for %d texts", len(embeddings), len(texts))
	}
	for _, v := range embeddings {
		if len(v) != e.dims {
			return nil, fmt.Errorf("encoder returned %d dims, want %d", len(v), e.dims)
		}
	}
	return embeddings, nil
}

// normalize scales vec to unit L2 length in place. Zero vectors are left
// untouched.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

// cosine is the inner product of two unit vectors.
func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
