package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Evaluator scores a captured agent reply. The production implementation
// forwards the audio to an external transcription/evaluation service; the
// executor only depends on the numeric score.
type Evaluator interface {
	Score(ctx context.Context, audioBase64, format string) (float64, error)
}

// NoopEvaluator skips scoring and always returns zero. Used when no
// evaluation endpoint is configured.
type NoopEvaluator struct{}

func (NoopEvaluator) Score(ctx context.Context, audioBase64, format string) (float64, error) {
	return 0, nil
}

// HTTPEvaluator posts the captured audio to a scoring endpoint and reads the
// numeric "score" field from the JSON response.
type HTTPEvaluator struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPEvaluator creates an evaluator with a 60s request timeout, which
// covers transcription plus model evaluation latency.
func NewHTTPEvaluator(endpoint string) *HTTPEvaluator {
	return &HTTPEvaluator{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *HTTPEvaluator) Score(ctx context.Context, audioBase64, format string) (float64, error) {
	body, err := json.Marshal(map[string]string{
		"audio":  audioBase64,
		"format": format,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding evaluation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building evaluation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling evaluator: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading evaluator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("evaluator returned %d: %s", resp.StatusCode, raw)
	}

	score := gjson.GetBytes(raw, "score")
	if !score.Exists() {
		return 0, fmt.Errorf("evaluator response missing score: %s", raw)
	}
	return score.Float(), nil
}
