package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable wraps every failure of the remote inference service.
var ErrUnavailable = errors.New("inference service unavailable")

// RemoteClient calls the external inference service over HTTP behind a
// circuit breaker.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Result]
}

type ClientOption func(*RemoteClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(rc *RemoteClient) { rc.httpClient = c }
}

// BreakerSettings configures when the breaker opens and how long it stays open.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	Cooldown            time.Duration
	OnStateChange       func(name string, from, to gobreaker.State)
}

func WithBreaker(s BreakerSettings) ClientOption {
	return func(rc *RemoteClient) { rc.breaker = newBreaker(s) }
}

func newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*Result] {
	failures := s.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: s.OnStateChange,
	})
}

func NewRemoteClient(baseURL string, opts ...ClientOption) *RemoteClient {
	rc := &RemoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(rc)
	}
	if rc.breaker == nil {
		rc.breaker = newBreaker(BreakerSettings{Cooldown: 30 * time.Second})
	}
	return rc
}

type remotePrediction struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	IsTop       bool    `json:"is_top_prediction"`
}

type predictResponse struct {
	Success        bool               `json:"success"`
	PredictedCode  string             `json:"predicted_code"`
	Confidence     float64            `json:"confidence"`
	TopPredictions []remotePrediction `json:"top_predictions"`
	ModelType      string             `json:"model_type"`
	Error          string             `json:"error"`
}

// Predict posts f to /predict. Any transport error, non-2xx status, error
// field or missing success flag in the body is returned wrapped in ErrUnavailable. While the breaker is
// open calls fail immediately.
func (rc *RemoteClient) Predict(ctx context.Context, f Features) (*Result, error) {
	res, err := rc.breaker.Execute(func() (*Result, error) {
		return rc.predict(ctx, f)
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

func (rc *RemoteClient) predict(ctx context.Context, f Features) (*Result, error) {
	if f.Symptoms == nil {
		f.Symptoms = []string{}
	}
	if f.Medications == nil {
		f.Medications = []string{}
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, pr.Error)
	}
	if !pr.Success {
		return nil, fmt.Errorf("%w: response not marked successful", ErrUnavailable)
	}

	return &Result{Predictions: normalize(pr.TopPredictions), Source: SourceRemote}, nil
}

// normalize converts percent confidences to [0,1], drops blank codes and
// orders by confidence descending. The sort is stable so ties keep the
// service's order.
func normalize(in []remotePrediction) []Prediction {
	percent := false
	for _, p := range in {
		if p.Confidence > 1 {
			percent = true
			break
		}
	}

	out := make([]Prediction, 0, len(in))
	for _, p := range in {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			continue
		}
		conf := p.Confidence
		if percent {
			conf /= 100
		}
		out = append(out, Prediction{Code: code, Description: p.Description, Confidence: clamp(conf)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HealthStatus is the inference service's /health body plus the breaker state.
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Breaker     string `json:"breaker"`
}

// Health calls GET /health on the inference service. It bypasses the breaker.
func (rc *RemoteClient) Health(ctx context.Context) (*HealthStatus, error) {
	hs := &HealthStatus{Breaker: rc.breaker.State().String()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.baseURL+"/health", nil)
	if err != nil {
		return hs, err
	}
	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return hs, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return hs, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(hs); err != nil {
		return hs, fmt.Errorf("decode health response: %w", err)
	}
	return hs, nil
}
