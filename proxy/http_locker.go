package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLocker implements Locker against an orchestrator reachable over
// HTTPS (spec.md §6's "REST-style lock/unlock" protocol). No HTTP
// client library appears anywhere in the retrieval pack for this
// concern, so this is built directly on net/http -- the one ambient
// piece of this module without a third-party grounding, recorded in
// DESIGN.md.
type HTTPLocker struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPLocker returns a locker that issues lock/unlock requests
// against baseURL, using client if non-nil or http.DefaultClient
// otherwise.
func NewHTTPLocker(baseURL string, client *http.Client) *HTTPLocker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLocker{BaseURL: baseURL, Client: client}
}

type lockRequest struct {
	Resource    string  `json:"resource"`
	TimeoutSecs float64 `json:"timeout_secs"`
}

type lockResponse struct {
	NodeURL string `json:"node_url"`
	Error   string `json:"error"`
}

type unlockRequest struct {
	NodeURL string `json:"node_url"`
}

type unlockResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (h *HTTPLocker) Lock(ctx context.Context, resource string, timeout time.Duration) (string, error) {
	body, err := json.Marshal(lockRequest{Resource: resource, TimeoutSecs: timeout.Seconds()})
	if err != nil {
		return "", newErr(KindOrchestratorUnavailable, resource, err)
	}
	var out lockResponse
	if err := h.do(ctx, "/lock", body, &out); err != nil {
		return "", newErr(KindOrchestratorUnavailable, resource, err)
	}
	if out.Error != "" {
		return "", newErr(KindOrchestratorUnavailable, resource, fmt.Errorf("%s", out.Error))
	}
	return out.NodeURL, nil
}

func (h *HTTPLocker) Unlock(ctx context.Context, nodeURL string) error {
	body, err := json.Marshal(unlockRequest{NodeURL: nodeURL})
	if err != nil {
		return newErr(KindOrchestratorUnavailable, nodeURL, err)
	}
	var out unlockResponse
	if err := h.do(ctx, "/unlock", body, &out); err != nil {
		return newErr(KindOrchestratorUnavailable, nodeURL, err)
	}
	if !out.OK {
		return newErr(KindOrchestratorUnavailable, nodeURL, fmt.Errorf("%s", out.Error))
	}
	return nil
}

func (h *HTTPLocker) do(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator %s: status %d: %s", path, resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}
