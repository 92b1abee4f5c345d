package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// HTTPExecutor issues requests to the Agent's local on-host REST API. An
// empty BaseURL means "no endpoint registered" and every call reports
// status ERROR with error_code NOT_CONFIGURED rather than attempting a
// request.
type HTTPExecutor struct {
	cfg    config.LocalHTTP
	client *http.Client
}

// NewHTTPExecutor constructs an HTTPExecutor from the Agent's local-HTTP
// configuration.
func NewHTTPExecutor(cfg config.LocalHTTP) *HTTPExecutor {
	return &HTTPExecutor{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Call issues req against the configured local endpoint and maps the
// outcome onto an APIResponse: SUCCESS (2xx), ERROR (non-2xx), TIMEOUT,
// or CONNECTION_ERROR. An unconfigured endpoint is reported as ERROR with
// error_code NOT_CONFIGURED.
func (e *HTTPExecutor) Call(ctx context.Context, req *wire.APIRequest) *wire.APIResponse {
	start := time.Now()
	resp := &wire.APIResponse{
		Envelope:  wire.Envelope{Type: wire.TypeAPIResponse, Timestamp: time.Now()},
		RequestID: req.RequestID,
	}

	if e.cfg.BaseURL == "" {
		resp.Status = wire.StatusError
		resp.ErrorCode = "NOT_CONFIGURED"
		resp.ErrorMessage = "no local HTTP endpoint is configured"
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	target, err := e.buildURL(req.Endpoint, req.QueryParams)
	if err != nil {
		resp.Status = wire.StatusError
		resp.ErrorMessage = err.Error()
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			resp.Status = wire.StatusError
			resp.ErrorMessage = fmt.Sprintf("encoding request body: %v", err)
			resp.ExecutionTimeMs = time.Since(start).Milliseconds()
			return resp
		}
		bodyReader = bytes.NewReader(data)
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, strings.ToUpper(req.Method), target, bodyReader)
	if err != nil {
		resp.Status = wire.StatusError
		resp.ErrorMessage = fmt.Sprintf("building request: %v", err)
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	e.applyCredentials(httpReq)

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		if callCtx.Err() == context.DeadlineExceeded {
			resp.Status = wire.StatusTimeout
			resp.ErrorMessage = "request exceeded its deadline"
			return resp
		}
		resp.Status = wire.StatusConnectionError
		resp.ErrorMessage = err.Error()
		return resp
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		resp.Status = wire.StatusError
		resp.ErrorMessage = fmt.Sprintf("reading response body: %v", err)
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	resp.StatusCode = httpResp.StatusCode
	resp.Headers = flattenHeader(httpResp.Header)
	resp.Body = parseBody(bodyBytes, httpResp.Header.Get("Content-Type"))
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		resp.Status = wire.StatusSuccess
	} else {
		resp.Status = wire.StatusError
		resp.ErrorMessage = fmt.Sprintf("local endpoint returned HTTP %d", httpResp.StatusCode)
	}
	return resp
}

func (e *HTTPExecutor) buildURL(endpoint string, query map[string]string) (string, error) {
	base, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("executor: invalid local HTTP base_url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("executor: invalid endpoint %q: %w", endpoint, err)
	}
	full := base.ResolveReference(ref)

	if len(query) > 0 {
		q := full.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		full.RawQuery = q.Encode()
	}
	return full.String(), nil
}

func (e *HTTPExecutor) applyCredentials(req *http.Request) {
	if e.cfg.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.Bearer)
	} else if e.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", e.cfg.APIKey)
	}
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// parseBody returns the response body as a parsed structured value when
// the content type indicates JSON, otherwise as a plain string.
func parseBody(body []byte, contentType string) any {
	if strings.Contains(contentType, "application/json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}
