// Package httprequest provides HTTP request node implementation for workflow graph execution.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"
)

// HTTPRequestNode performs an outbound HTTP call with templated URL, headers
// and body. Server errors and network failures are retried; client errors
// (4xx) are not.
type HTTPRequestNode struct {
	id     string
	config RequestConfig
	client *http.Client
}

// RequestConfig defines the configuration for HTTP request nodes.
type RequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
	Timeout int               `json:"timeout"`
	Retries RetryConfig       `json:"retries"`
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int `json:"attempts"`
	Delay    int `json:"delay"`
}

func NewHTTPRequestNode(id string, config map[string]any) (*HTTPRequestNode, error) {
	requestConfig := RequestConfig{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: 30,
		Retries: RetryConfig{Attempts: 1, Delay: 0},
	}

	url, ok := config["url"].(string)
	if !ok {
		return nil, errors.New("missing required field 'url'")
	}

	requestConfig.URL = url

	if method, ok := config["method"].(string); ok {
		requestConfig.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strVal, ok := value.(string); ok {
				requestConfig.Headers[key] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		requestConfig.Body = body
	}

	if timeout, ok := config["timeout"].(float64); ok {
		requestConfig.Timeout = int(timeout)
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok {
			requestConfig.Retries.Attempts = int(attempts)
		}

		if delay, ok := retries["delay"].(float64); ok {
			requestConfig.Retries.Delay = int(delay)
		}
	}

	return &HTTPRequestNode{
		id:     id,
		config: requestConfig,
		client: &http.Client{
			Timeout: time.Duration(requestConfig.Timeout) * time.Second,
		},
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func (n *HTTPRequestNode) WithHTTPClient(client *http.Client) *HTTPRequestNode {
	n.client = client

	return n
}

func (n *HTTPRequestNode) ID() string {
	return n.id
}

func (n *HTTPRequestNode) Type() string {
	return "httprequest"
}

// Execute renders the request templates and performs the call with retries.
func (n *HTTPRequestNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	renderedURL, err := template.RenderWithContext(n.config.URL, executionCtx)
	if err != nil {
		return n.errorResult(fmt.Sprintf("failed to render URL template: %v", err)), nil
	}

	urlStr, ok := renderedURL.(string)
	if !ok {
		return n.errorResult("URL template must render to string"), nil
	}

	var renderedBody string

	if n.config.Body != "" {
		renderedBodyAny, err := template.RenderWithContext(n.config.Body, executionCtx)
		if err != nil {
			return n.errorResult(fmt.Sprintf("failed to render body template: %v", err)), nil
		}

		switch value := renderedBodyAny.(type) {
		case string:
			renderedBody = value
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				return n.errorResult(fmt.Sprintf("failed to encode body: %v", err)), nil
			}

			renderedBody = string(encoded)
		}
	}

	renderedHeaders := make(map[string]string, len(n.config.Headers))

	for key, value := range n.config.Headers {
		renderedValue, err := template.RenderWithContext(value, executionCtx)
		if err != nil {
			renderedHeaders[key] = value

			continue
		}

		if strVal, ok := renderedValue.(string); ok {
			renderedHeaders[key] = strVal
		} else {
			renderedHeaders[key] = fmt.Sprintf("%v", renderedValue)
		}
	}

	var lastErr error

	for attempt := 1; attempt <= n.config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(n.config.Retries.Delay) * time.Millisecond):
			}
		}

		result, err := n.performRequest(ctx, urlStr, renderedBody, renderedHeaders)
		if err == nil {
			return map[string]models.NodeResult{
				OutputPortSuccess: {
					NodeID:    n.id,
					Data:      result,
					Status:    string(models.NodeStatusSuccess),
					Timestamp: time.Now().UTC(),
				},
			}, nil
		}

		lastErr = err

		// Client errors are not retried.
		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			break
		}
	}

	return n.errorResult(fmt.Sprintf("HTTP request failed after %d attempt(s): %v", n.config.Retries.Attempts, lastErr)), nil
}

// HTTPError represents an HTTP error response with its status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (n *HTTPRequestNode) performRequest(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, n.config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}

// flattenHeaders keeps the first value per header so the result stays
// template-friendly and JSON round-trips cleanly.
func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))

	for key, values := range header {
		if len(values) > 0 {
			flattened[key] = values[0]
		}
	}

	return flattened
}

func (n *HTTPRequestNode) errorResult(errorMessage string) map[string]models.NodeResult {
	return map[string]models.NodeResult{
		OutputPortError: {
			NodeID:    n.id,
			Data:      map[string]any{"error": errorMessage},
			Status:    string(models.NodeStatusFailed),
			Error:     errorMessage,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (n *HTTPRequestNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the HTTP request",
			},
		},
	}
}

func (n *HTTPRequestNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Successful HTTP response data",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status_code": map[string]any{"type": "number"},
						"headers":     map[string]any{"type": "object"},
						"body":        map[string]any{"type": "string"},
						"json":        map[string]any{"type": "object"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the HTTP request fails",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func (n *HTTPRequestNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeAll,
	}
}
