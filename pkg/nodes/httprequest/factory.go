package httprequest

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type HTTPRequestNodeFactory struct{}

func NewHTTPRequestNodeFactory() protocol.NodeFactory {
	return &HTTPRequestNodeFactory{}
}

func (f *HTTPRequestNodeFactory) ID() string {
	return "httprequest"
}

func (f *HTTPRequestNodeFactory) Name() string {
	return "HTTP Request"
}

func (f *HTTPRequestNodeFactory) Description() string {
	return "Performs HTTP requests with retry logic and success/error output ports"
}

func (f *HTTPRequestNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewHTTPRequestNode(id, config)
}

func (f *HTTPRequestNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request; supports templating against the execution context",
				"examples": []string{
					"https://api.example.com/users",
					"https://{{.variables.api_host}}/orders/{{.trigger_data.order_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers; values support templating",
				"examples": []map[string]any{
					{"Authorization": "Bearer {{.variables.api_token}}"},
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body; supports templating for dynamic content",
				"examples": []string{
					`{"status": "{{.nodes.classify.main.status}}"}`,
				},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
			"retries": map[string]any{
				"type":        "object",
				"description": "Retry configuration for failed requests",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":        "number",
						"description": "Total attempts including the initial request",
						"default":     1,
						"minimum":     1,
						"maximum":     10,
					},
					"delay": map[string]any{
						"type":        "number",
						"description": "Delay between retries in milliseconds",
						"default":     1000,
						"minimum":     0,
						"maximum":     30000,
					},
				},
			},
		},
		"required": []string{"url"},
	}
}
