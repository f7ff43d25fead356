// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// maxResponseBytes caps how much of a response body a node keeps.
const maxResponseBytes = 8 << 20

func httpRequestEntry() registry.Entry {
	return registry.Entry{
		Type:        "http_request",
		Description: "Performs an HTTP request and captures status, headers, and body.",
		Inputs: registry.Shape{
			"url":     {Type: registry.TypeString, Required: true},
			"method":  {Type: registry.TypeString, Description: "HTTP method, GET when omitted"},
			"body":    {Type: registry.TypeString, Description: "request body"},
			"headers": {Type: registry.TypeMap, Description: "request headers"},
		},
		Outputs: registry.Shape{
			"status":  {Type: registry.TypeNumber, Description: "response status code"},
			"body":    {Type: registry.TypeString, Description: "response body, capped at 8 MiB"},
			"headers": {Type: registry.TypeMap, Description: "response headers, first value per key"},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			client := env.HTTPClient
			if client == nil {
				client = &http.Client{Timeout: 30 * time.Second}
			}
			return node.CoreFunc(func(ctx context.Context, call *node.Call) (node.Result, error) {
				url, err := requiredString(call, "url")
				if err != nil {
					return node.Result{}, err
				}
				method, err := optString(call, "method", http.MethodGet)
				if err != nil {
					return node.Result{}, err
				}
				method = strings.ToUpper(method)
				body, err := optString(call, "body", "")
				if err != nil {
					return node.Result{}, err
				}

				var reader io.Reader
				if body != "" {
					reader = strings.NewReader(body)
				}
				req, err := http.NewRequestWithContext(ctx, method, url, reader)
				if err != nil {
					return node.Result{}, types.Errorf(types.CategoryParam, "building request for %q: %v", url, err).WithCause(err)
				}
				if hv, ok := call.Param("headers"); ok && !hv.IsNull() {
					hm, ok := hv.AsMap()
					if !ok {
						return node.Result{}, types.Errorf(types.CategoryParam, "param %q expects a map, got %s", "headers", hv.Kind())
					}
					for k, v := range hm {
						req.Header.Set(k, v.Text())
					}
				}

				resp, err := client.Do(req)
				if err != nil {
					return node.Result{}, fmt.Errorf("%s %s: %w", method, url, err)
				}
				defer resp.Body.Close()

				data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
				if err != nil {
					return node.Result{}, fmt.Errorf("reading response from %s: %w", url, err)
				}

				headers := make(map[string]types.Value, len(resp.Header))
				for k, vals := range resp.Header {
					if len(vals) > 0 {
						headers[k] = types.NewString(vals[0])
					}
				}
				call.Store.Set("status", types.NewInt(resp.StatusCode))
				call.Store.Set("body", types.NewString(string(data)))
				call.Store.Set("headers", types.NewMap(headers))

				if resp.StatusCode >= http.StatusBadRequest {
					return node.Result{}, fmt.Errorf("%s %s returned status %d %s",
						method, url, resp.StatusCode, http.StatusText(resp.StatusCode))
				}
				return node.Result{}, nil
			}), nil
		},
	}
}
