package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sigweihq/walletbridge/pkg/utils"
)

// HTTPHost posts request envelopes to a wallet agent listening over HTTP
type HTTPHost struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// NewHTTPHost creates a host for the agent at url. Plain HTTP is only accepted on loopback.
func NewHTTPHost(url string, client *http.Client, headers map[string]string) (*HTTPHost, error) {
	if err := utils.ValidateHostURL(url); err != nil {
		return nil, err
	}
	if client == nil {
		client = utils.CreateHTTPClientWithTimeouts()
	}
	return &HTTPHost{
		url:     url,
		client:  client,
		headers: headers,
	}, nil
}

// PostMessage implements Host
func (h *HTTPHost) PostMessage(ctx context.Context, msg []byte) ([]byte, error) {
	result, err := utils.MakeJSONRequest[json.RawMessage](ctx, h.client, http.MethodPost, h.url, msg, h.headers, "bridge")
	if err != nil {
		// Agents report wallet errors with a non-2xx status and an {error} body.
		// Pass that body through so it surfaces as a HostError.
		var httpErr *utils.HTTPError
		if errors.As(err, &httpErr) && hasErrorField(httpErr.Body) {
			return httpErr.Body, nil
		}
		return nil, fmt.Errorf("agent %s: %w", h.url, err)
	}
	return *result, nil
}

func hasErrorField(body []byte) bool {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return hasError(env.Error)
}
