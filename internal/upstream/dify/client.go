package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const runPath = "/v1/workflows/run"

// ErrUnavailable indicates the workflow API could not be reached or timed out
// before an HTTP exchange completed.
var ErrUnavailable = errors.New("dify unavailable")

// Client invokes the Dify workflow API in blocking mode.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client. The timeout bounds the whole exchange; zero
// falls back to 30s.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RunInput carries the analyze request into the workflow's input fields.
type RunInput struct {
	Document string
	Platform string
	User     string
}

type runRequest struct {
	Inputs       runInputs `json:"inputs"`
	ResponseMode string    `json:"response_mode"`
	User         string    `json:"user"`
}

type runInputs struct {
	DocContent string `json:"doc_content"`
	DocType    string `json:"doc_type"`
}

// Run executes the workflow and returns the decoded response envelope.
// Transport and timeout failures return an error wrapping ErrUnavailable.
// Any completed HTTP exchange, whatever its status code, yields the envelope
// for the normalizer to interpret; an undecodable body yields a nil envelope,
// which the normalizer treats as an unrecognized shape.
func (c *Client) Run(ctx context.Context, in RunInput) (map[string]any, error) {
	payload, err := json.Marshal(runRequest{
		Inputs: runInputs{
			DocContent: in.Document,
			DocType:    in.Platform,
		},
		ResponseMode: "blocking",
		User:         in.User,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("%w: request timeout: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil
	}
	return envelope, nil
}
