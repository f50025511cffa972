package messaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

// vendorError is returned when a vendor API answers with a non-2xx status.
type vendorError struct {
	vendor string
	status int
	body   string
}

func (e *vendorError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.vendor, e.status, e.body)
}

func doRequest(client *http.Client, req *http.Request, vendor string, out interface{}) error {
	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", vendor, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: can't read response: %w", vendor, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &vendorError{vendor: vendor, status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: can't decode response: %w", vendor, err)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, vendor, endpoint string, header http.Header, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: %w", vendor, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", vendor, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doRequest(client, req, vendor, out)
}

func postForm(ctx context.Context, client *http.Client, vendor, endpoint string, header http.Header, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", vendor, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return doRequest(client, req, vendor, out)
}
