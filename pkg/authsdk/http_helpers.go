package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/httpx"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// doJSON performs one REST call. refreshJWT selects a user-scoped bearer
// value; pass "" for anonymous calls. in is JSON encoded when non-nil and
// the response is decoded into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path, refreshJWT string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("authsdk: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("authsdk: create request: %w", err)
	}
	req.Header.Set("Authorization", httpx.FormatBearer(c.projectID, refreshJWT))
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: "read " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &DecodeError{Message: "empty response from " + path}
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.policy.Tagged(ctx, "debug", "undecodable response", "path", path, "body", string(data))
		return &DecodeError{Message: "invalid response from " + path, Err: err}
	}
	return nil
}
