package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"earmark/internal/api"
	"earmark/internal/archive"
	"earmark/internal/segment"
)

// apiClient talks to a running earmarkd over HTTP.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(address string) *apiClient {
	address = strings.TrimSpace(address)
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return &apiClient{
		base: strings.TrimRight(address, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *apiClient) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("earmarkd unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *apiClient) status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.getJSON(ctx, "/api/status", &out)
	return out, err
}

func (c *apiClient) segments(ctx context.Context) ([]*segment.Segment, error) {
	var out struct {
		Segments []*segment.Segment `json:"segments"`
	}
	err := c.getJSON(ctx, "/api/segments", &out)
	return out.Segments, err
}

func (c *apiClient) start(ctx context.Context) error {
	return c.postJSON(ctx, "/api/stream/start", nil, nil)
}

func (c *apiClient) pause(ctx context.Context) error {
	return c.postJSON(ctx, "/api/stream/pause", nil, nil)
}

// watch consumes the live stream, invoking fn per update until ctx ends or
// the server closes the connection.
func (c *apiClient) watch(ctx context.Context, fn func(archive.StreamView)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/stream", nil)
	if err != nil {
		return err
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("earmarkd unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d from stream endpoint", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var view archive.StreamView
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &view); err != nil {
			continue
		}
		fn(view)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
