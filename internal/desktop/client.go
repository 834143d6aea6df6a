// Package desktop talks to the GPU workstation that hosts the skin
// classifier and the face matcher.
package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrBadResponse = errors.New("desktop: bad response")

// maxBody bounds how much of a reply is read.
const maxBody = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Report is the classifier's answer for one skin image.
type Report struct {
	raw gjson.Result
}

// Text renders the report for the screen caption. Known summary fields are
// preferred; otherwise every top-level field is listed.
func (r *Report) Text() string {
	for _, key := range []string{"report", "diagnosis", "text", "summary"} {
		if v := r.raw.Get(key); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}

	if label := r.raw.Get("label"); label.Exists() {
		if conf := r.raw.Get("confidence"); conf.Exists() {
			return fmt.Sprintf("%s (%.0f%%)", label.String(), conf.Float()*100)
		}
		return label.String()
	}

	var parts []string
	r.raw.ForEach(func(k, v gjson.Result) bool {
		parts = append(parts, k.String()+": "+v.String())
		return true
	})
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Get returns a field of the raw report by gjson path.
func (r *Report) Get(path string) gjson.Result {
	return r.raw.Get(path)
}

// DiagnoseSkin posts the raw image bytes to /api/skin.
func (c *Client) DiagnoseSkin(ctx context.Context, image []byte) (*Report, error) {
	body, err := c.post(ctx, "/api/skin", nil, image)
	if err != nil {
		return nil, err
	}
	return ParseReport(body)
}

// ParseReport wraps a classifier reply, which must be a JSON object.
func ParseReport(body []byte) (*Report, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrBadResponse)
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return nil, fmt.Errorf("%w: skin report is not an object", ErrBadResponse)
	}
	return &Report{raw: res}, nil
}

// RegisterPatient stores a reference face for name.
func (c *Client) RegisterPatient(ctx context.Context, name string, image []byte) (bool, error) {
	body, err := c.post(ctx, "/api/patients", url.Values{"name": {name}}, image)
	if err != nil {
		return false, err
	}
	return flag(body, "registered")
}

// VerifyPatient compares image with the reference face of patient id.
func (c *Client) VerifyPatient(ctx context.Context, id string, image []byte) (bool, error) {
	body, err := c.post(ctx, "/api/patients/"+url.PathEscape(id)+"/verify", nil, image)
	if err != nil {
		return false, err
	}
	return flag(body, "match")
}

func (c *Client) post(ctx context.Context, path string, query url.Values, image []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("Desktop request failed", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadResponse, path, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", ErrBadResponse, path)
	}
	return body, nil
}

func flag(body []byte, key string) (bool, error) {
	v := gjson.GetBytes(body, key)
	if !v.Exists() {
		return false, fmt.Errorf("%w: missing %q", ErrBadResponse, key)
	}
	return v.Bool(), nil
}
