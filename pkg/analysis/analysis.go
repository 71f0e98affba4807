// Package analysis submits one artifact and a free-text context to a
// generative model and returns its answer untouched.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"product-scanner/pkg/types"
	"product-scanner/pkg/utils"
)

var logger = utils.GetLogger().Named("analysis")

var (
	ErrNoAPIKey   = errors.New("analysis api key is not configured")
	ErrNoArtifact = errors.New("nothing to analyze")
	ErrFailed     = errors.New("analysis failed")
)

// ScanContext is the context handed to the model for a scanned code.
func ScanContext(code string) string {
	return fmt.Sprintf("Detected Barcode/QR Code content: %s. Please use this to identify the exact product.", code)
}

type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, client: client}
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type request struct {
	Contents []content `json:"contents"`
}

// Result is the model's raw response plus the concatenated text parts of its
// first candidate.
type Result struct {
	Model string          `json:"model"`
	Text  string          `json:"text"`
	Raw   json.RawMessage `json:"raw"`
}

type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Analyze(ctx context.Context, a types.Artifact, text string) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, ErrNoAPIKey
	}
	if len(a.Data) == 0 {
		return Result{}, ErrNoArtifact
	}

	parts := []part{{InlineData: &inlineData{MIMEType: a.MIME, Data: base64.StdEncoding.EncodeToString(a.Data)}}}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, part{Text: text})
	}
	body, err := json.Marshal(request{Contents: []content{{Role: "user", Parts: parts}}})
	if err != nil {
		return Result{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.Endpoint, "/"), url.PathEscape(c.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrFailed, err)
	}

	var out response
	if err = json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%w: status %d: %v", ErrFailed, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrFailed, resp.StatusCode, msg)
	}
	logger.Infof("analyzed %s (%s, %d bytes) in %s", a.Name, a.MIME, len(a.Data), time.Since(start).Round(time.Millisecond))

	res := Result{Model: c.cfg.Model, Raw: raw}
	if len(out.Candidates) > 0 {
		var sb strings.Builder
		for _, p := range out.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		res.Text = sb.String()
	}

	return res, nil
}
