// Package resolve turns a confirmed code into an image artifact. A code that
// is an http(s) URL is fetched directly, a numeric code is looked up in the
// product databases, and everything else, or any failure on the way, falls
// back to a frame sampled from the live stream.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"

	"product-scanner/pkg/types"
	"product-scanner/pkg/utils"
)

var logger = utils.GetLogger().Named("resolve")

var (
	ErrCouldNotCapture = errors.New("could not capture product image")
	ErrNotImage        = errors.New("response is not an image")
	ErrNoProduct       = errors.New("no product record")
	ErrNoImageURL      = errors.New("product has no image")
	ErrTooLarge        = errors.New("response body too large")
)

// Sampler produces the fallback artifact from the live stream.
type Sampler func() (types.Artifact, error)

type Config struct {
	Timeout       time.Duration
	MaxImageBytes int64
	// Endpoints are URL templates with a single %s for the barcode.
	Endpoints []string
	UserAgent string
}

type Resolver struct {
	cfg    Config
	client *http.Client
}

// New builds a resolver. A nil client uses one with cfg.Timeout.
func New(cfg Config, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 16 << 20
	}
	return &Resolver{cfg: cfg, client: client}
}

// Resolve produces an artifact for code. Only the fallback's failure is
// reported, as ErrCouldNotCapture.
func (r *Resolver) Resolve(ctx context.Context, code string, sample Sampler) (types.Artifact, error) {
	switch {
	case IsURL(code):
		a, err := r.fetchImage(ctx, code, types.SourceURL)
		if err == nil {
			a.Code = code
			return a, nil
		}
		logger.Infof("code url %s: %v, sampling frame", code, err)
	case IsNumeric(code):
		a, err := r.lookup(ctx, code)
		if err == nil {
			a.Code = code
			return a, nil
		}
		logger.Infof("barcode %s: %v, sampling frame", code, err)
	}
	if err := ctx.Err(); err != nil {
		return types.Artifact{}, err
	}

	a, err := sample()
	if err != nil {
		return types.Artifact{}, fmt.Errorf("%w: %v", ErrCouldNotCapture, err)
	}
	a.Code = code

	return a, nil
}

// IsURL reports whether code is an absolute http or https URL.
func IsURL(code string) bool {
	u, err := url.Parse(code)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func IsNumeric(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type productResponse struct {
	Status  int `json:"status"`
	Product *struct {
		ImageURL      string `json:"image_url"`
		ImageFrontURL string `json:"image_front_url"`
	} `json:"product"`
}

func (r *Resolver) lookup(ctx context.Context, code string) (types.Artifact, error) {
	var errs []error
	for _, tpl := range r.cfg.Endpoints {
		imageURL, err := r.productImage(ctx, fmt.Sprintf(tpl, code))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a, err := r.fetchImage(ctx, imageURL, types.SourceProductDB)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return a, nil
	}
	if len(errs) == 0 {
		return types.Artifact{}, ErrNoProduct
	}

	return types.Artifact{}, errors.Join(errs...)
}

func (r *Resolver) productImage(ctx context.Context, endpoint string) (string, error) {
	body, _, err := r.get(ctx, endpoint, "application/json")
	if err != nil {
		return "", err
	}
	var resp productResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if resp.Product == nil {
		return "", fmt.Errorf("%w at %s", ErrNoProduct, endpoint)
	}
	switch {
	case resp.Product.ImageURL != "":
		return resp.Product.ImageURL, nil
	case resp.Product.ImageFrontURL != "":
		return resp.Product.ImageFrontURL, nil
	}

	return "", fmt.Errorf("%w at %s", ErrNoImageURL, endpoint)
}

func (r *Resolver) fetchImage(ctx context.Context, rawURL string, source types.Source) (types.Artifact, error) {
	body, contentType, err := r.get(ctx, rawURL, "image/*")
	if err != nil {
		return types.Artifact{}, err
	}
	mime := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(body).String()
	}
	if kind, ok := types.KindOf(mime); !ok || kind != types.KindImage {
		return types.Artifact{}, fmt.Errorf("%w: %s is %q", ErrNotImage, rawURL, mime)
	}

	return types.NewArtifact(fileName(rawURL, mime), mime, source, body), nil
}

func (r *Resolver) get(ctx context.Context, rawURL, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", accept)
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > r.cfg.MaxImageBytes {
		return nil, "", fmt.Errorf("%w: %s", ErrTooLarge, rawURL)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// fileName keeps the URL's base name when it has one and falls back to a
// generic name with an extension matching mime.
func fileName(rawURL, mime string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && path.Ext(base) != "" {
			return base
		}
	}
	ext := ".jpg"
	if m := mimetype.Lookup(mime); m != nil {
		ext = m.Extension()
	}
	return "product-image" + ext
}
