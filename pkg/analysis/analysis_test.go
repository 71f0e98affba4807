package analysis

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-scanner/pkg/types"
)

func TestAnalyze(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"name\":"},{"text":"\"cola\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/v1beta/", Model: "gemini-2.5-flash", APIKey: "secret"}, srv.Client())
	a := types.NewArtifact("scanned-product.jpg", "image/jpeg", types.SourceFrame, []byte{0xff, 0xd8, 0xff})

	res, err := c.Analyze(context.Background(), a, ScanContext("0123456789012"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"cola"}`, res.Text)
	assert.Contains(t, string(res.Raw), "candidates")

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(a.Data), parts[0].InlineData.Data)
	assert.Equal(t, "Detected Barcode/QR Code content: 0123456789012. Please use this to identify the exact product.", parts[1].Text)
}

func TestAnalyzeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	a := types.NewArtifact("a.jpg", "image/jpeg", types.SourceUpload, []byte{1})
	_, err := New(Config{Endpoint: srv.URL, Model: "m"}, nil).Analyze(context.Background(), a, "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c := New(Config{Endpoint: srv.URL, Model: "m", APIKey: "k"}, srv.Client())
	_, err = c.Analyze(context.Background(), types.Artifact{}, "")
	assert.ErrorIs(t, err, ErrNoArtifact)

	_, err = c.Analyze(context.Background(), a, "")
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "API key not valid")
}
