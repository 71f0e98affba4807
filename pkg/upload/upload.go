// Package upload accepts user supplied images and videos when no camera is
// available.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"product-scanner/pkg/storage/util"
	"product-scanner/pkg/types"
)

var (
	ErrUnsupportedMedia = errors.New("only image and video files are accepted")
	ErrTooLarge         = errors.New("file too large")
	ErrEmpty            = errors.New("file is empty")
)

const fallbackName = "upload"

// Accept reads at most limit bytes from r and turns them into an artifact.
// The content is sniffed; the declared type only decides between image and
// video when sniffing finds neither, so a renamed text file is still refused.
func Accept(r io.Reader, name, declared string, limit int64) (types.Artifact, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return types.Artifact{}, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return types.Artifact{}, ErrEmpty
	}
	if n > limit {
		return types.Artifact{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	data := buf.Bytes()
	mime := Detect(data, declared)
	if _, ok := types.KindOf(mime); !ok {
		return types.Artifact{}, fmt.Errorf("%w: got %s", ErrUnsupportedMedia, mime)
	}

	return types.NewArtifact(util.CleanName(name, fallbackName+extension(mime)), mime, types.SourceUpload, data), nil
}

func extension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}

// Detect returns the media type of data. A generic sniff result defers to
// the declared type when that one names an image or video.
func Detect(data []byte, declared string) string {
	m := mimetype.Detect(data)
	for p := m; p != nil; p = p.Parent() {
		if _, ok := types.KindOf(p.String()); ok {
			return p.String()
		}
	}
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if m.Is("application/octet-stream") {
		if _, ok := types.KindOf(declared); ok {
			return declared
		}
	}

	return m.String()
}
