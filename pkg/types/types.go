package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// CameraSettings is a raw V4L2 control snapshot, id -> value.
type CameraSettings map[v4l2.CtrlID]v4l2.CtrlValue

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// Source tells which path produced an artifact.
type Source string

const (
	SourceFrame     Source = "frame"
	SourceURL       Source = "url"
	SourceProductDB Source = "product-db"
	SourceRecording Source = "recording"
	SourceUpload    Source = "upload"
)

// Artifact is the single image or video produced by a scanning session.
// The receiver owns Data once it has been handed over.
type Artifact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MIME      string    `json:"mime"`
	Kind      MediaKind `json:"kind"`
	Source    Source    `json:"source"`
	Code      string    `json:"code,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`

	Data []byte `json:"-"`
}

func NewArtifact(name, mime string, source Source, data []byte) Artifact {
	kind, _ := KindOf(mime)
	return Artifact{
		ID:        uuid.NewString(),
		Name:      name,
		MIME:      mime,
		Kind:      kind,
		Source:    source,
		Size:      len(data),
		CreatedAt: time.Now(),
		Data:      data,
	}
}

func KindOf(mime string) (MediaKind, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage, true
	case strings.HasPrefix(mime, "video/"):
		return KindVideo, true
	}

	return "", false
}
