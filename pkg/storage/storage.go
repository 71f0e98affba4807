// Package storage keeps every delivered artifact on disk, images and videos
// in their own directories, with an info.json index at the root.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"product-scanner/pkg/storage/consts"
	"product-scanner/pkg/storage/util"
	"product-scanner/pkg/types"
)

var ErrNotFound = errors.New("artifact not found")

// Record describes one stored artifact.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	MIME      string          `json:"mime"`
	Kind      types.MediaKind `json:"kind"`
	Source    types.Source    `json:"source"`
	Code      string          `json:"code,omitempty"`
	Bytes     int64           `json:"bytes"`
	Size      string          `json:"size"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Info struct {
	MaxNumber int      `json:"maxNumber"`
	Latest    string   `json:"latest"`
	Records   []Record `json:"records"`

	UpdateAt time.Time `json:"updateAt"`
}

type Storage struct {
	lock    sync.Mutex
	rootDir string
}

func New(rootDir string) (*Storage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("storage path can not be empty")
	}
	s := &Storage{rootDir: rootDir}
	err := util.MkdirAll(
		s.dirOf(types.KindImage),
		s.dirOf(types.KindVideo),
	)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(s.infoPath()); os.IsNotExist(err) {
		return s, s.dumpInfo(&Info{Records: []Record{}})
	}

	return s, err
}

func (s *Storage) Dir() string {
	return s.rootDir
}

// Save writes the artifact and indexes it. Stored names are numbered so two
// scans of the same product never overwrite each other.
func (s *Storage) Save(a types.Artifact) (Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.loadInfo()
	if err != nil {
		return Record{}, err
	}
	kind := a.Kind
	if kind == "" {
		kind, _ = types.KindOf(a.MIME)
	}
	if kind == "" {
		return Record{}, fmt.Errorf("artifact %s has no media kind", a.Name)
	}
	name := s.generateName(a, kind, info.MaxNumber)
	if err = os.WriteFile(path.Join(s.dirOf(kind), name), a.Data, consts.DefaultFilePerm); err != nil {
		return Record{}, err
	}

	r := Record{
		ID:        a.ID,
		Name:      name,
		MIME:      a.MIME,
		Kind:      kind,
		Source:    a.Source,
		Code:      a.Code,
		Bytes:     int64(len(a.Data)),
		Size:      humanize.Bytes(uint64(len(a.Data))),
		CreatedAt: a.CreatedAt,
	}
	info.MaxNumber++
	info.Latest = name
	info.Records = append(info.Records, r)
	if err = s.dumpInfo(info); err != nil {
		return Record{}, err
	}

	return r, nil
}

// List returns the records, newest first.
func (s *Storage) List() ([]Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := s.loadInfo()
	if err != nil {
		return nil, err
	}
	res := make([]Record, 0, len(info.Records))
	for i := len(info.Records) - 1; i >= 0; i-- {
		res = append(res, info.Records[i])
	}

	return res, nil
}

func (s *Storage) Latest() (Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := s.loadInfo()
	if err != nil {
		return Record{}, err
	}
	if info.Latest == "" {
		return Record{}, ErrNotFound
	}

	return find(info, info.Latest)
}

// Open returns the record and the path of its file.
func (s *Storage) Open(name string) (Record, string, error) {
	if err := util.CheckName(name); err != nil {
		return Record{}, "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := s.loadInfo()
	if err != nil {
		return Record{}, "", err
	}
	r, err := find(info, name)
	if err != nil {
		return Record{}, "", err
	}

	return r, path.Join(s.dirOf(r.Kind), r.Name), nil
}

func (s *Storage) Delete(name string) error {
	if err := util.CheckName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := s.loadInfo()
	if err != nil {
		return err
	}
	r, err := find(info, name)
	if err != nil {
		return err
	}
	if err = os.Remove(path.Join(s.dirOf(r.Kind), r.Name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	kept := info.Records[:0]
	for _, rec := range info.Records {
		if rec.Name != name {
			kept = append(kept, rec)
		}
	}
	info.Records = kept
	if info.Latest == name {
		info.Latest = ""
		if n := len(kept); n > 0 {
			info.Latest = kept[n-1].Name
		}
	}

	return s.dumpInfo(info)
}

func find(info *Info, name string) (Record, error) {
	for _, r := range info.Records {
		if r.Name == name {
			return r, nil
		}
	}

	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (s *Storage) generateName(a types.Artifact, kind types.MediaKind, number int) string {
	ext := path.Ext(a.Name)
	if ext == "" {
		ext = consts.DefaultImageExt
		if kind == types.KindVideo {
			ext = consts.DefaultVideoExt
		}
	}
	return fmt.Sprintf("%s-%d-%s%s", consts.ArtifactPrefix, number, a.Source, ext)
}

func (s *Storage) loadInfo() (*Info, error) {
	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		return nil, fmt.Errorf("read storage info err: %w", err)
	}
	info := &Info{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal storage info err: %w", err)
	}

	return info, nil
}

func (s *Storage) dumpInfo(info *Info) error {
	info.UpdateAt = time.Now()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(s.infoPath(), data, consts.DefaultFilePerm)
}

func (s *Storage) infoPath() string {
	return path.Join(s.rootDir, consts.DefaultInfoFile)
}

func (s *Storage) dirOf(kind types.MediaKind) string {
	if kind == types.KindVideo {
		return path.Join(s.rootDir, consts.DefaultVideosDir)
	}
	return path.Join(s.rootDir, consts.DefaultImagesDir)
}
