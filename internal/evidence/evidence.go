// Package evidence finds the newest capture image in the alerts folder and
// decodes the detection label stored in its EXIF ImageDescription tag.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	logx "alertbot/pkg/logx"

	"github.com/rwcarlsen/goexif/exif"
)

var (
	ErrNoFolder = errors.New("evidence folder does not exist")
	ErrNoImages = errors.New("no .jpg evidence images found")
)

// Labels used when the image carries no usable description.
const (
	LabelNothing = "nothing found"
	LabelError   = "error"
)

// Event is one evidence artifact. It is produced per notifier run and never persisted.
type Event struct {
	Label      string
	Confidence string
	Timestamp  time.Time
	// ImageRef is the file base name; public URLs are built from it.
	ImageRef string
	Path     string
}

// Key identifies the artifact version; a rewritten file with the same name gets a new key.
func (e Event) Key() string {
	if e.ImageRef == "" {
		return ""
	}
	return e.ImageRef + "@" + strconv.FormatInt(e.Timestamp.UnixNano(), 10)
}

// Source reads evidence from a folder.
type Source struct {
	folder string
	log    logx.Logger
}

func NewSource(folder string, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{folder: folder, log: log}
}

func (s *Source) Folder() string { return s.folder }

// Latest returns the most recently modified .jpg in the folder.
func (s *Source) Latest(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	st, err := os.Stat(s.folder)
	if err != nil || !st.IsDir() {
		return Event{}, fmt.Errorf("%w: %s", ErrNoFolder, s.folder)
	}
	entries, err := os.ReadDir(s.folder)
	if err != nil {
		return Event{}, fmt.Errorf("read evidence folder: %w", err)
	}

	var (
		newest  fs.FileInfo
		checked int
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		checked++
		if newest == nil || info.ModTime().After(newest.ModTime()) ||
			(info.ModTime().Equal(newest.ModTime()) && info.Name() > newest.Name()) {
			newest = info
		}
	}
	s.log.Debug("evidence scan", logx.String("folder", s.folder), logx.Int("images", checked))
	if newest == nil {
		return Event{}, fmt.Errorf("%w in %s", ErrNoImages, s.folder)
	}

	path := filepath.Join(s.folder, newest.Name())
	ev := Event{
		Timestamp: newest.ModTime().UTC(),
		ImageRef:  newest.Name(),
		Path:      path,
	}
	desc, err := ReadDescription(path)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		s.log.Warn("evidence image unreadable", logx.String("path", path), logx.Err(err))
		ev.Label = LabelError
	case err != nil:
		s.log.Debug("evidence image has no usable exif", logx.String("path", path), logx.Err(err))
		ev.Label = LabelNothing
	default:
		ev.Label, ev.Confidence = ParseDescription(desc)
	}
	return ev, nil
}

// ReadDescription returns the EXIF ImageDescription of a JPEG file.
func ReadDescription(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode exif: %w", err)
	}
	tag, err := x.Get(exif.ImageDescription)
	if err != nil {
		return "", fmt.Errorf("image description: %w", err)
	}
	v, err := tag.StringVal()
	if err != nil {
		return "", fmt.Errorf("image description: %w", err)
	}
	return strings.TrimRight(v, "\x00"), nil
}

// ParseDescription splits a "label:confidence" description on its first colon.
// A description without a colon has confidence "0%"; an empty one means nothing was detected.
func ParseDescription(desc string) (label, confidence string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return LabelNothing, ""
	}
	label, confidence, ok := strings.Cut(desc, ":")
	if !ok {
		return desc, "0%"
	}
	return strings.TrimSpace(label), strings.TrimSpace(confidence)
}
