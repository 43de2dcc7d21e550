package internal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// MediaSource is an opened, probed video file.
type MediaSource struct {
	Path    string
	Exists  bool
	Looping bool
	MIME    string
	Info    MediaInfo
	Stream  afero.File

	closeOnce sync.Once
	closeErr  error
}

// OpenMediaSource opens path on fsys, sniffs its content type and probes the
// video timeline. The stream is left positioned at offset 0. All failures
// wrap ErrSourceUnavailable.
func OpenMediaSource(fsys afero.Fs, path string) (*MediaSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrSourceUnavailable)
	}
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSourceUnavailable, path, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s does not exist", ErrSourceUnavailable, path)
	}
	fh, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, path, err)
	}
	src := &MediaSource{
		Path:    path,
		Exists:  true,
		Looping: true,
		Stream:  fh,
	}
	if err := src.probe(); err != nil {
		fh.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	return src, nil
}

func (s *MediaSource) probe() error {
	mt, err := mimetype.DetectReader(s.Stream)
	if err != nil {
		return fmt.Errorf("could not detect content type: %w", err)
	}
	s.MIME = mt.String()
	if !isVideo(mt) {
		return fmt.Errorf("not a video file: %s", s.MIME)
	}
	if _, err := s.Stream.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not rewind stream: %w", err)
	}
	info, err := ProbeMedia(s.Stream)
	if err != nil {
		return err
	}
	if _, err := s.Stream.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not rewind stream: %w", err)
	}
	s.Info = *info
	return nil
}

func isVideo(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}

// Close closes the stream. It is safe to call more than once.
func (s *MediaSource) Close() error {
	s.closeOnce.Do(func() {
		if s.Stream != nil {
			s.closeErr = s.Stream.Close()
		}
	})
	return s.closeErr
}
