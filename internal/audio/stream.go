package audio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/abema/go-mp4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/logger"
	"github.com/pkg/errors"
)

// probeLimit bounds how much of a remote file is read looking for the movie
// header.
const probeLimit = 8 << 20

// ErrNotMP4 is returned by Probe for containers it cannot read.
var ErrNotMP4 = errors.New("not an MP4 audio container")

var mp4Types = map[string]struct{}{
	"audio/mp4":   {},
	"audio/x-m4a": {},
	"video/mp4":   {},
	"audio/x-m4b": {},
}

// Stream is a headless media element. Playback position follows the wall
// clock scaled by the playback rate; nothing is decoded or played out.
type Stream struct {
	URL string

	mu       sync.Mutex
	now      func() time.Time
	duration float64
	base     float64
	anchor   time.Time
	playing  bool
	rate     float64
	volume   float64
}

// NewStream creates a paused stream at position zero.
func NewStream(url string, duration float64) *Stream {
	return &Stream{
		URL:      url,
		now:      time.Now,
		duration: duration,
		rate:     1,
		volume:   1,
	}
}

// OpenStream probes src for its duration and returns a stream for it. When
// the probe fails the catalog duration is used.
func OpenStream(ctx context.Context, client *http.Client, src content.AudioSource) *Stream {
	duration := src.Duration
	if d, err := Probe(ctx, client, src.URL); err == nil && d > 0 {
		duration = d
	} else if err != nil {
		logger.FromContext(ctx).Debug().Err(err).Str("url", src.URL).Msg("audio probe failed, using catalog duration")
	}
	return NewStream(src.URL, duration)
}

func (s *Stream) position() float64 {
	p := s.base
	if s.playing {
		p += s.now().Sub(s.anchor).Seconds() * s.rate
	}
	if s.duration > 0 && p > s.duration {
		p = s.duration
	}
	if p < 0 {
		p = 0
	}
	return p
}

func (s *Stream) rebase() {
	s.base = s.position()
	s.anchor = s.now()
}

func (s *Stream) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Stream) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position()
}

func (s *Stream) SetCurrentTime(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = t
	s.anchor = s.now()
	s.base = s.position()
}

func (s *Stream) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Stream) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *Stream) PlaybackRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *Stream) SetPlaybackRate(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebase()
	s.rate = r
}

// Play starts playback. Playing an ended stream starts it over.
func (s *Stream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return nil
	}
	if s.duration > 0 && s.base >= s.duration {
		s.base = 0
	}
	s.anchor = s.now()
	s.playing = true
	return nil
}

func (s *Stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.rebase()
	s.playing = false
}

func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing
}

func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration > 0 && s.position() >= s.duration
}

// Probe reads the movie header of an MP4/M4A/M4B source and returns its
// duration in seconds. src is a local path or an http(s) URL.
func Probe(ctx context.Context, client *http.Client, src string) (float64, error) {
	var r io.ReadSeeker
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err := fetchHead(ctx, client, src)
		if err != nil {
			return 0, err
		}
		r = bytes.NewReader(data)
	} else {
		f, err := os.Open(strings.TrimPrefix(src, "file://"))
		if err != nil {
			return 0, errors.WithStack(err)
		}
		defer f.Close()
		r = f
	}

	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if !isMP4(mtype) {
		return 0, errors.Wrapf(ErrNotMP4, "got %s", mtype.String())
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, errors.WithStack(err)
	}
	return readDuration(r)
}

func isMP4(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if _, ok := mp4Types[m.String()]; ok {
			return true
		}
	}
	return false
}

func fetchHead(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("fetching %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, probeLimit))
	return data, errors.WithStack(err)
}

func readDuration(r io.ReadSeeker) (float64, error) {
	var timescale uint32
	var duration uint64
	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case mp4.BoxTypeMoov():
			return h.Expand()
		case mp4.BoxTypeMvhd():
			payload, _, err := h.ReadPayload()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			mvhd, ok := payload.(*mp4.Mvhd)
			if !ok {
				return nil, nil
			}
			timescale = mvhd.Timescale
			if mvhd.Version == 0 {
				duration = uint64(mvhd.DurationV0)
			} else {
				duration = mvhd.DurationV1
			}
		}
		return nil, nil
	})
	if err != nil && timescale == 0 {
		return 0, errors.Wrap(err, "failed to read MP4 boxes")
	}
	if timescale == 0 {
		return 0, errors.New("no movie header found")
	}
	return float64(duration) / float64(timescale), nil
}
