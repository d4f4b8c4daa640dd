package audio

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metcalfc/folio/internal/content"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStream(duration float64) (*Stream, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewStream("https://example.com/book.m4b", duration)
	s.now = clk.now
	return s, clk
}

// play advances the clock in 250ms ticks, sampling after each.
func play(t *testing.T, ctl *Controller, clk *fakeClock, d time.Duration) []Status {
	t.Helper()
	var out []Status
	for elapsed := time.Duration(0); elapsed < d; elapsed += 250 * time.Millisecond {
		clk.advance(250 * time.Millisecond)
		st, err := ctl.TimeUpdate()
		require.NoError(t, err)
		out = append(out, st)
	}
	return out
}

func TestStreamClock(t *testing.T) {
	s, clk := newTestStream(100)
	assert.True(t, s.Paused())
	assert.Zero(t, s.CurrentTime())

	require.NoError(t, s.Play())
	clk.advance(3 * time.Second)
	assert.InDelta(t, 3, s.CurrentTime(), 1e-9)

	s.SetPlaybackRate(2)
	clk.advance(time.Second)
	assert.InDelta(t, 5, s.CurrentTime(), 1e-9)

	s.Pause()
	clk.advance(10 * time.Second)
	assert.InDelta(t, 5, s.CurrentTime(), 1e-9)

	s.SetCurrentTime(500)
	assert.InDelta(t, 100, s.CurrentTime(), 1e-9)
	assert.True(t, s.Ended())
}

func TestSeekThenPersistDuringPlayback(t *testing.T) {
	s, clk := newTestStream(600)
	var saves []float64
	ctl := NewController(s, false, func(sec float64) error {
		saves = append(saves, sec)
		return nil
	})

	ctl.Seek(12.3)
	st, err := ctl.TimeUpdate()
	require.NoError(t, err)
	assert.InDelta(t, 12.3, st.Current, 1e-9)

	require.NoError(t, ctl.Toggle())
	play(t, ctl, clk, 10*time.Second)

	// Boundaries 15 and 20 were crossed, each saved exactly once.
	require.Len(t, saves, 2)
	assert.InDelta(t, 15, saves[0], SaveTolerance)
	assert.InDelta(t, 20, saves[1], SaveTolerance)
	assert.InDelta(t, 12.3+2.25, saves[0], 1e-6)
}

func TestRewindSavesBoundaryAgain(t *testing.T) {
	s, clk := newTestStream(600)
	var saves []float64
	ctl := NewController(s, false, func(sec float64) error {
		saves = append(saves, sec)
		return nil
	})

	ctl.Seek(13)
	require.NoError(t, ctl.Toggle())
	play(t, ctl, clk, 3*time.Second)
	require.Len(t, saves, 1)
	assert.InDelta(t, 15, saves[0], SaveTolerance)

	ctl.Seek(13)
	play(t, ctl, clk, 3*time.Second)
	require.Len(t, saves, 2)
	assert.InDelta(t, 15, saves[1], SaveTolerance)
}

func TestPreviewNeverSaves(t *testing.T) {
	s, clk := newTestStream(600)
	called := false
	ctl := NewController(s, true, func(float64) error {
		called = true
		return nil
	})

	ctl.Restore(42, true)
	assert.Zero(t, s.CurrentTime())

	require.NoError(t, ctl.Toggle())
	play(t, ctl, clk, 30*time.Second)
	assert.False(t, called)
}

func TestRestore(t *testing.T) {
	s, clk := newTestStream(600)
	var saves []float64
	ctl := NewController(s, false, func(sec float64) error {
		saves = append(saves, sec)
		return nil
	})

	ctl.Restore(0, false)
	assert.Zero(t, s.CurrentTime())

	ctl.Restore(15.2, true)
	assert.InDelta(t, 15.2, s.CurrentTime(), 1e-9)

	// The restored boundary is not written back straight away.
	_, err := ctl.TimeUpdate()
	require.NoError(t, err)
	assert.Empty(t, saves)

	require.NoError(t, ctl.Toggle())
	play(t, ctl, clk, 5*time.Second)
	require.Len(t, saves, 1)
	assert.InDelta(t, 20, saves[0], SaveTolerance)
}

func TestEndedPauses(t *testing.T) {
	s, clk := newTestStream(3)
	ctl := NewController(s, false, nil)

	require.NoError(t, ctl.Toggle())
	statuses := play(t, ctl, clk, 5*time.Second)
	last := statuses[len(statuses)-1]
	assert.True(t, last.Ended)
	assert.True(t, last.Paused)
	assert.InDelta(t, 3, last.Current, 1e-9)

	// No looping: time stays at the end while paused.
	clk.advance(time.Second)
	assert.InDelta(t, 3, s.CurrentTime(), 1e-9)

	// Playing again starts over.
	require.NoError(t, ctl.Toggle())
	assert.False(t, s.Paused())
	assert.Zero(t, s.CurrentTime())
}

func TestSkipAndSeekClamp(t *testing.T) {
	s, _ := newTestStream(600)
	ctl := NewController(s, false, nil)

	ctl.Seek(5)
	ctl.Skip(-SkipSeconds)
	assert.Zero(t, s.CurrentTime())

	ctl.Seek(595)
	ctl.Skip(SkipSeconds)
	assert.InDelta(t, 600, s.CurrentTime(), 1e-9)

	ctl.Seek(-3)
	assert.Zero(t, s.CurrentTime())
	ctl.Seek(250)
	ctl.Skip(SkipSeconds)
	assert.InDelta(t, 260, s.CurrentTime(), 1e-9)
}

func TestCycleRate(t *testing.T) {
	s, _ := newTestStream(600)
	ctl := NewController(s, false, nil)

	var seen []float64
	for range Rates {
		seen = append(seen, ctl.CycleRate())
	}
	assert.Equal(t, []float64{1.25, 1.5, 2, 1}, seen)

	s.SetPlaybackRate(0.8)
	assert.Equal(t, 1.0, ctl.CycleRate())
}

func TestVolumeClamp(t *testing.T) {
	s, _ := newTestStream(600)
	ctl := NewController(s, false, nil)

	ctl.SetVolume(1.7)
	assert.Equal(t, 1.0, s.Volume())
	ctl.SetVolume(-0.2)
	assert.Equal(t, 0.0, s.Volume())
	ctl.SetVolume(0.4)
	ctl.AdjustVolume(0.1)
	assert.InDelta(t, 0.5, s.Volume(), 1e-9)
}

func TestSaveErrorIsReported(t *testing.T) {
	s, clk := newTestStream(600)
	ctl := NewController(s, false, func(float64) error { return errors.New("disk full") })

	ctl.Seek(4.5)
	require.NoError(t, ctl.Toggle())
	clk.advance(250 * time.Millisecond)
	st, err := ctl.TimeUpdate()
	assert.Error(t, err)
	assert.False(t, st.Saved)
}

// m4aHeader builds an ftyp box and a moov box holding a version 0 mvhd.
func m4aHeader(timescale, duration uint32) []byte {
	be := binary.BigEndian
	box := func(typ string, payload []byte) []byte {
		b := make([]byte, 8, 8+len(payload))
		be.PutUint32(b, uint32(8+len(payload)))
		copy(b[4:], typ)
		return append(b, payload...)
	}

	ftyp := box("ftyp", []byte("M4A \x00\x00\x00\x00M4A isom"))

	mvhd := make([]byte, 100)
	be.PutUint32(mvhd[12:], timescale)
	be.PutUint32(mvhd[16:], duration)
	be.PutUint32(mvhd[20:], 0x00010000) // rate 1.0
	be.PutUint16(mvhd[24:], 0x0100)     // volume 1.0
	be.PutUint32(mvhd[96:], 2)          // next track id

	return append(ftyp, box("moov", box("mvhd", mvhd))...)
}

func TestProbeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.m4b")
	require.NoError(t, os.WriteFile(path, m4aHeader(1000, 1314500), 0644))

	d, err := Probe(context.Background(), nil, path)
	require.NoError(t, err)
	assert.InDelta(t, 1314.5, d, 1e-9)

	d, err = Probe(context.Background(), nil, "file://"+path)
	require.NoError(t, err)
	assert.InDelta(t, 1314.5, d, 1e-9)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just some text"), 0644))
	_, err = Probe(context.Background(), nil, txt)
	assert.ErrorIs(t, err, ErrNotMP4)
}

func TestProbeRemoteAndOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/book.m4b" {
			w.Write(m4aHeader(44100, 44100*90))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d, err := Probe(context.Background(), srv.Client(), srv.URL+"/book.m4b")
	require.NoError(t, err)
	assert.InDelta(t, 90, d, 1e-9)

	s := OpenStream(context.Background(), srv.Client(), content.AudioSource{URL: srv.URL + "/book.m4b", Duration: 10})
	assert.InDelta(t, 90, s.Duration(), 1e-9)

	s = OpenStream(context.Background(), srv.Client(), content.AudioSource{URL: srv.URL + "/missing.mp3", Duration: 10})
	assert.InDelta(t, 10, s.Duration(), 1e-9)
}
