package audio

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// SkipSeconds is the step of the skip controls.
	SkipSeconds = 10.0
	// SaveInterval is how often, in playback seconds, the position is saved.
	SaveInterval = 5.0
	// SaveTolerance is how close to a boundary a sample must fall to count.
	SaveTolerance = 0.5
)

// Rates are the playback rates CycleRate steps through.
var Rates = []float64{1, 1.25, 1.5, 2}

// Status is a snapshot of the element after a time update.
type Status struct {
	Current  float64
	Duration float64
	Rate     float64
	Volume   float64
	Paused   bool
	Ended    bool
	// Saved is set when this update persisted the position.
	Saved bool
}

// Controller wraps an Element with the reader's playback controls.
type Controller struct {
	el      Element
	preview bool
	save    func(seconds float64) error

	lastBoundary int
}

// NewController creates a controller. save is called with the elapsed time
// on each save boundary and is never called in preview.
func NewController(el Element, preview bool, save func(seconds float64) error) *Controller {
	return &Controller{el: el, preview: preview, save: save}
}

// Element returns the wrapped element.
func (c *Controller) Element() Element {
	return c.el
}

// Restore seeks to a saved position before playback starts. It does nothing
// in preview.
func (c *Controller) Restore(seconds float64, ok bool) {
	if c.preview || !ok {
		return
	}
	c.Seek(seconds)
	c.lastBoundary = boundary(c.el.CurrentTime())
}

// Toggle plays or pauses.
func (c *Controller) Toggle() error {
	if !c.el.Paused() {
		c.el.Pause()
		return nil
	}
	if c.el.Ended() {
		c.el.SetCurrentTime(0)
	}
	return errors.Wrap(c.el.Play(), "failed to start playback")
}

// Skip moves the position by delta seconds.
func (c *Controller) Skip(delta float64) {
	c.Seek(c.el.CurrentTime() + delta)
}

// Seek moves to t, clamped to [0, duration]. The next boundary reached
// after t is saved even if it was saved before the seek.
func (c *Controller) Seek(t float64) {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if d := c.el.Duration(); d > 0 && t > d {
		t = d
	}
	c.el.SetCurrentTime(t)
	c.lastBoundary = boundary(t) - 1
}

// CycleRate advances to the next playback rate and returns it.
func (c *Controller) CycleRate() float64 {
	current := c.el.PlaybackRate()
	next := Rates[0]
	for i, r := range Rates {
		if math.Abs(r-current) < 1e-9 {
			next = Rates[(i+1)%len(Rates)]
			break
		}
	}
	c.el.SetPlaybackRate(next)
	return next
}

// SetVolume sets the volume, clamped to [0, 1].
func (c *Controller) SetVolume(v float64) {
	c.el.SetVolume(math.Max(0, math.Min(1, v)))
}

// AdjustVolume changes the volume by delta.
func (c *Controller) AdjustVolume(delta float64) {
	c.SetVolume(c.el.Volume() + delta)
}

// TimeUpdate samples the element. It saves the position once per save
// boundary outside preview, and pauses at the end.
func (c *Controller) TimeUpdate() (Status, error) {
	var err error
	saved := false

	if c.el.Ended() && !c.el.Paused() {
		c.el.Pause()
	}

	t := c.el.CurrentTime()
	if !c.preview && c.save != nil {
		idx := boundary(t)
		if idx >= 1 && idx != c.lastBoundary && math.Abs(t-float64(idx)*SaveInterval) <= SaveTolerance {
			c.lastBoundary = idx
			if err = c.save(t); err == nil {
				saved = true
			}
		}
	}

	return Status{
		Current:  t,
		Duration: c.el.Duration(),
		Rate:     c.el.PlaybackRate(),
		Volume:   c.el.Volume(),
		Paused:   c.el.Paused(),
		Ended:    c.el.Ended(),
		Saved:    saved,
	}, err
}

func boundary(t float64) int {
	return int(math.Round(t / SaveInterval))
}
