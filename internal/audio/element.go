// Package audio drives audiobook playback: a media element and the controls
// the reader exposes on top of it.
package audio

// Element is a streaming media element. Times are in seconds.
type Element interface {
	Duration() float64
	CurrentTime() float64
	SetCurrentTime(t float64)
	Volume() float64
	SetVolume(v float64)
	PlaybackRate() float64
	SetPlaybackRate(r float64)
	Play() error
	Pause()
	Paused() bool
	Ended() bool
}
