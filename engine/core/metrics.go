package core

import "github.com/spaghettifunk/prism/engine/containers"

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling frame-time average over the last AVG_COUNT frames
// and a frames-per-second counter.
type Metrics struct {
	msTimes            *containers.RingQueue[float64]
	msSum              float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{msTimes: containers.NewRingQueue[float64](int(AVG_COUNT))}
}

// Update records one frame that took frameElapsedTime seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	if m.msTimes.IsFull() {
		oldest, _ := m.msTimes.Dequeue()
		m.msSum -= oldest
	}
	_ = m.msTimes.Enqueue(frameMS)
	m.msSum += frameMS
	m.msAvg = m.msSum / float64(m.msTimes.Len())

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all frames.
	m.frames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
