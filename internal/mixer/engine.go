package mixer

import (
	"math"
	"sync"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/pan"
)

// Engine accumulates pan-weighted call audio into a bounded frame-accurate
// ring ahead of the output clock. One frame is four interleaved int32
// accumulator slots (FL, FR, RL, RR); summing in int32 leaves headroom so
// concurrent calls wrap into saturation only on readout.
//
// Each talkgroup has a write cursor: its chunks append sequentially from
// wherever its previous chunk ended, never before the ring head (already
// emitted audio is gone). Audio arriving faster than real time hits the ring
// capacity and the excess is dropped; this is a live stream with no replay.
//
// The engine also remembers what each talkgroup contributed to the not yet
// emitted region, so Cut can subtract a closed call's tail from the mix
// instead of letting it play out.
type Engine struct {
	mu sync.Mutex

	capFrames int64
	acc       []int32 // capFrames * pan.Channels, indexed by (frame % capFrames)

	head       int64 // absolute index of the oldest unemitted frame
	maxWritten int64 // absolute index one past the newest written frame

	cursors  map[int64]int64         // talkgroup -> next absolute frame to write
	contribs map[int64]*contribution // talkgroup -> unemitted accumulator amounts
}

// contribution holds one talkgroup's pending accumulator amounts, covering
// the frames [start, start+len(vals)/Channels). Always trimmed to the ring
// head before it is extended or subtracted.
type contribution struct {
	start int64
	vals  []int32 // Channels values per frame
}

// NewEngine creates a mix ring holding capFrames frames of headroom between
// the input side and the output pacer.
func NewEngine(capFrames int) *Engine {
	return &Engine{
		capFrames: int64(capFrames),
		acc:       make([]int32, capFrames*pan.Channels),
		cursors:   make(map[int64]int64),
		contribs:  make(map[int64]*contribution),
	}
}

// Mix accumulates a mono chunk for one talkgroup, spread across the four
// output channels by the given bilinear weights. Returns how many frames
// were discarded because the ring was full.
func (e *Engine) Mix(talkgroup int64, weights [pan.Channels]float64, samples []int16) (dropped int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cursor := e.cursors[talkgroup]
	if cursor < e.head {
		cursor = e.head
	}

	contrib := e.contribs[talkgroup]
	if contrib == nil {
		contrib = &contribution{start: cursor}
		e.contribs[talkgroup] = contrib
	}

	limit := e.head + e.capFrames
	for i, s := range samples {
		frame := cursor + int64(i)
		if frame >= limit {
			dropped = len(samples) - i
			cursor = limit
			break
		}
		p := int(frame%e.capFrames) * pan.Channels
		v := float64(s)
		for c := 0; c < pan.Channels; c++ {
			w := int32(v * weights[c])
			e.acc[p+c] += w
			contrib.vals = append(contrib.vals, w)
		}
		cursor = frame + 1
	}

	e.cursors[talkgroup] = cursor
	if cursor > e.maxWritten {
		e.maxWritten = cursor
	}
	return dropped
}

// ReadBlock pops the oldest len(dst)/4 frames into dst as interleaved int16
// samples, saturating sums to the s16 range. Slots nothing wrote come out as
// digital silence. Returns whether any call audio landed in the block and
// how many samples were clipped. len(dst) must be a multiple of 4.
func (e *Engine) ReadBlock(dst []int16) (active bool, clipped int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	frames := int64(len(dst) / pan.Channels)
	active = e.maxWritten > e.head

	for f := int64(0); f < frames; f++ {
		p := int((e.head+f)%e.capFrames) * pan.Channels
		o := int(f) * pan.Channels
		for c := 0; c < pan.Channels; c++ {
			v := e.acc[p+c]
			switch {
			case v > math.MaxInt16:
				v = math.MaxInt16
				clipped++
			case v < math.MinInt16:
				v = math.MinInt16
				clipped++
			}
			dst[o+c] = int16(v)
			e.acc[p+c] = 0
		}
	}

	e.head += frames
	if e.maxWritten < e.head {
		e.maxWritten = e.head
	}

	// Cursors that fell behind the head belong to calls that went quiet or
	// ended; drop them so the map does not grow with talkgroup churn.
	for tg, cursor := range e.cursors {
		if cursor <= e.head {
			delete(e.cursors, tg)
			delete(e.contribs, tg)
		}
	}

	// Trim remaining contributions to the new head: the emitted part can
	// never be cut anymore.
	for tg, contrib := range e.contribs {
		cut := e.head - contrib.start
		if cut <= 0 {
			continue
		}
		if cut >= int64(len(contrib.vals)/pan.Channels) {
			delete(e.contribs, tg)
			continue
		}
		contrib.vals = append([]int32(nil), contrib.vals[cut*pan.Channels:]...)
		contrib.start = e.head
	}

	return active, clipped
}

// Cut subtracts a talkgroup's pending contribution from the mix and drops
// its cursor. Called when its call closes, so audio buffered ahead of the
// output clock dies with the call instead of playing out. Returns the number
// of frames cleared.
func (e *Engine) Cut(talkgroup int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.cursors, talkgroup)

	contrib, ok := e.contribs[talkgroup]
	if !ok {
		return 0
	}
	delete(e.contribs, talkgroup)

	// ReadBlock trims contributions whenever the head moves, so the whole
	// slice is still ahead of the output clock.
	frames := len(contrib.vals) / pan.Channels
	for f := 0; f < frames; f++ {
		p := int((contrib.start+int64(f))%e.capFrames) * pan.Channels
		for c := 0; c < pan.Channels; c++ {
			e.acc[p+c] -= contrib.vals[f*pan.Channels+c]
		}
	}
	return frames
}

// Buffered returns the number of frames currently pending ahead of the head.
func (e *Engine) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.maxWritten - e.head)
}
