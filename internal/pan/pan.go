package pan

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Channel indices in an interleaved output frame.
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight

	Channels = 4
)

// Coord is a 2D pan position. LR runs left (0) to right (1), FR runs
// front (0) to rear (1). Both are derived purely from the talkgroup id,
// so the same talkgroup lands in the same spot across restarts.
type Coord struct {
	LR float64
	FR float64
}

// Weights returns the bilinear corner weights for the four output channels
// in FL, FR, RL, RR order. They sum to 1 for any coordinate, so a single
// call never gets louder or quieter from panning alone.
func (c Coord) Weights() [Channels]float64 {
	return [Channels]float64{
		FrontLeft:  (1 - c.LR) * (1 - c.FR),
		FrontRight: c.LR * (1 - c.FR),
		RearLeft:   (1 - c.LR) * c.FR,
		RearRight:  c.LR * c.FR,
	}
}

// Position derives the stable pan coordinate for a talkgroup. The two axes
// use independently salted hashes of the id so adjacent talkgroups do not
// cluster. margin pulls the coordinate away from the hard-panned edges
// (a call sitting 100% in one corner sounds bad); a margin of 0.1 keeps
// both fractions inside [0.1, 0.9].
func Position(talkgroup int64, margin float64) Coord {
	id := strconv.FormatInt(talkgroup, 10)
	return Coord{
		LR: clamp(fraction(xxhash.Sum64String("lr:"+id)), margin),
		FR: clamp(fraction(xxhash.Sum64String("fr:"+id)), margin),
	}
}

// fraction maps a 64-bit hash onto [0, 1).
func fraction(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

func clamp(v, margin float64) float64 {
	if v < margin {
		return margin
	}
	if v > 1-margin {
		return 1 - margin
	}
	return v
}
