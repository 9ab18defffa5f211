package mixer

import (
	"testing"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/pan"
)

func readFrames(t *testing.T, e *Engine, frames int) ([]int16, bool, int) {
	t.Helper()
	dst := make([]int16, frames*pan.Channels)
	active, clipped := e.ReadBlock(dst)
	return dst, active, clipped
}

func TestSilenceWhenEmpty(t *testing.T) {
	e := NewEngine(64)

	dst, active, clipped := readFrames(t, e, 16)
	if active {
		t.Error("empty engine reported active audio")
	}
	if clipped != 0 {
		t.Errorf("clipped = %d, want 0", clipped)
	}
	for i, s := range dst {
		if s != 0 {
			t.Fatalf("sample %d = %d, want digital silence", i, s)
		}
	}
}

func TestMixSingleCallFrontLeft(t *testing.T) {
	e := NewEngine(64)
	w := pan.Coord{LR: 0, FR: 0}.Weights() // everything to FL

	if dropped := e.Mix(100, w, []int16{100, 200}); dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}

	dst, active, _ := readFrames(t, e, 4)
	if !active {
		t.Error("engine with pending audio reported silence")
	}

	want := []int16{
		100, 0, 0, 0,
		200, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	for i, s := range want {
		if dst[i] != s {
			t.Errorf("sample %d = %d, want %d", i, dst[i], s)
		}
	}
}

func TestTwoCallsSuperpose(t *testing.T) {
	// Calls at opposite corners must land in disjoint channels: the frame
	// comes out as [S, 0, 0, S].
	e := NewEngine(64)
	const s = 1000

	e.Mix(100, pan.Coord{LR: 0, FR: 0}.Weights(), []int16{s})
	e.Mix(200, pan.Coord{LR: 1, FR: 1}.Weights(), []int16{s})

	dst, _, clipped := readFrames(t, e, 1)
	want := []int16{s, 0, 0, s}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("channel %d = %d, want %d", i, dst[i], want[i])
		}
	}
	if clipped != 0 {
		t.Errorf("clipped = %d, want 0, values are nowhere near full scale", clipped)
	}
}

func TestOverflowSaturates(t *testing.T) {
	e := NewEngine(64)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	// Two near-full-scale calls in the same channel overflow int16.
	e.Mix(100, w, []int16{30000})
	e.Mix(200, w, []int16{30000})

	dst, _, clipped := readFrames(t, e, 1)
	if dst[0] != 32767 {
		t.Errorf("FL = %d, want saturated 32767", dst[0])
	}
	if clipped != 1 {
		t.Errorf("clipped = %d, want 1", clipped)
	}

	// Negative direction saturates too.
	e.Mix(100, w, []int16{-30000})
	e.Mix(200, w, []int16{-30000})
	dst, _, _ = readFrames(t, e, 1)
	if dst[0] != -32768 {
		t.Errorf("FL = %d, want saturated -32768", dst[0])
	}
}

func TestChunksAppendSequentially(t *testing.T) {
	e := NewEngine(64)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	e.Mix(100, w, []int16{1, 2})
	e.Mix(100, w, []int16{3, 4})

	dst, _, _ := readFrames(t, e, 4)
	for i, want := range []int16{1, 2, 3, 4} {
		if dst[i*pan.Channels] != want {
			t.Errorf("frame %d FL = %d, want %d", i, dst[i*pan.Channels], want)
		}
	}
}

func TestRingClampDropsExcess(t *testing.T) {
	e := NewEngine(4)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	dropped := e.Mix(100, w, []int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if dropped != 6 {
		t.Errorf("dropped = %d, want 6", dropped)
	}
	if e.Buffered() != 4 {
		t.Errorf("Buffered = %d, want 4", e.Buffered())
	}

	// Once full, everything further is dropped until the pacer drains.
	if dropped := e.Mix(100, w, []int16{11}); dropped != 1 {
		t.Errorf("dropped = %d, want 1 on a full ring", dropped)
	}

	dst, _, _ := readFrames(t, e, 4)
	for i, want := range []int16{1, 2, 3, 4} {
		if dst[i*pan.Channels] != want {
			t.Errorf("frame %d FL = %d, want %d", i, dst[i*pan.Channels], want)
		}
	}
}

func TestCursorFollowsHead(t *testing.T) {
	e := NewEngine(8)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	e.Mix(100, w, []int16{1})
	readFrames(t, e, 4)

	// The talkgroup went quiet across the read; its next chunk starts at
	// the new head, not in already-emitted history.
	e.Mix(100, w, []int16{42})
	dst, _, _ := readFrames(t, e, 1)
	if dst[0] != 42 {
		t.Errorf("FL = %d, want 42 at the block start", dst[0])
	}
}

func TestIndependentCursorsPerTalkgroup(t *testing.T) {
	e := NewEngine(16)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	// TG 100 is two frames ahead of TG 200; their chunks interleave on the
	// timeline without touching each other.
	e.Mix(100, w, []int16{1, 1})
	e.Mix(200, w, []int16{2})
	e.Mix(100, w, []int16{1})

	dst, _, _ := readFrames(t, e, 3)
	want := []int16{1 + 2, 1, 1}
	for i := range want {
		if dst[i*pan.Channels] != want[i] {
			t.Errorf("frame %d FL = %d, want %d", i, dst[i*pan.Channels], want[i])
		}
	}
}

func TestCutRemovesPendingAudio(t *testing.T) {
	e := NewEngine(64)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	e.Mix(100, w, []int16{500, 500, 500})

	if cleared := e.Cut(100); cleared != 3 {
		t.Fatalf("cleared = %d, want 3", cleared)
	}

	dst, _, _ := readFrames(t, e, 4)
	for i, s := range dst {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence after cut", i, s)
		}
	}
}

func TestCutLeavesOtherCallsIntact(t *testing.T) {
	// The two calls overlap in the same channel; cutting one must leave
	// exactly the other's samples behind, not a blanket zero.
	e := NewEngine(64)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	e.Mix(100, w, []int16{1000, 1000})
	e.Mix(200, w, []int16{300, 300, 300})

	e.Cut(100)

	dst, _, _ := readFrames(t, e, 4)
	for i, want := range []int16{300, 300, 300, 0} {
		if dst[i*pan.Channels] != want {
			t.Errorf("frame %d FL = %d, want %d", i, dst[i*pan.Channels], want)
		}
	}
}

func TestCutAfterPartialDrain(t *testing.T) {
	e := NewEngine(8)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	e.Mix(100, w, []int16{1, 2, 3, 4, 5, 6})
	readFrames(t, e, 2) // frames 1, 2 already emitted

	if cleared := e.Cut(100); cleared != 4 {
		t.Errorf("cleared = %d, want the 4 unemitted frames", cleared)
	}

	dst, _, _ := readFrames(t, e, 4)
	for i, s := range dst {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence after cut", i, s)
		}
	}
}

func TestCutUnknownTalkgroup(t *testing.T) {
	e := NewEngine(8)
	if cleared := e.Cut(999); cleared != 0 {
		t.Errorf("cleared = %d, want 0 for a talkgroup that never mixed", cleared)
	}
}

func TestMixAfterCutStartsFresh(t *testing.T) {
	e := NewEngine(64)
	w := pan.Coord{LR: 0, FR: 0}.Weights()

	e.Mix(100, w, []int16{11, 12, 13})
	e.Cut(100)
	e.Mix(100, w, []int16{42})

	// The new call starts at the head, not where the cut one left off.
	dst, _, _ := readFrames(t, e, 3)
	for i, want := range []int16{42, 0, 0} {
		if dst[i*pan.Channels] != want {
			t.Errorf("frame %d FL = %d, want %d", i, dst[i*pan.Channels], want)
		}
	}
}

func TestBufferedReflectsPending(t *testing.T) {
	e := NewEngine(64)
	w := pan.Coord{LR: 0.5, FR: 0.5}.Weights()

	if e.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0", e.Buffered())
	}
	e.Mix(100, w, make([]int16, 10))
	if e.Buffered() != 10 {
		t.Errorf("Buffered = %d, want 10", e.Buffered())
	}
	readFrames(t, e, 4)
	if e.Buffered() != 6 {
		t.Errorf("Buffered = %d, want 6 after draining 4 frames", e.Buffered())
	}
}
