package call

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeEvent(kind string, tg int64) *protocol.Event {
	return &protocol.Event{
		Kind:      kind,
		Talkgroup: tg,
		Tag:       "FWPD 1",
		ShortName: "FWPD Disp",
		Src:       "720001",
	}
}

func TestStartCreatesCall(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)

	info, restarted := r.Start(makeEvent(protocol.EventCallStart, 100))
	if restarted {
		t.Error("first Start reported restarted = true")
	}
	if info.Talkgroup != 100 {
		t.Errorf("Talkgroup = %d, want 100", info.Talkgroup)
	}
	if info.CallID == "" {
		t.Error("expected a call id")
	}
	if info.PanLR < 0.1 || info.PanLR > 0.9 || info.PanFR < 0.1 || info.PanFR > 0.9 {
		t.Errorf("pan (%f, %f) outside the margin band", info.PanLR, info.PanFR)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestStartOnActiveResets(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)

	r.Start(makeEvent(protocol.EventCallStart, 100))
	r.Observe(makeEvent(protocol.EventAudio, 100))
	r.Observe(makeEvent(protocol.EventAudio, 100))

	ev := makeEvent(protocol.EventCallStart, 100)
	ev.Src = "720002"
	info, restarted := r.Start(ev)

	if !restarted {
		t.Error("Start on active TG reported restarted = false")
	}
	if info.Src != "720002" {
		t.Errorf("Src = %q, want overwritten value '720002'", info.Src)
	}
	if info.AudioEvents != 0 {
		t.Errorf("AudioEvents = %d, want reset to 0", info.AudioEvents)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 after restart", r.Len())
	}
}

func TestObserveCountsAudioEvents(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)
	r.Start(makeEvent(protocol.EventCallStart, 100))

	for i := 0; i < 3; i++ {
		if _, missed := r.Observe(makeEvent(protocol.EventAudio, 100)); missed {
			t.Error("Observe on active TG reported a missed start")
		}
	}

	info, ok := r.Get(100)
	if !ok {
		t.Fatal("call for TG 100 not found")
	}
	if info.AudioEvents != 3 {
		t.Errorf("AudioEvents = %d, want 3", info.AudioEvents)
	}
}

func TestObserveMissedStart(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)

	coord, missed := r.Observe(makeEvent(protocol.EventAudio, 200))
	if !missed {
		t.Error("Observe on unknown TG did not report a missed start")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after missed-start recovery", r.Len())
	}

	info, ok := r.Get(200)
	if !ok {
		t.Fatal("synthesized call for TG 200 not found")
	}
	if info.AudioEvents != 1 {
		t.Errorf("AudioEvents = %d, want 1 (the recovering audio event counts)", info.AudioEvents)
	}
	if coord.LR != info.PanLR || coord.FR != info.PanFR {
		t.Errorf("returned coord (%f, %f) differs from stored (%f, %f)",
			coord.LR, coord.FR, info.PanLR, info.PanFR)
	}
}

func TestEndClosesCall(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)
	r.Start(makeEvent(protocol.EventCallStart, 100))
	r.Observe(makeEvent(protocol.EventAudio, 100))

	info, ok := r.End(100)
	if !ok {
		t.Fatal("End on active TG returned false")
	}
	if info.AudioEvents != 1 {
		t.Errorf("AudioEvents = %d, want 1", info.AudioEvents)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestEndUnknownIsNoOp(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)

	if _, ok := r.End(999); ok {
		t.Error("End on unknown TG returned true")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestTouch(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)

	if r.Touch(100) {
		t.Error("Touch created or found a call that should not exist")
	}

	r.Start(makeEvent(protocol.EventCallStart, 100))
	if !r.Touch(100) {
		t.Error("Touch on active TG returned false")
	}

	info, _ := r.Get(100)
	if info.AudioEvents != 0 {
		t.Errorf("Touch must not count as an audio event, got %d", info.AudioEvents)
	}
}

func TestSweepRemovesStaleCalls(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)
	r.Start(makeEvent(protocol.EventCallStart, 300))

	// Nothing is stale yet.
	if closed := r.Sweep(time.Now(), time.Second); len(closed) != 0 {
		t.Fatalf("fresh call swept: %d closed", len(closed))
	}

	future := time.Now().Add(2 * time.Second)
	closed := r.Sweep(future, time.Second)
	if len(closed) != 1 {
		t.Fatalf("Sweep closed %d calls, want 1", len(closed))
	}
	if closed[0].Talkgroup != 300 {
		t.Errorf("closed TG = %d, want 300", closed[0].Talkgroup)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after sweep", r.Len())
	}

	// Sweeping again with no time elapsed removes nothing further.
	if closed := r.Sweep(future, time.Second); len(closed) != 0 {
		t.Errorf("second sweep closed %d calls, want 0", len(closed))
	}
}

func TestSweepSparesActiveCalls(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)
	r.Start(makeEvent(protocol.EventCallStart, 100))
	r.Start(makeEvent(protocol.EventCallStart, 200))

	// TG 200 keeps transmitting past the point where TG 100 goes stale.
	future := time.Now().Add(2 * time.Second)
	r.calls[200].LastActivity = future

	closed := r.Sweep(future, time.Second)
	if len(closed) != 1 || closed[0].Talkgroup != 100 {
		t.Fatalf("expected only TG 100 swept, got %+v", closed)
	}
	if _, ok := r.Get(200); !ok {
		t.Error("active TG 200 was swept")
	}
}

func TestSnapshotSorted(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)
	for _, tg := range []int64{300, 100, 200} {
		r.Start(makeEvent(protocol.EventCallStart, tg))
	}

	infos := r.Snapshot()
	if len(infos) != 3 {
		t.Fatalf("Snapshot returned %d calls, want 3", len(infos))
	}
	for i, want := range []int64{100, 200, 300} {
		if infos[i].Talkgroup != want {
			t.Errorf("Snapshot[%d].Talkgroup = %d, want %d", i, infos[i].Talkgroup, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry(testLogger(), 0.1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(tg int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Start(makeEvent(protocol.EventCallStart, tg))
				r.Observe(makeEvent(protocol.EventAudio, tg))
				r.Snapshot()
				r.End(tg)
			}
		}(int64(1000 + i))
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after all calls ended", r.Len())
	}
}
