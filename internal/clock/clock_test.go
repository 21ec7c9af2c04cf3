package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/floats/scalar"
)

// fakeNow is a controllable wall clock.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

var epoch = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func TestClock_RealTime(t *testing.T) {
	wall := &fakeNow{t: epoch}
	c := newWithNow(1, wall.Now)

	if got := c.Now(); got != transform.J2000 {
		t.Fatalf("Now() at anchor = %v, want %v", got, transform.J2000)
	}

	wall.Advance(12 * time.Hour)
	if got := c.Now(); !scalar.EqualWithinAbs(got, transform.J2000+0.5, 1e-9) {
		t.Errorf("Now() after 12h = %v, want J2000+0.5", got)
	}
}

func TestClock_Speed(t *testing.T) {
	wall := &fakeNow{t: epoch}
	c := newWithNow(8640, wall.Now) // one simulated day per ten seconds

	wall.Advance(30 * time.Second)
	if got := c.Now(); !scalar.EqualWithinAbs(got, transform.J2000+3, 1e-9) {
		t.Errorf("Now() = %v, want J2000+3", got)
	}

	// Negative speed runs backwards from the re-anchored date.
	c.SetSpeed(-8640)
	wall.Advance(10 * time.Second)
	if got := c.Now(); !scalar.EqualWithinAbs(got, transform.J2000+2, 1e-9) {
		t.Errorf("Now() after reversing = %v, want J2000+2", got)
	}
}

func TestClock_ConstructorClampsSpeed(t *testing.T) {
	if got := New(86400).Speed(); got != MaxSpeed {
		t.Errorf("New(86400).Speed() = %v, want %v", got, MaxSpeed)
	}
}

func TestClock_SpeedClamp(t *testing.T) {
	c := New(1)
	tests := []struct {
		in, want float64
	}{
		{5, 5},
		{10000, 10000},
		{10001, 10000},
		{-1e9, -10000},
		{0, 0},
	}
	for _, tt := range tests {
		if s := c.SetSpeed(tt.in); s.Speed != tt.want {
			t.Errorf("SetSpeed(%v) = %v, want %v", tt.in, s.Speed, tt.want)
		}
	}
}

func TestClock_SpeedLadder(t *testing.T) {
	tests := []struct {
		from         float64
		faster, slow float64
	}{
		{1, 10, -1},
		{-1, 1, -10},
		{10, 100, 1},
		{-10, -1, -100},
		{1000, 10000, 100},
		{-1000, -100, -10000},
		{MaxSpeed, MaxSpeed, 1000},
		{-MaxSpeed, -1000, -MaxSpeed},
		{5000, MaxSpeed, 500},
		{-25, -2, -250},
		{25, 250, 3},
		{0.5, 1, -1},
		{-0.5, 1, -1},
		{0, 1, -1},
	}

	for _, tt := range tests {
		c := New(tt.from)
		if got := c.Faster().Speed; got != tt.faster {
			t.Errorf("Faster from %v = %v, want %v", tt.from, got, tt.faster)
		}
		c.SetSpeed(tt.from)
		if got := c.Slower().Speed; got != tt.slow {
			t.Errorf("Slower from %v = %v, want %v", tt.from, got, tt.slow)
		}
	}
}

func TestClock_SpeedLadderRoundTrip(t *testing.T) {
	c := New(1)
	var forward []float64
	for i := 0; i < 5; i++ {
		forward = append(forward, c.Faster().Speed)
	}
	want := []float64{10, 100, 1000, 10000, 10000}
	for i := range want {
		if forward[i] != want[i] {
			t.Fatalf("Faster sequence = %v, want %v", forward, want)
		}
	}

	var back []float64
	for i := 0; i < 6; i++ {
		back = append(back, c.Slower().Speed)
	}
	want = []float64{1000, 100, 10, 1, -1, -10}
	for i := range want {
		if back[i] != want[i] {
			t.Fatalf("Slower sequence = %v, want %v", back, want)
		}
	}
}

func TestClock_PauseResume(t *testing.T) {
	wall := &fakeNow{t: epoch}
	c := newWithNow(8640, wall.Now)

	wall.Advance(time.Second)
	c.Pause()
	frozen := c.Now()

	wall.Advance(10 * time.Second)
	if got := c.Now(); got != frozen {
		t.Errorf("paused clock moved: %v -> %v", frozen, got)
	}

	c.Resume()
	wall.Advance(10 * time.Second)
	if got := c.Now(); !scalar.EqualWithinAbs(got, frozen+1, 1e-9) {
		t.Errorf("resumed clock = %v, want %v", got, frozen+1)
	}
}

func TestClock_SetAndRevision(t *testing.T) {
	wall := &fakeNow{t: epoch}
	c := newWithNow(1, wall.Now)

	r0 := c.Revision()
	s := c.Set(2460000.5)
	if s.Revision != r0+1 {
		t.Errorf("revision after Set = %d, want %d", s.Revision, r0+1)
	}
	if got := c.Now(); got != 2460000.5 {
		t.Errorf("Now() after Set = %v, want 2460000.5", got)
	}

	c.Pause()
	c.Resume()
	c.SetSpeed(2)
	if got := c.Revision(); got != r0+4 {
		t.Errorf("revision = %d, want %d", got, r0+4)
	}
}

func TestState_JulianAtIsPure(t *testing.T) {
	s := State{AnchorWall: epoch, AnchorJD: transform.J2000, Speed: 3600}
	at := epoch.Add(24 * time.Second)
	if a, b := s.JulianAt(at), s.JulianAt(at); a != b {
		t.Errorf("JulianAt not deterministic: %v vs %v", a, b)
	}
	if got := s.JulianAt(at); !scalar.EqualWithinAbs(got, transform.J2000+1, 1e-9) {
		t.Errorf("JulianAt = %v, want J2000+1", got)
	}
}

func TestClock_ConcurrentUse(t *testing.T) {
	c := New(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					c.SetSpeed(float64(j))
				} else {
					_ = c.Now()
				}
			}
		}(i)
	}
	wg.Wait()
	if got := c.Revision(); got != 400 {
		t.Errorf("revision = %d, want 400", got)
	}
}
