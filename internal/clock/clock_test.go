package clock

import (
	"testing"
	"time"
)

func TestResetAnchorThenTickIsIdempotent(t *testing.T) {
	c := New()
	c.SetDuration(3 * time.Minute)
	c.SetPlaying(true)

	now := 42 * time.Second
	c.ResetAnchor(now, 10*time.Second)

	pos, ended := c.Tick(now)
	if pos != 10*time.Second {
		t.Errorf("Tick at anchor time = %v, want 10s", pos)
	}
	if ended {
		t.Error("Tick at anchor should not signal end")
	}

	// Repeated ticks at the same hardware time keep the same position.
	for i := 0; i < 5; i++ {
		if pos, _ = c.Tick(now); pos != 10*time.Second {
			t.Fatalf("Repeated tick drifted to %v", pos)
		}
	}
}

func TestTickAdvancesWithRatio(t *testing.T) {
	tests := []struct {
		name    string
		ratio   float64
		elapsed time.Duration
		want    time.Duration
	}{
		{"unity", 1.0, 2 * time.Second, 2 * time.Second},
		{"accelerated", 1.5, 2 * time.Second, 3 * time.Second},
		{"slowed", 0.8, 5 * time.Second, 4 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.SetDuration(time.Minute)
			c.SetPlaying(true)
			c.SetRatio(tt.ratio)
			c.ResetAnchor(0, 0)

			pos, _ := c.Tick(tt.elapsed)
			if diff := pos - tt.want; diff < -time.Microsecond || diff > time.Microsecond {
				t.Errorf("position = %v, want %v", pos, tt.want)
			}
		})
	}
}

func TestTickMonotonicWhilePlaying(t *testing.T) {
	c := New()
	c.SetDuration(time.Minute)
	c.SetPlaying(true)
	c.SetRatio(1.25)
	c.ResetAnchor(0, 0)

	prev := time.Duration(-1)
	for now := time.Duration(0); now < 10*time.Second; now += 17 * time.Millisecond {
		pos, _ := c.Tick(now)
		if pos < prev {
			t.Fatalf("position went backwards: %v after %v", pos, prev)
		}
		prev = pos
	}
}

func TestTickClampsAndSignalsEnd(t *testing.T) {
	c := New()
	c.SetDuration(10 * time.Second)
	c.SetPlaying(true)
	c.ResetAnchor(0, 9*time.Second)

	pos, ended := c.Tick(5 * time.Second)
	if pos != 10*time.Second {
		t.Errorf("position = %v, want clamp at 10s", pos)
	}
	if !ended {
		t.Error("Tick past duration should signal end")
	}
}

func TestTickNoOpWithoutDuration(t *testing.T) {
	c := New()
	c.SetPlaying(true)
	c.ResetAnchor(0, 0)

	pos, ended := c.Tick(time.Hour)
	if pos != 0 || ended {
		t.Errorf("Tick with unknown duration moved to %v (ended=%v), want no-op", pos, ended)
	}
}

func TestTickNoOpWhileStopped(t *testing.T) {
	c := New()
	c.SetDuration(time.Minute)
	c.ResetAnchor(0, 5*time.Second)

	pos, _ := c.Tick(30 * time.Second)
	if pos != 5*time.Second {
		t.Errorf("Stopped clock moved to %v, want 5s", pos)
	}
}

func TestResetAnchorClampsPosition(t *testing.T) {
	c := New()
	c.SetDuration(10 * time.Second)
	c.ResetAnchor(0, 25*time.Second)
	if c.Position() != 10*time.Second {
		t.Errorf("anchor position = %v, want clamp at duration", c.Position())
	}
	c.ResetAnchor(0, -time.Second)
	if c.Position() != 0 {
		t.Errorf("anchor position = %v, want clamp at 0", c.Position())
	}
}

func TestSetRatioRejectsNonPositive(t *testing.T) {
	c := New()
	c.SetRatio(0)
	if c.Ratio() != 1 {
		t.Errorf("ratio = %v after SetRatio(0), want 1", c.Ratio())
	}
	c.SetRatio(-2)
	if c.Ratio() != 1 {
		t.Errorf("ratio = %v after SetRatio(-2), want 1", c.Ratio())
	}
}
