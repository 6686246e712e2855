package holds

import (
	"testing"
	"time"
)

func TestClampTTL(t *testing.T) {
	s := &Service{cfg: Config{
		DefaultTTL: 10 * time.Minute,
		MinTTL:     15 * time.Second,
		MaxTTL:     30 * time.Minute,
	}}

	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"zero falls back to default", 0, 10 * time.Minute},
		{"negative falls back to default", -time.Second, 10 * time.Minute},
		{"below minimum clamps up", time.Second, 15 * time.Second},
		{"at minimum passes", 15 * time.Second, 15 * time.Second},
		{"in range passes", 5 * time.Minute, 5 * time.Minute},
		{"at maximum passes", 30 * time.Minute, 30 * time.Minute},
		{"above maximum clamps down", time.Hour, 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.clampTTL(tt.in); got != tt.want {
				t.Fatalf("clampTTL(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, Config{})

	if s.cfg.DefaultTTL != 10*time.Minute {
		t.Fatalf("DefaultTTL = %s", s.cfg.DefaultTTL)
	}
	if s.cfg.MinTTL != 15*time.Second {
		t.Fatalf("MinTTL = %s", s.cfg.MinTTL)
	}
	if s.cfg.MaxTTL != 30*time.Minute {
		t.Fatalf("MaxTTL = %s", s.cfg.MaxTTL)
	}
}

func TestConfigMaxBelowMin(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, Config{
		MinTTL: time.Minute,
		MaxTTL: time.Second,
	})

	if s.cfg.MaxTTL < s.cfg.MinTTL {
		t.Fatalf("MaxTTL %s below MinTTL %s after normalization", s.cfg.MaxTTL, s.cfg.MinTTL)
	}
}
