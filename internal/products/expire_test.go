package products

import (
	"testing"
	"time"
)

func TestTwgoExpiration(t *testing.T) {
	cfg := Defaults()
	rcvd := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	stop1 := time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)
	stop2 := time.Date(2026, 8, 24, 21, 0, 0, 0, time.UTC)
	validityEnd := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		geometry    []Geometry
		notamExpire time.Time
		want        time.Time
	}{
		{
			name: "default without better information",
			want: rcvd.Add(cfg.TWGODefaultExpire),
		},
		{
			name:        "end of validity wins",
			geometry:    []Geometry{{StopTime: stop1}},
			notamExpire: validityEnd,
			want:        validityEnd,
		},
		{
			name:     "latest geometry stop time",
			geometry: []Geometry{{StopTime: stop2}, {StopTime: stop1}},
			want:     stop2,
		},
		{
			name:     "item without stop time falls back to default",
			geometry: []Geometry{{StopTime: stop1}, {}},
			want:     rcvd.Add(cfg.TWGODefaultExpire),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TwgoExpiration(&cfg, rcvd, tt.geometry, tt.notamExpire)
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTwgoExpirationBypass(t *testing.T) {
	cfg := Defaults()
	cfg.BypassSmartExpiration = true
	rcvd := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	validityEnd := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	got := TwgoExpiration(&cfg, rcvd, nil, validityEnd)
	want := rcvd.Add(cfg.TWGODefaultExpire)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
