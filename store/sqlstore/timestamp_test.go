package sqlstore

import (
	"testing"
	"time"
)

func TestTimestampScan(t *testing.T) {
	want := time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC)
	for _, src := range []any{
		want,
		want.In(time.FixedZone("CET", 3600)),
		"2024-03-09 14:05:07.123456+00:00",
		[]byte("2024-03-09 14:05:07.123456"),
		"2024-03-09T14:05:07.123456Z",
		want.UnixMilli() * 1,
	} {
		var ts timestamp
		if err := ts.Scan(src); err != nil {
			t.Fatalf("%T %v: %v", src, src, err)
		}
		diff := ts.Time.Sub(want)
		if diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("%T %v: expected %v, got %v", src, src, want, ts.Time)
		}
	}

	var ts timestamp
	if err := ts.Scan("yesterday"); err == nil {
		t.Error("expected an error for an unparseable value")
	}
	if err := ts.Scan(3.5); err == nil {
		t.Error("expected an error for an unsupported type")
	}
}
