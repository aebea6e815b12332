package localtime

import (
	"testing"
	"time"
)

func TestCodecRoundTrip(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name string
		loc  *time.Location
		dt   DateTime
	}{
		{
			name: "fixed zone",
			loc:  time.FixedZone("TST", -5*3600),
			dt:   DateTime{2024, time.January, 15, 9, 30},
		},
		{
			name: "utc midnight",
			loc:  time.UTC,
			dt:   DateTime{2024, time.June, 1, 0, 0},
		},
		{
			name: "before spring forward",
			loc:  ny,
			dt:   DateTime{2024, time.March, 9, 12, 0},
		},
		{
			name: "after spring forward",
			loc:  ny,
			dt:   DateTime{2024, time.March, 11, 12, 0},
		},
		{
			name: "before fall back",
			loc:  ny,
			dt:   DateTime{2024, time.November, 2, 12, 0},
		},
		{
			name: "after fall back",
			loc:  ny,
			dt:   DateTime{2024, time.November, 4, 12, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := NewCodec(tt.loc)
			got := codec.ToLocal(codec.ToInstant(tt.dt))
			if got != tt.dt {
				t.Errorf("round trip = %v, want %v", got, tt.dt)
			}
		})
	}
}

func TestCodecUsesPerDateOffset(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	codec := NewCodec(ny)

	// Same wall-clock time on either side of the 2024-03-10 spring-forward
	// transition must resolve with that date's own offset.
	before := codec.ToInstant(DateTime{2024, time.March, 9, 12, 0})
	after := codec.ToInstant(DateTime{2024, time.March, 11, 12, 0})

	if want := time.Date(2024, time.March, 9, 17, 0, 0, 0, time.UTC); !before.Equal(want) {
		t.Errorf("before transition = %v, want %v (EST, UTC-5)", before, want)
	}
	if want := time.Date(2024, time.March, 11, 16, 0, 0, 0, time.UTC); !after.Equal(want) {
		t.Errorf("after transition = %v, want %v (EDT, UTC-4)", after, want)
	}
}

func TestCodecInstantRoundTrip(t *testing.T) {
	codec := NewCodec(time.FixedZone("TST", 3*3600))

	// Instants whose local form does not fall in a skipped hour round-trip
	// exactly (minute precision).
	instant := time.Date(2024, time.May, 7, 18, 45, 0, 0, time.UTC)
	got := codec.ToInstant(codec.ToLocal(instant))
	if !got.Equal(instant) {
		t.Errorf("round trip = %v, want %v", got, instant)
	}
}

func TestDateWeekday(t *testing.T) {
	tests := []struct {
		date Date
		want time.Weekday
	}{
		{Date{Year: 2024, Month: time.January, Day: 7}, time.Sunday},
		{Date{Year: 2024, Month: time.January, Day: 8}, time.Monday},
		{Date{Year: 2024, Month: time.February, Day: 29}, time.Thursday},
	}

	for _, tt := range tests {
		if got := tt.date.Weekday(); got != tt.want {
			t.Errorf("%s weekday = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2024, Month: time.January, Day: 7}

	if got := d.AddDays(1); got != (Date{Year: 2024, Month: time.January, Day: 8}) {
		t.Errorf("AddDays(1) = %v", got)
	}
	if got := d.AddDays(25); got != (Date{Year: 2024, Month: time.February, Day: 1}) {
		t.Errorf("AddDays(25) = %v", got)
	}
	if got := d.DaysUntil(Date{Year: 2024, Month: time.January, Day: 21}); got != 14 {
		t.Errorf("DaysUntil = %d, want 14", got)
	}
	if got := d.DaysUntil(Date{Year: 2024, Month: time.January, Day: 1}); got != -6 {
		t.Errorf("DaysUntil backwards = %d, want -6", got)
	}
	if !d.Before(Date{Year: 2024, Month: time.January, Day: 8}) {
		t.Error("Before = false, want true")
	}
	if d.After(Date{Year: 2024, Month: time.January, Day: 8}) {
		t.Error("After = true, want false")
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-01-21")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got != (Date{Year: 2024, Month: time.January, Day: 21}) {
		t.Errorf("ParseDate = %v", got)
	}

	if _, err := ParseDate("21/01/2024"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime("2024-01-07 18:30")
	if err != nil {
		t.Fatalf("ParseDateTime: %v", err)
	}
	want := DateTime{Year: 2024, Month: time.January, Day: 7, Hour: 18, Minute: 30}
	if got != want {
		t.Errorf("ParseDateTime = %v, want %v", got, want)
	}
}
