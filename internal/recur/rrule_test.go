package recur

import (
	"strings"
	"testing"
	"time"
)

func TestToRRule(t *testing.T) {
	rule := Rule{
		Weekdays:    []time.Weekday{time.Monday, time.Wednesday},
		StrideWeeks: 2,
		Until:       datep(2024, time.January, 21),
	}
	anchorStart := time.Date(2024, time.January, 7, 9, 0, 0, 0, time.UTC)

	rr, err := ToRRule(rule, anchorStart)
	if err != nil {
		t.Fatalf("ToRRule: %v", err)
	}

	s := rr.String()
	for _, want := range []string{"FREQ=WEEKLY", "INTERVAL=2", "MO", "WE", "UNTIL=20240121"} {
		if !strings.Contains(s, want) {
			t.Errorf("rrule %q missing %q", s, want)
		}
	}
}

func TestToRRuleInert(t *testing.T) {
	if _, err := ToRRule(Rule{}, time.Now()); err == nil {
		t.Error("expected error for inert rule")
	}
}

func TestFromRRule(t *testing.T) {
	rule, err := FromRRule("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;UNTIL=20240121T235959Z")
	if err != nil {
		t.Fatalf("FromRRule: %v", err)
	}

	if !rule.Active() {
		t.Fatal("rule should be active")
	}
	if rule.StrideWeeks != 2 {
		t.Errorf("StrideWeeks = %d, want 2", rule.StrideWeeks)
	}
	if len(rule.Weekdays) != 2 || !rule.onWeekday(time.Monday) || !rule.onWeekday(time.Wednesday) {
		t.Errorf("Weekdays = %v, want Monday and Wednesday", rule.Weekdays)
	}
	if rule.Until == nil || rule.Until.Day != 21 {
		t.Errorf("Until = %v, want 2024-01-21", rule.Until)
	}
}

func TestFromRRuleUnsupportedFrequency(t *testing.T) {
	if _, err := FromRRule("FREQ=MONTHLY;BYMONTHDAY=1"); err == nil {
		t.Error("expected error for non-weekly rule")
	}
}

func TestRRuleRoundTrip(t *testing.T) {
	rule := Rule{
		Weekdays:    []time.Weekday{time.Sunday, time.Friday},
		StrideWeeks: 3,
		Until:       datep(2024, time.June, 30),
	}

	rr, err := ToRRule(rule, time.Date(2024, time.May, 3, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ToRRule: %v", err)
	}

	back, err := FromRRule(rr.String())
	if err != nil {
		t.Fatalf("FromRRule: %v", err)
	}

	if back.StrideWeeks != rule.StrideWeeks {
		t.Errorf("StrideWeeks = %d, want %d", back.StrideWeeks, rule.StrideWeeks)
	}
	if len(back.Weekdays) != len(rule.Weekdays) {
		t.Fatalf("Weekdays = %v, want %v", back.Weekdays, rule.Weekdays)
	}
	for _, wd := range rule.Weekdays {
		if !back.onWeekday(wd) {
			t.Errorf("weekday %v lost in round trip", wd)
		}
	}
	if back.Until == nil || *back.Until != *rule.Until {
		t.Errorf("Until = %v, want %v", back.Until, rule.Until)
	}
}
