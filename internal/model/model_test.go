package model

import (
	"errors"
	"testing"
)

func TestParseEnums(t *testing.T) {
	if c, err := ParseCategory(" Work "); err != nil || c != CategoryWork {
		t.Fatalf("expected work, got %q (%v)", c, err)
	}
	if _, err := ParseCategory("chores"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
	if p, err := ParsePriority("HIGH"); err != nil || p != PriorityHigh {
		t.Fatalf("expected high, got %q (%v)", p, err)
	}
	if _, err := ParsePriority("urgent"); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if s, err := ParseStatus("in-progress"); err != nil || s != StatusInProgress {
		t.Fatalf("expected in_progress, got %q (%v)", s, err)
	}
	if _, err := ParseStatus("done"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if got := ParseMemoryType("whatever"); got != MemoryFactType {
		t.Fatalf("expected fallback fact type, got %q", got)
	}
}

func TestMetaRoundTripAndUnknownVersion(t *testing.T) {
	warning := "too much"
	raw, err := EncodeMeta(SummaryMeta(ActionSummary{
		Created:     []TaskRef{{ID: 3, Title: "Report"}},
		LoadWarning: &warning,
	}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	meta, err := DecodeMeta(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.Kind != MetaActionSummary || meta.Summary == nil {
		t.Fatalf("expected action summary, got %+v", meta)
	}
	if meta.Summary.Created[0].Title != "Report" || *meta.Summary.LoadWarning != warning {
		t.Fatalf("summary not preserved: %+v", meta.Summary)
	}

	future, err := DecodeMeta(`{"version":7,"kind":"something"}`)
	if err != nil {
		t.Fatalf("decode future version: %v", err)
	}
	if future.Kind != MetaUnknown {
		t.Fatalf("expected unknown kind, got %q", future.Kind)
	}

	empty, err := DecodeMeta("{}")
	if err != nil || empty.Kind != MetaNone {
		t.Fatalf("expected none for empty blob, got %+v (%v)", empty, err)
	}
}

func TestProfilePatchOnlyOverwritesSuppliedFields(t *testing.T) {
	profile := DefaultProfile(1)
	profile.Occupation = "Engineer"

	hours := 6.0
	name := "Anna"
	ProfilePatch{Name: &name, MaxDailyHours: &hours}.Apply(&profile)

	if profile.Name != "Anna" || profile.MaxDailyHours != 6 {
		t.Fatalf("patch not applied: %+v", profile)
	}
	if profile.Occupation != "Engineer" || profile.WakeTime != "08:00" {
		t.Fatalf("untouched fields changed: %+v", profile)
	}
}
