package workitem

import (
	"testing"
	"time"

	"github.com/marleyhealth/scheduling/internal/scheduling"
)

func TestParseFilters_PartialAndRange(t *testing.T) {
	q := ParseFilters(map[string]string{
		"00100010":       "Jane^",
		"00400002__from": "20250601",
		"00400002__to":   "20260630",
	})

	if got := q.Like["patient_name"]; got != "%Jane %" {
		t.Fatalf("caret decodes to space and wraps in wildcards, got %q", got)
	}
	rng, ok := q.Ranges["scheduled_date"]
	if !ok {
		t.Fatal("expected a scheduled_date range")
	}
	if rng.From != "20250601" || rng.To != "20260630" {
		t.Fatalf("unexpected range %+v", rng)
	}
	if q.Status != StatusScheduled {
		t.Fatalf("status should default to Scheduled, got %s", q.Status)
	}
}

func TestParseFilters_UnknownTagsIgnored(t *testing.T) {
	q := ParseFilters(map[string]string{
		"00081090": "SOMETOWER", // manufacturer model, not filterable
		"garbage":  "x",
		"00081030": "CT",
	})

	if len(q.Exact) != 1 {
		t.Fatalf("only the modality tag should survive, got %+v", q.Exact)
	}
	if q.Exact["modality"] != "CT" {
		t.Fatalf("expected modality CT, got %q", q.Exact["modality"])
	}
}

func TestParseFilters_StatusOverride(t *testing.T) {
	q := ParseFilters(map[string]string{"status": "In Progress"})
	if q.Status != StatusInProgress {
		t.Fatalf("expected status override, got %s", q.Status)
	}
}

func TestParseFilters_OneSidedRange(t *testing.T) {
	q := ParseFilters(map[string]string{"00400002__from": "20250601"})
	rng := q.Ranges["scheduled_date"]
	if rng.From != "20250601" || rng.To != "" {
		t.Fatalf("one-sided range should keep only From, got %+v", rng)
	}
}

func TestDicomGender(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"male", "M"},
		{"Female", "F"},
		{" OTHER ", "O"},
		{"unknown", "U"},
		{"", "U"},
		{"nonbinary", "U"},
	}
	for _, tc := range tests {
		if got := DicomGender(tc.in); got != tc.want {
			t.Errorf("DicomGender(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDataset(t *testing.T) {
	dob := time.Date(1988, 3, 14, 0, 0, 0, 0, time.UTC)
	sched := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	ds := Dataset(WorkItem{
		UPSInstanceUID:  "1.2.826.0.1.3680043.10.1145.20250601090000",
		AccessionNumber: "ACC123456",
		PatientRef:      "PAT 0042",
		PatientName:     "Jane Doe",
		Gender:          "female",
		DateOfBirth:     &dob,
		ProcedureCode:   "CT-HEAD",
		Modality:        "CT",
		StationAE:       "CT_SCANNER_1",
		ScheduledDate:   &sched,
		ScheduledTime:   scheduling.TimeOfDay(9 * 60),
	})

	checkValue := func(tagHex, want string) {
		t.Helper()
		a, ok := ds[tagHex].(map[string]any)
		if !ok {
			t.Fatalf("missing attribute %s", tagHex)
		}
		vals := a["Value"].([]any)
		if got := vals[0].(string); got != want {
			t.Errorf("%s = %q, want %q", tagHex, got, want)
		}
	}

	checkValue("00080016", "1.2.840.10008.5.1.4.34.5")
	checkValue("00080018", "1.2.826.0.1.3680043.10.1145.20250601090000")
	checkValue("00080050", "ACC123456")
	checkValue("00100020", "PAT-0042")
	checkValue("00100010", "Jane^Doe")
	checkValue("00100040", "F")
	checkValue("00100030", "19880314")
	checkValue("00400002", "20250601")
	checkValue("00404011", "20250601090000")

	// Procedure code sequence carries code value and modality.
	sq := ds["00404010"].(map[string]any)
	if sq["vr"] != "SQ" {
		t.Fatalf("procedure code should be a sequence, got %v", sq["vr"])
	}
	item := sq["Value"].([]any)[0].(map[string]any)
	if item["00080100"].(map[string]any)["Value"].([]any)[0] != "CT-HEAD" {
		t.Fatal("sequence missing the procedure code")
	}

	// Station AE keeps its split shape: bare vr plus a sibling Value key.
	ae := ds["0008005A"].(map[string]any)
	if ae["vr"] != "AE" {
		t.Fatalf("expected AE vr, got %v", ae["vr"])
	}
	if _, ok := ae["Value"]; ok {
		t.Fatal("station AE attribute must not carry an inline Value")
	}
	if ds["Value"].([]any)[0] != "CT_SCANNER_1" {
		t.Fatal("station AE value missing at top level")
	}
}

func TestAttrValue(t *testing.T) {
	data := map[string]any{
		"00400241": map[string]any{"vr": "AE", "Value": []any{"MOD_AE"}},
		"0020000D": map[string]any{"vr": "UI"},
	}

	if got := attrValue(data, "00400241"); got != "MOD_AE" {
		t.Fatalf("expected MOD_AE, got %q", got)
	}
	if got := attrValue(data, "0020000D"); got != "" {
		t.Fatalf("missing Value should yield empty, got %q", got)
	}
	if got := attrValue(data, "00100010"); got != "" {
		t.Fatalf("absent tag should yield empty, got %q", got)
	}
}

func TestValidateUID(t *testing.T) {
	if err := ValidateUID("1.2.840.10008.123"); err != nil {
		t.Fatalf("valid uid rejected: %v", err)
	}
	for _, uid := range []string{"", "1.2.3", "not-a-uid"} {
		if err := ValidateUID(uid); err == nil {
			t.Errorf("expected rejection for %q", uid)
		}
	}
}

func TestTmToMinute(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"090000", 540},
		{"0930", 570},
		{"235959", 1439},
		{"99", -1},
		{"xx0000", -1},
		{"250000", -1},
	}
	for _, tc := range tests {
		if got := tmToMinute(tc.in); got != tc.want {
			t.Errorf("tmToMinute(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
