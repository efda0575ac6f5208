package domain

import (
	"testing"
	"time"
)

func TestParseJobKindFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    JobKind
		wantErr bool
	}{
		{"email", KindEmail, false},
		{"EMAIL", KindEmail, false},
		{" Phone ", KindPhone, false},
		{"fax", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseJobKindFromString(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseJobKindFromString(%q) = %q, want error", tt.input, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseJobKindFromString(%q) = %q, %v, want %q", tt.input, got, err, tt.want)
		}
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []JobStatus{JobStatusCompleted, JobStatusError, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusProcessing} {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestFormatProcessingTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{3 * time.Second, "3 sec"},
		{59 * time.Second, "59 sec"},
		{60 * time.Second, "60 sec"},
		{61 * time.Second, "1:01"},
		{150 * time.Second, "2:30"},
		{3720 * time.Second, "62:00"},
	}
	for _, tt := range tests {
		if got := FormatProcessingTime(tt.elapsed); got != tt.want {
			t.Errorf("FormatProcessingTime(%v) = %q, want %q", tt.elapsed, got, tt.want)
		}
	}
}

func TestStatsRecord(t *testing.T) {
	t.Parallel()

	var stats Stats
	stats.Record(VerificationResult{Identifier: "a@example.com", Valid: true})
	stats.Record(Rejected("b@example.com", CategorySyntax, "Invalid Email Syntax"))
	stats.Record(Rejected("c@example.com", CategorySyntax, "Invalid Email Syntax"))
	stats.Record(Rejected("d@example.com", CategoryTimeout, "SMTP Verification Failed: Connection timeout"))

	if stats.Accepted != 1 || stats.Rejected != 3 {
		t.Fatalf("accepted/rejected = %d/%d, want 1/3", stats.Accepted, stats.Rejected)
	}
	if stats.Reasons[CategorySyntax] != 2 || stats.Reasons[CategoryTimeout] != 1 {
		t.Fatalf("reasons = %v, want SYNTAX:2 TIMEOUT:1", stats.Reasons)
	}
}
