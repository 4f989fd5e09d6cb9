package tweet

import (
	"testing"
	"time"
)

func TestFormatter_MountainTime(t *testing.T) {
	f, err := NewFormatter(DefaultTimezone)
	if err != nil {
		t.Fatalf("NewFormatter error: %v", err)
	}

	// 03:30 UTC on Oct 12 is still Oct 11 in Denver (UTC-6 during daylight saving time)
	ts := time.Date(2023, time.October, 12, 3, 30, 5, 0, time.UTC)
	if got := f.DisplayDate(ts); got != "October 11, 2023" {
		t.Errorf("DisplayDate() = %q, want %q", got, "October 11, 2023")
	}
	if got := f.FileStem(ts); got != "October_11_2023_21_30_05" {
		t.Errorf("FileStem() = %q, want %q", got, "October_11_2023_21_30_05")
	}
}

func TestFormatter_UTC(t *testing.T) {
	f, err := NewFormatter("UTC")
	if err != nil {
		t.Fatalf("NewFormatter error: %v", err)
	}
	ts := time.Date(2023, time.March, 5, 8, 0, 0, 0, time.UTC)
	if got := f.DisplayDate(ts); got != "March 05, 2023" {
		t.Errorf("DisplayDate() = %q, want %q", got, "March 05, 2023")
	}
}

func TestNewFormatter_UnknownZone(t *testing.T) {
	if _, err := NewFormatter("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestSanitizeFileStem(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"October 11, 2023", "October_11_2023"},
		{"October 11, 2023 14:02:33", "October_11_2023_14_02_33"},
		{"../../etc/passwd", "etcpasswd"},
		{"  spaced  out  ", "spaced_out"},
		{"a-b_c", "a-b_c"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFileStem(tt.in); got != tt.want {
				t.Errorf("SanitizeFileStem(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
