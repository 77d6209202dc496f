package dates

import (
	"testing"
	"time"
)

func TestForceFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, ""},
		{"empty string", "", ""},
		{"hash na", "#N/A", ""},
		{"iso dashes", "2024-03-05", "2024/3/5"},
		{"iso slashes", "2024/03/05", "2024/3/5"},
		{"already unpadded", "2024/3/5", "2024/3/5"},
		{"datetime embedded", "2024-03-05 14:22:01", "2024/3/5"},
		{"chinese format", "2024年3月5日", "2024/3/5"},
		{"serial number", float64(45356), "2024/3/5"},
		{"serial epoch", float64(25569), "1970/1/1"},
		{"long form", "Mar 5, 2024", "2024/3/5"},
		{"garbage passes through", "not a date", "not a date"},
		{"numeric string passes through", "45356", "45356"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForceFormat(tt.input); got != tt.expected {
				t.Errorf("ForceFormat(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDisplayFormat(t *testing.T) {
	if got := DisplayFormat(""); got != "#N/A" {
		t.Errorf("DisplayFormat(\"\") = %q, want #N/A", got)
	}
	if got := DisplayFormat("2024-03-05"); got != "2024/3/5" {
		t.Errorf("DisplayFormat() = %q, want 2024/3/5", got)
	}
	// Unparseable values still surface instead of becoming #N/A.
	if got := DisplayFormat("pending"); got != "pending" {
		t.Errorf("DisplayFormat(pending) = %q, want pending", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input any
		ok    bool
		y     int
		m     time.Month
		d     int
	}{
		{"iso", "2024-03-05", true, 2024, time.March, 5},
		{"mdy", "3/5/2024", true, 2024, time.March, 5},
		{"chinese", "2024年12月31日", true, 2024, time.December, 31},
		{"serial", float64(45356), true, 2024, time.March, 5},
		{"empty", "", false, 0, 0, 0},
		{"garbage", "soon", false, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.ok {
				t.Fatalf("Parse(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Year() != tt.y || got.Month() != tt.m || got.Day() != tt.d {
				t.Errorf("Parse(%v) = %v, want %d-%d-%d", tt.input, got, tt.y, tt.m, tt.d)
			}
		})
	}
}
