package logstore

import "testing"

func TestHumanize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{2048, "2.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Humanize(tt.bytes); got != tt.want {
				t.Errorf("Humanize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
