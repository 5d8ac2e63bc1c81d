package logstore

import "fmt"

const (
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
)

// Humanize formats a byte count with binary steps: "N B" below 1 KB,
// otherwise two decimals in KB, MB or GB.
func Humanize(bytes int64) string {
	switch {
	case bytes < kib:
		return fmt.Sprintf("%d B", bytes)
	case bytes < mib:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kib)
	case bytes < gib:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mib)
	default:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gib)
	}
}
