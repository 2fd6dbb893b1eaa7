package usage

import (
	"fmt"
	"strconv"
)

const (
	kib = 1024
	mib = 1024 * 1024
)

// FormatBytes renders n as "N MB" or "N KB", truncating, or as a plain integer
// below one KiB.
func FormatBytes(n uint64) string {
	if mb := n / mib; mb > 0 {
		return fmt.Sprintf("%d MB", mb)
	}
	if kb := n / kib; kb > 0 {
		return fmt.Sprintf("%d KB", kb)
	}
	return strconv.FormatUint(n, 10)
}

// FormatDuration renders whole seconds as H:MM:SS, prefixed by "N day(s), "
// once the value reaches a day.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	rem := seconds % 86400
	hms := fmt.Sprintf("%d:%02d:%02d", rem/3600, (rem%3600)/60, rem%60)
	switch {
	case days == 1:
		return "1 day, " + hms
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
	return hms
}
