package http

import (
	"time"

	xutil "PerpLens/pkg/util"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix timestamps. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
