package version

import "time"

// Encode packs a UTC instant into the build and revision fields.
//
//	build    = (year % 100) * 1000 + day of year (1-based)
//	revision = (hour + 1) * 1000 + minute
//
// hour+1 keeps revision non-zero for builds made between 00:00 and 00:59.
func Encode(t time.Time) (build uint64, revision uint64) {
	t = t.UTC()
	build = uint64(t.Year()%100)*1000 + uint64(t.YearDay())
	revision = uint64(t.Hour()+1)*1000 + uint64(t.Minute())
	return build, revision
}

// Stamp returns base with build and revision replaced by Encode(t).
func Stamp(base Info, t time.Time) Info {
	base.Build, base.Revision = Encode(t)
	return base
}
