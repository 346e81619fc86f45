//go:build !linux

package device

// statfsUsage is a stub on platforms without a /proc/mounts table; the
// resolver falls back to a synthetic device there anyway.
func statfsUsage(path string) (total, free int64, err error) {
	return 0, 0, nil
}
