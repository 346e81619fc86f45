//go:build linux

package device

import "golang.org/x/sys/unix"

// statfsUsage returns total and free bytes for the filesystem at path.
func statfsUsage(path string) (total, free int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Frsize * int64(st.Blocks), st.Frsize * int64(st.Bfree), nil
}
