//go:build linux

package jobstore

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// accessTime returns the atime of path. Mounts with noatime keep it at the
// creation time, relatime updates it at most daily.
func accessTime(path string, info fs.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err == nil {
		return time.Unix(st.Atim.Unix())
	}
	return info.ModTime()
}
