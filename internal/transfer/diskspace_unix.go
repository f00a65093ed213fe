//go:build unix

package transfer

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

func checkFreeSpace(dir string, minFree uint64) error {
	if minFree == 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		// Unable to measure is not a reason to refuse the download.
		return nil
	}
	available := st.Bavail * uint64(st.Bsize)
	if available < minFree {
		return fmt.Errorf("%w: %d bytes available in %s, need %d", usgserr.ErrDiskSpace, available, dir, minFree)
	}
	return nil
}
