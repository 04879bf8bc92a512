//go:build darwin

package reactor

import "golang.org/x/sys/unix"

// sysSelect papers over the differing unix.Select signatures across
// platforms; the ready count is recomputed from the sets by the caller.
func sysSelect(nfds int, r, w, e *unix.FdSet, timeout *unix.Timeval) error {
	return unix.Select(nfds, r, w, e, timeout)
}
