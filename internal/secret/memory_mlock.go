//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package secret

import "golang.org/x/sys/unix"

// platformAllocator maps anonymous pages and locks them in RAM. Locking is
// best effort: RLIMIT_MEMLOCK may refuse it, in which case the pages are
// still private and still wiped on release.
type platformAllocator struct{}

func (platformAllocator) alloc(n int) ([]byte, bool) {
	if n == 0 {
		return []byte{}, false
	}
	region, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return make([]byte, n), false
	}
	if err := unix.Mlock(region); err != nil {
		return region, false
	}
	return region, true
}

func (platformAllocator) free(region []byte, locked bool) {
	if len(region) == 0 {
		return
	}
	if locked {
		_ = unix.Munlock(region)
	}
	// A failed Munmap means the region came from the heap fallback.
	_ = unix.Munmap(region)
}
