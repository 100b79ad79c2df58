//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package secret

// platformAllocator falls back to the Go heap where page locking is not
// available. Contents are still wiped on release.
type platformAllocator = heapAllocator
