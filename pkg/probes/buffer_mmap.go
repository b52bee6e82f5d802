//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package probes

import (
	"fmt"
	"unsafe"

	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	"golang.org/x/sys/unix"
)

// allocBytes maps a fresh anonymous region. It is page aligned and none of
// its pages have been touched yet.
func allocBytes(n uint64) ([]byte, func(), error) {
	if n == 0 {
		return nil, nil, fmt.Errorf("cannot allocate an empty buffer")
	}
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap of %d bytes failed: %w", n, err)
	}
	release := func() {
		if err := unix.Munmap(b); err != nil {
			log.Warnf("munmap of %d bytes failed: %v", n, err)
		}
	}
	return b, release, nil
}

// allocWords returns n machine words backed by allocBytes.
func allocWords(n uint64) ([]int, func(), error) {
	b, release, err := allocBytes(n * wordSize)
	if err != nil {
		return nil, nil, err
	}
	return unsafe.Slice((*int)(unsafe.Pointer(&b[0])), n), release, nil
}
