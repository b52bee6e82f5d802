//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package probes

import "fmt"

func allocBytes(n uint64) ([]byte, func(), error) {
	if n == 0 {
		return nil, nil, fmt.Errorf("cannot allocate an empty buffer")
	}
	return make([]byte, n), func() {}, nil
}

func allocWords(n uint64) ([]int, func(), error) {
	if n == 0 {
		return nil, nil, fmt.Errorf("cannot allocate an empty buffer")
	}
	return make([]int, n), func() {}, nil
}
