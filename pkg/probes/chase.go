package probes

import (
	"math/rand/v2"
	"unsafe"
)

const wordSize = uint64(unsafe.Sizeof(int(0)))

// sink keeps chase results alive so the loads are not optimised away.
var sink int

// chase follows the chain for steps loads. Every load depends on the
// previous one.
func chase(list []int, p, steps int) int {
	for i := 0; i < steps; i++ {
		p = list[p]
	}
	return p
}

// fillCycle turns list into a single random cycle over all of its indices
// (Sattolo's algorithm): list[i] is the index visited after i.
func fillCycle(list []int, rng *rand.Rand) {
	for i := range list {
		list[i] = i
	}
	for i := len(list) - 1; i > 0; i-- {
		j := rng.IntN(i)
		list[i], list[j] = list[j], list[i]
	}
}

// linkBlocks chains the first word of each of the n blocks, stride words
// apart, into one random cycle. Other words are left untouched.
func linkBlocks(list []int, n, stride int, rng *rand.Rand) {
	order := make([]int, n)
	fillCycle(order, rng)
	for b, next := range order {
		list[b*stride] = next * stride
	}
}
