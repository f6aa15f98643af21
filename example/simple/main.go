//go:build linux

// Command simple captures on the interface named by the first
// argument with one blocking ring per CPU, all in the same hash
// fanout group.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sofiworker/afring/ring"
)

func worker(idx int, iface string) {
	r, err := ring.FromIfName(iface)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start worker #%d: %v\n", idx, err)
		os.Exit(1)
	}
	defer r.Close()

	for {
		blk := r.RecvBlock() // blocks until the next block ripens
		it := blk.ConsumingIter()
		for it.Next() {
			_ = it.Packet().Payload()

			// do something
		}
		it.Close() // hands the block back to the kernel
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interface>\n", os.Args[0])
		os.Exit(2)
	}
	iface := os.Args[1]

	for idx := 0; idx < runtime.NumCPU(); idx++ {
		go worker(idx, iface)
	}
	select {}
}
