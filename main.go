// Package main provides the entry point for rv32sim.
// rv32sim is a RISC-V 32-bit system emulator that boots Linux.
//
// For the full CLI, use: go run ./cmd/rv32sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rv32sim - RISC-V 32-bit Linux system emulator")
	fmt.Println("")
	fmt.Println("Usage: rv32sim [options] <kernel-image>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  --ram <MiB>      RAM size (default 64)")
	fmt.Println("  --initrd <path>  Initrd image")
	fmt.Println("  --benchmark      Exit on shell prompt, report MIPS")
	fmt.Println("  --jit-v2         Enable the advanced block cache")
	fmt.Println("  --fs <path>      Advertise a VirtIO-9P mount tag (files are not served)")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rv32sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rv32sim' instead.")
	}
}
