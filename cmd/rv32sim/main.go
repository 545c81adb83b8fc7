// Package main provides the native CLI for rv32sim.
// rv32sim boots a RISC-V 32-bit Linux kernel to an interactive shell.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"golang.org/x/term"

	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/system"
)

var (
	ramSizeMB  = flag.Uint("ram", 64, "RAM size in MiB")
	initrdPath = flag.String("initrd", "", "Path to an initrd image")
	benchmark  = flag.Bool("benchmark", false, "Exit on shell-prompt detection and report MIPS")
	jitV2      = flag.Bool("jit-v2", false, "Enable the advanced block cache")
	fsPath     = flag.String("fs", "", "Host directory for VirtIO-9P (advertises the mount tag only; files are not served)")
	rawMode    = flag.Bool("raw", false, "Load the image at the RAM base and run it in M-mode")
	configPath = flag.String("config", "", "Path to a YAML machine description")
	verbose    = flag.Bool("v", false, "Verbose output (trap and SBI tracing)")
)

// batchCycles is how many cycles run between host I/O services.
const batchCycles = 100_000

// maxTotalCycles bounds a run; at the advertised 10 MHz timebase this is
// far beyond any reasonable boot.
const maxTotalCycles = 10_000_000_000

// shellPrompt matches the trailing bytes of an interactive shell prompt
// in the UART stream.
var shellPrompt = regexp.MustCompile(`(#|\$) $`)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	kernelPath := flag.Arg(0)
	cmdline := ""
	ram := uint32(*ramSizeMB)
	initrd := *initrdPath
	share := *fsPath

	if *configPath != "" {
		cfg, err := system.LoadMachineConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if cfg.Kernel != "" && kernelPath == "" {
			kernelPath = cfg.Kernel
		}
		if cfg.Initrd != "" && initrd == "" {
			initrd = cfg.Initrd
		}
		if cfg.RAMSizeMB != 0 {
			ram = cfg.RAMSizeMB
		}
		if cfg.Share != "" && share == "" {
			share = cfg.Share
		}
		cmdline = cfg.Cmdline
	}

	if kernelPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: rv32sim [options] <kernel-image>\n\nOptions:\n")
		flag.PrintDefaults()
		return 1
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	shareTag := ""
	if share != "" {
		shareTag = "hostshare"
	}

	sys, err := system.New(system.Config{
		RAMSizeMB: ram,
		ShareTag:  shareTag,
		JITV2:     *jitV2,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	kernel, err := loader.ReadImage(kernelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var initrdData []byte
	if initrd != "" {
		initrdData, err = loader.ReadImage(initrd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *rawMode {
		err = sys.LoadRaw(kernel)
	} else {
		if cmdline == "" {
			// lpj skips the delay calibration loop, which takes ages
			// under emulation.
			if len(initrdData) > 0 {
				cmdline = "lpj=10000 console=ttyS0 earlycon rdinit=/sbin/init"
			} else {
				cmdline = "lpj=10000 console=ttyS0 earlycon root=/dev/vda ro"
			}
		}
		err = sys.LoadLinux(kernel, initrdData, cmdline)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *verbose {
		fmt.Printf("Loaded: %s (%d bytes)\n", kernelPath, len(kernel))
		if len(initrdData) > 0 {
			fmt.Printf("Initrd: %s (%d bytes)\n", initrd, len(initrdData))
		}
		fmt.Printf("RAM: %d MiB\n", ram)
	}

	input, restore := startConsoleInput()
	defer restore()
	start := time.Now()

	var total uint64
	var promptTail []byte
	for {
		ran := sys.Run(batchCycles)
		total += uint64(ran)

		out := sys.ConsoleOutput()
		if len(out) > 0 {
			os.Stdout.Write(out)
			if *benchmark {
				promptTail = append(promptTail, out...)
				if len(promptTail) > 64 {
					promptTail = promptTail[len(promptTail)-64:]
				}
				if shellPrompt.Match(promptTail) {
					elapsed := time.Since(start)
					mips := float64(sys.InstCount()) / elapsed.Seconds() / 1e6
					fmt.Printf("\nShell prompt after %.1fs, %d instructions (%.1f MIPS)\n",
						elapsed.Seconds(), sys.InstCount(), mips)
					return 0
				}
			}
		}

		drainInput(sys, input)

		if sys.Halted() {
			fmt.Println("\nGuest requested shutdown.")
			return 0
		}
		if sys.CPU.PC == 0 {
			fmt.Println("\nPC jumped to 0, halting.")
			dumpState(sys)
			return 1
		}
		if total > maxTotalCycles {
			fmt.Println("\nTimeout reached, halting.")
			dumpState(sys)
			return 1
		}
	}
}

// dumpState prints the register file on abnormal exit when verbose.
func dumpState(sys *system.System) {
	if !*verbose {
		return
	}
	fmt.Fprintf(os.Stderr, "pc=%#010x priv=%d instret=%d\n",
		sys.CPU.PC, sys.CPU.Priv, sys.InstCount())
	for i := 0; i < 32; i += 4 {
		fmt.Fprintf(os.Stderr, "x%-2d=%08x x%-2d=%08x x%-2d=%08x x%-2d=%08x\n",
			i, sys.CPU.Regs[i], i+1, sys.CPU.Regs[i+1],
			i+2, sys.CPU.Regs[i+2], i+3, sys.CPU.Regs[i+3])
	}
}

// startConsoleInput switches the host terminal into raw mode when stdin
// is one, and pumps stdin bytes into a channel the run loop drains
// between batches. The returned function restores the terminal state.
func startConsoleInput() (<-chan byte, func()) {
	restore := func() {}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) && !*benchmark {
		if oldState, err := term.MakeRaw(fd); err == nil {
			restore = func() { _ = term.Restore(fd, oldState) }
		}
	}

	ch := make(chan byte, 1024)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			for _, b := range buf[:n] {
				ch <- b
			}
			if err != nil {
				close(ch)
				return
			}
		}
	}()
	return ch, restore
}

// drainInput moves all pending host bytes into the UART receive FIFO.
func drainInput(sys *system.System, input <-chan byte) {
	for {
		select {
		case b, ok := <-input:
			if !ok {
				return
			}
			sys.ConsoleInput([]byte{b})
		default:
			return
		}
	}
}
