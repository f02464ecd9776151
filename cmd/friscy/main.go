package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/friscy-go/friscy/internal/launcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "friscy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootfs := flag.String("rootfs", "", "Path to a tar-formatted root filesystem")
	entry := flag.String("entry", "/bin/sh", "Guest path to the entry binary")
	configPath := flag.String("config", "", "Optional YAML config file (overrides flags not set on the command line)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	snapshotOut := flag.String("save-snapshot", "", "Write a snapshot to this path after the guest exits")
	snapshotIn := flag.String("restore-snapshot", "", "Restore from this snapshot path before starting")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [-- guest-args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run a RISC-V 64 Linux binary under the friscy syscall emulator.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -rootfs alpine.tar -entry /bin/busybox -- sh\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config friscy.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := defaultConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if *rootfs != "" {
		cfg.Rootfs = *rootfs
	}
	if *entry != "/bin/sh" || cfg.Entry == "" {
		cfg.Entry = *entry
	}
	if cfg.Rootfs == "" {
		flag.Usage()
		return fmt.Errorf("rootfs required (-rootfs or config file)")
	}

	tarBytes, err := os.ReadFile(cfg.Rootfs)
	if err != nil {
		return fmt.Errorf("read rootfs: %w", err)
	}

	argv := append([]string{cfg.Entry}, flag.Args()...)

	l := launcher.New(
		launcher.WithLogger(logger),
		launcher.WithOutput(func(s string) { io.WriteString(os.Stdout, s) }),
	)
	if !l.Init() {
		return fmt.Errorf("init failed")
	}
	defer l.Destroy()

	if !l.LoadRootfs(tarBytes, cfg.Entry, argv) {
		return fmt.Errorf("load rootfs: %w", l.LastError())
	}

	if *snapshotIn != "" {
		if !l.RestoreSnapshot(*snapshotIn) {
			return fmt.Errorf("restore snapshot: %w", l.LastError())
		}
	}

	if !l.Start() {
		return fmt.Errorf("start failed")
	}

	go pumpStdin(l)
	l.Wait()

	if *snapshotOut != "" {
		if !l.SaveSnapshot(*snapshotOut) {
			return fmt.Errorf("save snapshot: %w", l.LastError())
		}
	}
	return nil
}

// pumpStdin relays host stdin to the guest's stdin queue, the host-side
// half of spec.md §6's send_input.
func pumpStdin(l *launcher.Launcher) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			l.SendInput(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}
