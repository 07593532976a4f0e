package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"

	"github.com/go-authgate/slowfall-cli/tui"
)

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	cfg, args, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if len(args) == 0 {
		printUsage(os.Stderr, nil)
		os.Exit(2)
	}

	if isTTY() {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		runErr := run(cfg, args, d, os.Stderr)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		os.Exit(exitCode(runErr))
	}

	d := tui.NewPlainDisplayer(os.Stderr, os.Stdout)
	os.Exit(exitCode(run(cfg, args, d, os.Stderr)))
}

func run(cfg *Config, args []string, d tui.Displayer, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.Banner(args[0])
	logger := newLogger(cfg.LogLevel, stderr)

	a, err := newApp(ctx, cfg, d, logger, nil)
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer a.close()

	if err := dispatch(ctx, a, args); err != nil {
		d.Fatal(err)
		return err
	}
	return nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		return 1
	}
}
