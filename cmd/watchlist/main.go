// Package main is a command-line client for MovieManager.
//
// It keeps the same local state a browser tab would (the watchlist mirror,
// the undo stack, the session) in ~/.moviemanager, so edits survive between
// invocations until they are saved.
//
// USAGE:
//
//	watchlist [-server URL] [-dir DIR] [-v] <command> [args]
//
// Configuration can also come from the environment (or a .env file):
// MOVIEMANAGER_URL, MOVIEMANAGER_DIR, MOVIEMANAGER_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// run is main without the process exit, so tests can drive it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	// A missing .env is normal.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("watchlist", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverURL := fs.String("server", getEnv("MOVIEMANAGER_URL", "http://localhost:8080"), "API base URL")
	dir := fs.String("dir", os.Getenv("MOVIEMANAGER_DIR"), "local state directory (default ~/.moviemanager)")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: watchlist [flags] <command> [args]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "commands:")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-22s %s\n", c.usage, c.help)
		}
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cmd, ok := lookup(fs.Arg(0))
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}
	cmdArgs := fs.Args()[1:]
	if len(cmdArgs) != cmd.nargs {
		return fmt.Errorf("usage: watchlist %s", cmd.usage)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a, err := newApp(*serverURL, *dir, stdin, stdout, logger)
	if err != nil {
		return err
	}
	return cmd.run(ctx, a, cmdArgs)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
