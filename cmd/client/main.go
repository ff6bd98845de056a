package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"FromChat/internal/cli/commands"
	"FromChat/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// адрес сервера и параметры ключей: env, затем флаги
	cfg := config.NewConfig()

	if cfg.Version {
		printVersion(os.Stdout, cfg)
		return
	}

	// Ctrl+C прерывает listen и незавершённые запросы по сокету
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exitCode := commands.Dispatch(ctx, cfg, flag.Args())
	if exitCode == 0 {
		return
	}
	os.Exit(exitCode)
}

// printVersion печатает версию клиента и сервер, с которым он будет работать.
func printVersion(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "FromChat CLI %s (built %s)\n", version, buildDate)
	fmt.Fprintf(w, "Server: %s\nSocket: %s\n", orUnset(cfg.ServerURL), orUnset(cfg.SocketURL))
}

func orUnset(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}
