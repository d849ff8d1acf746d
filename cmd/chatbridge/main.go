package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "chatbridge/pkg/ai/providers" // provider registration
	"chatbridge/pkg/config"
	"chatbridge/pkg/logging"
	"chatbridge/pkg/ui"
	"chatbridge/pkg/version"

	"golang.org/x/term"
)

func main() {
	var (
		showVersion bool
		prompt      string
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&prompt, "p", "", "send a single prompt and print the streamed reply")
	flag.StringVar(&prompt, "prompt", "", "send a single prompt and print the streamed reply")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Long())
		return
	}

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatbridge: %v\n", err)
		os.Exit(1)
	}
	if _, err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "chatbridge: %v\n", err)
		os.Exit(1)
	}
	slog.Info("chatbridge_start", "version", version.Summary(), "platform", version.Platform())

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "chatbridge: %v\n", err)
		os.Exit(1)
	}

	// A piped stdin is treated as the prompt, same as -p.
	if prompt == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chatbridge: read stdin: %v\n", err)
			os.Exit(1)
		}
		prompt = strings.TrimSpace(string(data))
	}

	if prompt != "" {
		var status io.Writer
		if term.IsTerminal(int(os.Stderr.Fd())) {
			status = os.Stderr
		}
		if err := runOneShot(cfg, prompt, os.Stdout, status); err != nil {
			fmt.Fprintf(os.Stderr, "chatbridge: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "chatbridge: interactive mode needs a terminal; use -p for one-shot output")
		os.Exit(1)
	}

	if err := ui.Run(cfg); err != nil {
		slog.Error("chatbridge_ui_error", "error", err)
		fmt.Fprintf(os.Stderr, "chatbridge: %v\n", err)
		os.Exit(1)
	}
}
