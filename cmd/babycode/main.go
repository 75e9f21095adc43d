package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/babycode/pkg/engine"
	"github.com/germanamz/babycode/pkg/feed"
)

const version = "0.1.0"

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			initCmd := flag.NewFlagSet("init", flag.ExitOnError)
			initCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: babycode init [flags]\n\nCreate a configuration file interactively.\n\nFlags:\n")
				initCmd.PrintDefaults()
			}
			out := initCmd.String("out", engine.DefaultConfigFile, "path of the configuration file to write")
			_ = initCmd.Parse(os.Args[2:])

			exitOnError(runInit(*out))
			return
		case "mcp":
			mcpCmd := flag.NewFlagSet("mcp", flag.ExitOnError)
			mcpCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: babycode mcp [flags]\n\nServe the file tools over MCP on stdin/stdout.\n\nFlags:\n")
				mcpCmd.PrintDefaults()
			}
			root := mcpCmd.String("root", "", "confine file tools to this directory")
			_ = mcpCmd.Parse(os.Args[2:])

			exitOnError(runMCP(*root))
			return
		case "watch":
			watchCmd := flag.NewFlagSet("watch", flag.ExitOnError)
			watchCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: babycode watch [flags]\n\nPrint the event feed of a running babycode as JSON lines.\n\nFlags:\n")
				watchCmd.PrintDefaults()
			}
			url := watchCmd.String("url", "ws://localhost:7777"+feed.Path, "event feed URL")
			_ = watchCmd.Parse(os.Args[2:])

			exitOnError(runWatch(*url))
			return
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: babycode [flags]\n       babycode <command> [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  init    Create a configuration file interactively\n  mcp     Serve the file tools over MCP\n  watch   Print the event feed of a running babycode\n")
	}

	configPath := flag.String("config", "", "path to configuration file (default: "+engine.DefaultConfigFile+" if present)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	verbose := flag.Bool("verbose", false, "show tool results, file diffs and debug logs")
	demo := flag.Bool("demo", false, "show the context sent to the model and wait before each call")
	flag.Parse()

	exitOnError(loadDotEnv(*envFile))
	exitOnError(run(*configPath, *verbose, *demo))
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func run(configPath string, verbose, demo bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := engine.ResolveConfig(configPath)
	if err != nil {
		return err
	}
	if demo {
		cfg.DemoMode = true
	}

	logger, closeLog, err := newLogger(cfg.Log.Level, cfg.Log.File, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	cfg.Logger = logger

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if cfg.Feed.Addr != "" {
		go func() {
			if err := feed.ListenAndServe(ctx, cfg.Feed.Addr, eng.Events(), logger); err != nil {
				logger.ErrorContext(ctx, "event feed stopped", "addr", cfg.Feed.Addr, "error", err)
			}
		}()
	}

	sess := eng.NewSession()
	model := newAppModel(ctx, sess, eng.Events(), eng.Usage, verbose)

	p := tea.NewProgram(model, tea.WithContext(ctx))

	// Send the program reference so the model can start the bridge goroutine.
	go func() {
		p.Send(programReadyMsg{program: p})
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runWatch(url string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := feed.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	enc := json.NewEncoder(os.Stdout)
	for {
		msg, err := conn.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := enc.Encode(msg); err != nil {
			return err
		}
	}
}
