package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"aideck/internal/api"
	"aideck/internal/cli"
	"aideck/internal/config"
	"aideck/internal/deck"
	"aideck/internal/event"
	"aideck/internal/logging"
	"aideck/internal/metrics"
	"aideck/internal/prompt"
	"aideck/internal/render"
	"aideck/internal/session"
	"aideck/internal/tmux"
	"aideck/internal/tool"
	"aideck/internal/version"
	"aideck/internal/watcher"
)

const (
	httpShutdownTimeout = 5 * time.Second
	deckShutdownTimeout = 5 * time.Second
	eventHistorySize    = 100
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("aideck", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Config file (default: "+configHint()+")")
	listen := fs.String("listen", "", "Listen address override (env: AIDECK_LISTEN)")
	common := cli.BindCommon(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if common.Help {
		fs.Usage()
		return 0
	}
	if common.Version {
		printVersion(out)
		return 0
	}

	path := strings.TrimSpace(*configPath)
	if path == "" {
		if fallback, err := config.DefaultPath(); err == nil {
			path = fallback
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(errOut, "aideck: %v\n", err)
		return 1
	}
	if override := strings.TrimSpace(*listen); override != "" {
		cfg.Listen = override
	}

	logger := logging.New(cfg.Level())
	stats := &metrics.Registry{}
	bus := event.NewBus[event.DeckEvent](context.Background(), event.Options{
		Name:    "deck",
		History: eventHistorySize,
		Logger:  logger,
	})
	defer bus.Close()

	tools := tool.NewRegistry(tool.RegistryOptions{
		Dir:    cfg.ToolsDir,
		Logger: logger,
	})
	prompts := prompt.NewLibrary(nil, cfg.PromptsDir, cfg.WorkDir)

	var tmuxClient *tmux.Client
	if cfg.Backend == session.KindTmux {
		tmuxClient = tmux.NewClient()
	}

	factory := session.NewFactory(session.FactoryOptions{
		Tmux:         tmuxClient,
		TmuxSession:  cfg.TmuxSession,
		Logger:       logger,
		Metrics:      stats,
		HistoryLines: cfg.HistoryLines,
		WorkDir:      cfg.WorkDir,
	})

	d := deck.New(deck.Options{
		Tools:          tools,
		Factory:        factory,
		Renderer:       render.New(prompts),
		Bus:            bus,
		Logger:         logger,
		Metrics:        stats,
		Tmux:           tmuxClient,
		TmuxSession:    cfg.TmuxSession,
		DefaultTool:    cfg.DefaultTool,
		DefaultBackend: cfg.Backend,
		CreateGrace:    cfg.CreateGrace.Std(),
		ReadyTimeout:   cfg.ReadyTimeout.Std(),
	})

	if adopted, err := d.Discover(); err != nil {
		logger.Warn("window discovery failed", map[string]string{
			"error": err.Error(),
		})
	} else if adopted > 0 {
		logger.Info("adopted surviving windows", map[string]string{
			"count": strconv.Itoa(adopted),
		})
	}

	stopSweeper := d.StartSweeper(cfg.SweepInterval.Std())
	defer stopSweeper()

	if files, err := watcher.New(); err != nil {
		logger.Warn("file watcher unavailable", map[string]string{
			"error": err.Error(),
		})
	} else {
		defer files.Close()
		if _, err := watcher.WatchTools(files, cfg.ToolsDir, tools, bus, logger); err != nil {
			logger.Warn("tool watch unavailable", map[string]string{
				"dir":   cfg.ToolsDir,
				"error": err.Error(),
			})
		}
	}

	server := api.NewServer(api.Options{
		Deck:           d,
		Logger:         logger,
		Metrics:        stats,
		Token:          cfg.Token,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("aideck listening", map[string]string{
		"addr":    cfg.Listen,
		"backend": cfg.Backend,
		"version": version.Version,
	})

	exit := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
			exit = 1
		}
	case <-stop.Done():
		logger.Info("shutting down", nil)
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancelHTTP()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.Warn("http shutdown failed", map[string]string{
			"error": err.Error(),
		})
	}

	deckCtx, cancelDeck := context.WithTimeout(context.Background(), deckShutdownTimeout)
	defer cancelDeck()
	if err := d.Shutdown(deckCtx); err != nil {
		logger.Warn("session shutdown incomplete", map[string]string{
			"error": err.Error(),
		})
	}
	return exit
}

func configHint() string {
	if path, err := config.DefaultPath(); err == nil {
		return path
	}
	return "config.yaml"
}

func printVersion(out io.Writer) {
	info := version.Get()
	if info.Version == "" || info.Version == "dev" {
		fmt.Fprintln(out, "aideck dev")
		return
	}
	fmt.Fprintf(out, "aideck version %s\n", info.Version)
}
