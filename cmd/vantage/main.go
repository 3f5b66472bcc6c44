package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"vantage/internal/app"
	"vantage/internal/client"
	"vantage/internal/config"
	"vantage/internal/logging"
	"vantage/internal/store"
)

const usageText = `vantage - terminal client for remote coding-agent sessions

Usage:
  vantage [ui]            open the interactive session browser (default)
  vantage sessions        list sessions
  vantage new [flags]     create a session
  vantage config          print the effective configuration
  vantage version         print the version
  vantage help            print this help

Global flags:
  --server URL            override the configured server address
  --api-key KEY           override the configured API key

Flags for new:
  --title TEXT            session title (required)
  --prompt TEXT           initial prompt
`

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("vantage", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	serverFlag := fs.String("server", "", "server address override")
	apiKeyFlag := fs.String("api-key", "", "API key override")
	titleFlag := fs.String("title", "", "session title (new)")
	promptFlag := fs.String("prompt", "", "initial prompt (new)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *serverFlag != "" {
		cfg.Server.Address = *serverFlag
	}
	if *apiKeyFlag != "" {
		cfg.Server.APIKey = *apiKeyFlag
	}

	command := "ui"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	switch command {
	case "ui":
		return runUI(cfg)
	case "sessions":
		return runSessions(cfg)
	case "new":
		return runNew(cfg, *titleFlag, *promptFlag)
	case "config":
		return runConfig(cfg)
	case "version":
		fmt.Println("vantage", version)
		return nil
	case "help":
		fmt.Print(usageText)
		return nil
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runUI(cfg config.Config) error {
	logPath, err := config.LogPath()
	if err != nil {
		return err
	}
	// The TUI owns the terminal; logs go to a file instead of stderr.
	log, closer, err := logging.NewFile(logPath, logging.ParseLevel(cfg.LogLevel()))
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = closer.Close() }()

	historyPath, err := config.HistoryFilePath()
	if err != nil {
		return err
	}
	dbPath, err := config.HistoryDBPath()
	if err != nil {
		return err
	}
	repo, err := store.OpenRepository(store.RepositoryPaths{
		HistoryFilePath: historyPath,
		DBPath:          dbPath,
	}, cfg.StorageBackend())
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = repo.Close() }()

	api := client.New(cfg.ServerBaseURL(), cfg.APIKey())
	log.Info("starting ui",
		logging.F("server", cfg.ServerBaseURL()),
		logging.F("backend", repo.Backend()),
		logging.F("page_size", cfg.PageSize()),
	)
	return app.Run(api, repo.History(), cfg, log)
}

func runSessions(cfg config.Config) error {
	api := client.New(cfg.ServerBaseURL(), cfg.APIKey())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sessions, err := api.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tAGE\tTITLE")
	for _, s := range sessions {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.State, formatAge(time.Since(s.CreatedAt)), title)
	}
	return w.Flush()
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func runNew(cfg config.Config, title, prompt string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("--title is required for new")
	}
	api := client.New(cfg.ServerBaseURL(), cfg.APIKey())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := api.CreateSession(ctx, client.CreateSessionRequest{
		Title:  strings.TrimSpace(title),
		Prompt: strings.TrimSpace(prompt),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created session %s (%s)\n", session.ID, session.State)
	return nil
}

func runConfig(cfg config.Config) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", path, out)
	return nil
}
