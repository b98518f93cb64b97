package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/internal/storage/sqlite"
	"github.com/docqa/console/internal/terminal"
	"github.com/docqa/console/pkg/config"
	"github.com/docqa/console/pkg/logger"
)

// env holds what every command needs.
type env struct {
	cfg     *config.Config
	client  *backend.Client
	out     *terminal.Renderer
	archive *sqlite.Client
}

func setup(c *cli.Context, withArchive bool) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if override := c.String("backend"); override != "" {
		cfg.Backend.BaseURL = override
	}

	err = logger.Init(logger.Options{
		Level:      c.String("log-level"),
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return nil, err
	}

	client, err := backend.NewClient(backend.OptionsFromConfig(cfg.Backend))
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, client: client, out: terminal.New(os.Stdout)}

	if withArchive && cfg.SQLite.Enabled {
		archive, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := archive.InitSchema(); err != nil {
			archive.Close()
			return nil, err
		}
		e.archive = archive
	}

	return e, nil
}

func (e *env) close() {
	if e.archive != nil {
		e.archive.Close()
	}
	logger.Sync()
}

func (e *env) newController(id string, extra ...session.Option) *session.Controller {
	opts := session.OptionsFromConfig(e.cfg.Session)
	if e.archive != nil {
		opts = append(opts, session.WithRecorder(e.archive))
	}
	return session.NewController(id, e.client, append(opts, extra...)...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "resume",
				Usage: "Resume archived session `ID`",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Override the query mode",
			},
		},
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	e, err := setup(c, true)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	checkHealth(ctx, e)

	id := uuid.NewString()
	var extra []session.Option
	if mode := c.String("mode"); mode != "" {
		extra = append(extra, session.WithQueryMode(mode))
	}

	if resume := c.String("resume"); resume != "" {
		if e.archive == nil {
			return fmt.Errorf("cannot resume: history archive is disabled")
		}
		msgs, err := e.archive.SessionMessages(ctx, resume)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("no archived session %s", resume)
		}
		id = resume
		extra = append(extra, session.WithRestoredState(session.State{Messages: msgs}))
		for _, m := range msgs {
			e.out.Message(m)
		}
	}

	ctrl := e.newController(id, extra...)
	defer ctrl.Close()

	e.out.Info("Session %s", id)
	e.out.Separator()

	repl := terminal.NewREPL(ctrl, e.out, os.Stdin).WithExtensions(e.cfg.Upload.AllowedExtensions)
	if e.archive != nil {
		repl = repl.WithArchive(e.archive)
	}
	return repl.Run(ctx)
}

// checkHealth warns about an unreachable service without stopping the CLI.
func checkHealth(ctx context.Context, e *env) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := e.client.Health(ctx)
	if err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		e.out.Warn("Document service at %s is not reachable: %v", e.cfg.Backend.BaseURL, err)
		return
	}
	if health.Status != "healthy" {
		e.out.Warn("Document service reports status %q", health.Status)
	}
}

func docsCommand() *cli.Command {
	return &cli.Command{
		Name:  "docs",
		Usage: "List uploaded documents",
		Action: func(c *cli.Context) error {
			e, err := setup(c, false)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := signalContext()
			defer cancel()

			docs, err := e.client.ListDocuments(ctx)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			e.out.Documents(docs, nil)
			return nil
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload one or more documents",
		ArgsUsage: "FILE...",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing required argument: FILE")
			}

			e, err := setup(c, false)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := signalContext()
			defer cancel()

			ctrl := e.newController("upload-" + uuid.NewString())
			defer ctrl.Close()

			files := make([]session.UploadFile, 0, c.NArg())
			for _, path := range c.Args().Slice() {
				files = append(files, terminal.FileUpload(path))
			}

			failed := 0
			for _, res := range ctrl.UploadAll(ctx, files) {
				e.out.Upload(res)
				if res.Status != models.UploadSuccess {
					failed++
				}
			}

			e.out.Documents(ctrl.Snapshot().Documents, nil)

			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(files))
			}
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Search archived conversations",
		ArgsUsage: "TERM",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 50,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing required argument: TERM")
			}

			e, err := setup(c, true)
			if err != nil {
				return err
			}
			defer e.close()

			if e.archive == nil {
				return fmt.Errorf("history archive is disabled")
			}

			records, err := e.archive.SearchHistory(c.Context, strings.Join(c.Args().Slice(), " "), c.Int("limit"))
			if err != nil {
				return err
			}
			e.out.History(records)
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show document service statistics",
		Action: func(c *cli.Context) error {
			e, err := setup(c, false)
			if err != nil {
				return err
			}
			defer e.close()

			stats, err := e.client.Stats(c.Context)
			if err != nil {
				return fmt.Errorf("failed to fetch stats: %w", err)
			}
			e.out.Stats(stats)
			return nil
		},
	}
}
