package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	version = "0.1.0"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "docqa",
		Usage:   "Ask questions about your documents from the terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Override the document service `URL`",
				EnvVars: []string{"DOCQA_BACKEND_URL"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level written to stderr",
				Value: "error",
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			docsCommand(),
			uploadCommand(),
			historyCommand(),
			statsCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
