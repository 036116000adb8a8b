package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"cpad/internal/cli"
)

func main() {
	var (
		inPath     string
		expand     bool
		noBackup   bool
		configPath string
		debug      bool
	)
	flag.StringVar(&inPath, "in", "", "Input .cpd file, markdown file or directory")
	flag.BoolVar(&expand, "expand", false, "Write the fully expanded document next to the source")
	flag.BoolVar(&noBackup, "no-backup", false, "Do not back up an existing expanded output before overwriting")
	flag.StringVar(&configPath, "config", "", "TOML configuration for remote includes")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if inPath == "" {
		fmt.Println("Please provide an input file or directory with -in")
		os.Exit(1)
	}

	processor, err := cli.NewProcessor(cli.Options{
		Expand:          expand,
		NoBackup:        noBackup,
		FetchConfigPath: configPath,
	})
	if err != nil {
		fmt.Printf("Error setting up processor: %v\n", err)
		os.Exit(1)
	}

	results, err := processor.ProcessPath(context.Background(), inPath)
	if err != nil {
		fmt.Printf("Error processing %s: %v\n", inPath, err)
		os.Exit(1)
	}

	if errors := cli.Report(os.Stdout, results, inPath); errors > 0 {
		os.Exit(1)
	}
}
