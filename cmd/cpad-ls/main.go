package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourcegraph/jsonrpc2"

	iLsp "cpad/internal/lsp"
	"cpad/internal/lsp/server"
)

type stdRWC struct{}

func (stdRWC) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdRWC) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdRWC) Close() error                { return nil }

// getLogFile returns a log file for the lsp server to write to.
//
// During development (-debug flag) uses a persistent log for easy access.
func getLogFile(debug bool) (*os.File, error) {
	if debug {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		logDir := filepath.Join(homeDir, ".cpad")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		return os.OpenFile(filepath.Join(logDir, "cpad-ls.log"),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}

	return os.CreateTemp("", "cpad-ls-*.log")
}

func main() {
	var debug bool
	var fetchConfig string
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&fetchConfig, "fetch-config", "", "TOML configuration for remote includes")
	flag.Parse()

	logFile, err := getLogFile(debug)
	if err != nil {
		slog.Error("failed to setup logging", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(io.MultiWriter(os.Stderr, logFile), &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	} else {
		handler = slog.NewTextHandler(logFile, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	slog.SetDefault(slog.New(handler))

	slog.Info("starting cpad-ls", "logfile", logFile.Name())

	s, err := server.NewServer(server.Options{
		DocService: iLsp.DocumentServiceOptions{
			FetchConfigPath: fetchConfig,
		},
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	ctx := context.Background()

	<-jsonrpc2.NewConn(
		ctx,
		jsonrpc2.NewBufferedStream(stdRWC{}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(s.Handle),
	).DisconnectNotify()
}
