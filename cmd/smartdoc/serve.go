package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/server"
	"github.com/hyperjump/smartdoc/internal/watcher"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the chat API for a single session. With --watch, documents dropped
into the upload directory are indexed and attached as they arrive.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "index files dropped into the upload directory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, logger, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	sess, err := a.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	srv := server.NewServer(a, sess, logger)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if serveWatch {
		w := watcher.NewWatcher(a.Config.Storage.UploadDir, func(ctx context.Context, path string) {
			doc, err := srv.AttachDropped(ctx, path)
			if err != nil {
				logger.Warn("watch attach failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watch attached document", zap.String("key", doc.Key), zap.Strings("files", doc.Files))
		}, watcher.WithLogger(logger))
		if err := w.Start(watchCtx); err != nil {
			return err
		}
		defer w.Stop()
		existing, err := w.Existing()
		if err != nil {
			logger.Warn("failed to list upload directory", zap.Error(err))
		}
		logger.Info("watching upload directory", zap.String("dir", w.Dir()), zap.Int("existing", len(existing)))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
