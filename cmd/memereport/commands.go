package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/memereport/internal/backend"
	"github.com/jo-hoe/memereport/internal/core"
	"github.com/jo-hoe/memereport/internal/frontend"
	"github.com/jo-hoe/memereport/internal/metrics"
)

func newExtractCommand(options *rootOptions) *cobra.Command {
	var archivePath string
	var maxTweets int
	command := &cobra.Command{
		Use:   "extract",
		Short: "Rebuild the meme table and image directory from the export archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := options.loadConfig()
			if err != nil {
				return err
			}
			if archivePath != "" {
				config.Archive.Path = archivePath
			}
			if cmd.Flags().Changed("max-tweets") {
				config.MaxTweets = maxTweets
			}

			coreService, err := core.NewCoreService(config, metrics.New())
			if err != nil {
				return err
			}
			defer closeCoreService(coreService)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, err := coreService.RunExtraction(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d memes from %d records (%d reshares, %d without media, %d failed, %d rejected)\n",
				stats.Saved, stats.Total, stats.Reshares, stats.NoMedia, stats.Failed, stats.Rejected)
			return nil
		},
	}
	command.Flags().StringVar(&archivePath, "archive", "", "path to the export zip (overrides archive.path)")
	command.Flags().IntVar(&maxTweets, "max-tweets", 0, "process at most this many records, 0 for all")
	return command
}

func newReportCommand(options *rootOptions) *cobra.Command {
	var output string
	command := &cobra.Command{
		Use:   "report",
		Short: "Render the top and bottom memes into a PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := options.loadConfig()
			if err != nil {
				return err
			}
			if output != "" {
				config.Report.Output = output
			}

			coreService, err := core.NewCoreService(config, metrics.New())
			if err != nil {
				return err
			}
			defer closeCoreService(coreService)

			summary, err := coreService.WriteReport(cmd.Context(), config.Report.Output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PDF report %q generated successfully (%d pages)\n", config.Report.Output, summary.Pages)
			return nil
		},
	}
	command.Flags().StringVarP(&output, "output", "o", "", "PDF file to write (overrides report.output)")
	return command
}

func newServeCommand(options *rootOptions) *cobra.Command {
	var port int
	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only gallery, JSON API and on-demand report",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := options.loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				config.Port = port
			}
			return serve(config)
		},
	}
	command.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides port)")
	return command
}

func serve(config *core.ServiceConfig) error {
	coreService, err := core.NewCoreService(config, nil)
	if err != nil {
		return err
	}
	defer closeCoreService(coreService)

	server := backend.NewServer()
	backend.NewAPIService(coreService).SetRoutes(server)
	frontend.NewFrontendService(config, coreService).SetRoutes(server)

	portString := fmt.Sprintf(":%d", config.Port)
	serverErr := make(chan error, 1)

	// Start HTTP server in a goroutine to allow graceful shutdown
	go func() {
		slog.Info("starting server", "port", config.Port)
		if err := server.Start(portString); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-quit:
		slog.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

func closeCoreService(coreService *core.CoreService) {
	if err := coreService.Close(); err != nil {
		slog.Error("core service close error", "error", err)
	}
}
