package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	graphloom "github.com/graphloom/graphloom"
	"github.com/graphloom/graphloom/apiServer"
	"github.com/graphloom/graphloom/internal/backup"
	"github.com/graphloom/graphloom/internal/config"
	"github.com/graphloom/graphloom/pkg/blobstore"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "graphloomd",
		Short:         "Control-plane state store for compute graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "graphloom.yaml", "path to the config file")

	rootCmd.AddCommand(serveCmd(), backupCmd(), restoreCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openState(ctx context.Context, conf config.Config) (*graphloom.State, error) {
	st, err := graphloom.New(graphloom.Config{
		Paths:         []string{conf.DataDir},
		MinimumFreeGB: conf.MinimumFreeGB,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Start(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control-plane server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openState(ctx, conf)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			blobs, err := blobstore.NewLocal(conf.BlobDir)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:    conf.Listen,
				Handler: apiServer.New(st, blobs),
			}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func backupCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write an xz-compressed snapshot of the state store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := openState(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			store, err := st.Store()
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			version, err := backup.Backup(cmd.Context(), store, f)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s (version %d)\n", out, version)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "graphloom.backup.xz", "backup file to write")
	return cmd
}

func restoreCmd() *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a snapshot produced by backup into the state store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := openState(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			store, err := st.Store()
			if err != nil {
				return err
			}

			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := backup.Restore(cmd.Context(), store, f); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restored state from %s\n", in)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "graphloom.backup.xz", "backup file to read")
	return cmd
}
