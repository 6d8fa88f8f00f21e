package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/history"
	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/submission"
	"github.com/informes/backend/internal/watch"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file-or-folder>",
	Short: "Submit a document or a folder once",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringP("out", "o", ".", "directory the processed document is written to")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out")

	store, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return err
	}
	hist, err := history.Open(cfg.Storage.HistoryFile)
	if err != nil {
		return err
	}
	defer hist.Close()

	deps := controllerDeps{
		cfg:        cfg,
		store:      store,
		client:     newHTTPClient(cfg),
		downloader: &submission.DirDownloader{Dir: outDir},
		recorder:   hist,
		clock:      clock.Real(),
	}

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if !info.IsDir() {
		c := deps.newController("cli", models.VariantSingleFile)
		defer c.Close()
		st, err := watch.ProcessFile(ctx, c, target)
		if err != nil {
			return err
		}
		report(cmd, st.Message.Text, st.Download)
		return nil
	}

	// Directories always go through the folder variant
	candidates, err := intake.ReadDir(target)
	if err != nil {
		return err
	}
	c := deps.newController("cli", models.VariantFolder)
	defer c.Close()
	if _, err := c.Stage(ctx, candidates); err != nil {
		return err
	}
	slog.Info("folder staged", "files", len(candidates))
	st, err := c.Submit(ctx)
	if err != nil {
		return err
	}
	if st.Phase != models.PhaseSucceeded {
		return errors.New(st.Message.Text)
	}
	report(cmd, st.Message.Text, st.Download)
	return nil
}

func report(cmd *cobra.Command, msg string, d *models.Download) {
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	if d != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes) -> %s\n", d.Filename, d.Size, d.URL)
	}
}
