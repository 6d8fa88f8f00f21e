package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/history"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/submission"
	"github.com/informes/backend/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Submit every .docx that lands in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringP("out", "o", "", "directory results are written to (default: the configured results directory)")
	watchCmd.Flags().String("done", "", "directory processed documents are moved to (default: <dir>/procesados)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dir := args[0]

	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir = cfg.Storage.ResultsDirectory
	}
	doneDir, _ := cmd.Flags().GetString("done")
	if doneDir == "" {
		doneDir = filepath.Join(dir, "procesados")
	}

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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watch.New(watch.Config{
		Dir:      dir,
		DoneDir:  doneDir,
		Debounce: cfg.WatchDebounce(),
		Handle: func(ctx context.Context, path string) error {
			c := deps.newController("watch-"+uuid.NewString()[:8], models.VariantSingleFile)
			defer c.Close()
			_, err := watch.ProcessFile(ctx, c, path)
			return err
		},
	})
	return w.Run(ctx)
}
