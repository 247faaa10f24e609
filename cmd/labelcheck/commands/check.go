package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/label-checker/constants"
	"github.com/joseph-ayodele/label-checker/internal/app"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/ingest"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
	"github.com/joseph-ayodele/label-checker/internal/references"
)

var (
	checkReference string
	checkOut       string
)

var checkCmd = &cobra.Command{
	Use:   "check <image|dir>...",
	Short: "Check label images and print one JSON line per event",
	Long: `check submits every image named on the command line as one job. Directories
are walked recursively for .jpg, .jpeg, .png and .webp files.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkReference, "reference", "r", "", "reference sheet (.csv or .xlsx) keyed by label_id")
	checkCmd.Flags().StringVarP(&checkOut, "out", "o", "", "write an XLSX report to this path")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger := common.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	var refs []entity.ReferenceRecord
	if checkReference != "" {
		if refs, err = references.Load(checkReference); err != nil {
			return fmt.Errorf("load reference sheet: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	paths, stats, err := ingest.Discover(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no label images found (scanned %d files)", stats.Scanned)
	}
	logger.Info("discovered images", "matched", stats.Matched, "skipped", stats.Skipped)

	jobID, dups, err := a.Manager.CreateJob(ctx, len(paths), refs)
	if err != nil {
		return err
	}
	for _, d := range dups {
		logger.Warn("duplicate label_id in reference sheet, last row wins", "label_id", d)
	}

	uploads, closeAll, err := openImages(paths)
	if err != nil {
		return err
	}
	_, err = a.Manager.SubmitItems(ctx, jobID, uploads, nil)
	closeAll()
	if err != nil {
		return err
	}

	if err := a.Manager.Stream(ctx, jobID, cfg.Timers.Heartbeat, jsonLines(cmd.OutOrStdout())); err != nil {
		return err
	}

	if checkOut == "" {
		return nil
	}
	job, err := a.Manager.Get(jobID)
	if err != nil {
		return err
	}
	report, err := a.Reports.JobReportXLSX(ctx, jobID, job.Outcomes(), job.Unmatched())
	if err != nil {
		return err
	}
	if err := os.WriteFile(checkOut, report, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written", "path", checkOut)
	return nil
}

// openImages opens every path with a content type taken from its extension.
func openImages(paths []string) ([]jobs.Upload, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	uploads := make([]jobs.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		uploads = append(uploads, jobs.Upload{
			Filename:    filepath.Base(p),
			ContentType: constants.ContentTypeForExt(filepath.Ext(p)),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

type line struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// jsonLines writes each event as {"event": name, "data": payload}. Heartbeats
// are dropped.
func jsonLines(w io.Writer) jobs.EmitFunc {
	enc := json.NewEncoder(w)
	return func(ev jobs.Event) error {
		switch ev := ev.(type) {
		case jobs.MetaEvent:
			return enc.Encode(line{Event: "meta", Data: ev})
		case jobs.ResultEvent:
			return enc.Encode(line{Event: "result", Data: ev.ItemResult})
		case jobs.ErrorEvent:
			return enc.Encode(line{Event: "error", Data: ev.ItemError})
		case jobs.DoneEvent:
			return enc.Encode(line{Event: "done", Data: ev})
		case jobs.HeartbeatEvent:
			return nil
		default:
			return fmt.Errorf("unknown stream event %T", ev)
		}
	}
}
