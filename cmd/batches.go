package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ux-extract/internal/batch"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/store"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Create and inspect batches",
	Long:  "Commands for registering screenshot batches, listing them, and completing review.",
}

// -- batches list --

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.BatchFilter{Status: model.BatchStatus(status), Limit: limit}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("unknown status %q", status)
		}

		batches, err := st.ListBatches(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "batches list")
		}
		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}

		formatBatchesList(os.Stdout, batches)
		return nil
	},
}

// -- batches status --

var batchesStatusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show a batch with its screenshots and model usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := st.GetBatch(ctx, id)
		if err != nil {
			return eris.Wrap(err, "batches status")
		}
		shots, err := st.ListScreenshots(ctx, id)
		if err != nil {
			return eris.Wrap(err, "batches status")
		}
		usage, err := st.PromptLogTotals(ctx, id)
		if err != nil {
			return eris.Wrap(err, "batches status")
		}

		formatBatchStatus(os.Stdout, b, shots, usage)
		return nil
	},
}

// -- batches create --

var batchesCreateCmd = &cobra.Command{
	Use:   "create <screenshot-path>...",
	Short: "Register a batch of screenshots by storage path",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")
		analysisType, _ := cmd.Flags().GetString("analysis-type")
		if name == "" {
			return eris.New("--name is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, shots, err := registerBatch(ctx, st, name, analysisType, args)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batchDetail{Batch: b, Screenshots: shots})
	},
}

// -- batches complete --

var batchesCompleteCmd = &cobra.Command{
	Use:   "complete <batch-id>",
	Short: "Mark human review of a batch done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ctrl := batch.New(ctx, st, nil, nil, batch.Scoring{})
		if err := ctrl.CompleteReview(ctx, id); err != nil {
			return eris.Wrap(err, "batches complete")
		}
		fmt.Fprintf(os.Stdout, "batch %d: %s\n", id, model.BatchStatusDone)
		return nil
	},
}

func init() {
	batchesListCmd.Flags().String("status", "", "filter by status")
	batchesListCmd.Flags().Int("limit", 50, "max batches to show")

	batchesCreateCmd.Flags().String("name", "", "batch name")
	batchesCreateCmd.Flags().String("analysis-type", "", "analysis type label")

	batchesCmd.AddCommand(batchesListCmd, batchesStatusCmd, batchesCreateCmd, batchesCompleteCmd)
	rootCmd.AddCommand(batchesCmd)
}

// registerBatch creates a batch in uploading with one screenshot per path.
func registerBatch(ctx context.Context, st store.Store, name, analysisType string, paths []string) (*model.Batch, []model.Screenshot, error) {
	b, err := st.CreateBatch(ctx, name, analysisType)
	if err != nil {
		return nil, nil, eris.Wrap(err, "create batch")
	}
	shots := make([]model.Screenshot, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			return nil, nil, eris.New("screenshot path must not be empty")
		}
		sc, err := st.CreateScreenshot(ctx, b.ID, p)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "register screenshot %s", p)
		}
		shots = append(shots, *sc)
	}
	return b, shots, nil
}

func parseBatchID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid batch id %q", s)
	}
	return id, nil
}

func formatBatchesList(out io.Writer, batches []model.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSHOTS_OK\tSHOTS_FAILED\tELEMENTS\tCOST\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t--------\t------------\t--------\t----\t-------")

	for _, b := range batches {
		name := b.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t$%.4f\t%s\n",
			b.ID,
			name,
			b.Status,
			b.Metrics.ScreenshotsSucceeded,
			b.Metrics.ScreenshotsFailed,
			b.Metrics.DetectedElements,
			b.Metrics.Cost,
			b.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatBatchStatus(out io.Writer, b *model.Batch, shots []model.Screenshot, usage *model.PromptLogTotals) {
	_, _ = fmt.Fprintf(out, "Batch %d: %s\n", b.ID, b.Name)
	_, _ = fmt.Fprintf(out, "  Status:          %s\n", b.Status)
	_, _ = fmt.Fprintf(out, "  Elements:        %d\n", b.Metrics.DetectedElements)
	_, _ = fmt.Fprintf(out, "  Prompt runtime:  %dms\n", b.Metrics.MasterPromptRuntimeMs)
	_, _ = fmt.Fprintf(out, "  Inference:       %dms\n", b.Metrics.TotalInferenceMs)
	if usage != nil {
		_, _ = fmt.Fprintf(out, "  Model calls:     %d (%d failed)\n", usage.Calls, usage.Failed)
		_, _ = fmt.Fprintf(out, "  Tokens:          %d in / %d out\n", usage.InputTokens, usage.OutputTokens)
		_, _ = fmt.Fprintf(out, "  Cost:            $%.4f\n", usage.Cost)
	}
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPATH\tSTATUS\tSIZE\tDURATION\tERROR")
	for _, sc := range shots {
		size := "-"
		if sc.HasDimensions() {
			size = fmt.Sprintf("%dx%d", sc.Width, sc.Height)
		}
		errMsg := sc.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dms\t%s\n", sc.ID, sc.FilePath, sc.Status, size, sc.ProcessingMs, errMsg)
	}
	_ = w.Flush()

	header := false
	for _, sc := range shots {
		for _, issue := range sc.LabelIssues {
			if !header {
				_, _ = fmt.Fprintln(out, "\nLabel issues:")
				header = true
			}
			_, _ = fmt.Fprintf(out, "  %s  %s: %s\n", sc.FilePath, issue.Label, issue.Reason)
		}
	}
}
