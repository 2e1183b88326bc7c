package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <batch-id>",
	Short: "Run extraction for a batch and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Controller.RunBatchExtraction(ctx, id); err != nil {
			return eris.Wrapf(err, "extract batch %d", id)
		}
		return printBatchStatus(cmd, env, id)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <batch-id>",
	Short: "Score the detected boxes of an annotating batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Controller.ValidateBatch(ctx, id); err != nil {
			return eris.Wrapf(err, "validate batch %d", id)
		}
		return printBatchStatus(cmd, env, id)
	},
}

func printBatchStatus(cmd *cobra.Command, env *pipelineEnv, id int64) error {
	ctx := cmd.Context()
	b, err := env.Store.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	shots, err := env.Store.ListScreenshots(ctx, id)
	if err != nil {
		return err
	}
	usage, err := env.Store.PromptLogTotals(ctx, id)
	if err != nil {
		return err
	}
	formatBatchStatus(os.Stdout, b, shots, usage)
	return nil
}

func init() {
	rootCmd.AddCommand(extractCmd, validateCmd)
}
