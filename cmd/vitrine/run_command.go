package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vitrine/internal/catalog"
	"vitrine/internal/config"
	"vitrine/internal/runner"
)

func newRunCommand(ctx *cliContext) *cobra.Command {
	var dryRun bool
	var itemKey string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Select the next catalog item and publish it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.runLogger()
			if err != nil {
				return err
			}
			coordinator, cleanup, err := ctx.newCoordinator(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			result := coordinator.RunOnce(cmd.Context(), runner.Options{
				DryRun:  dryRun,
				ItemKey: itemKey,
			})
			printRunResult(cmd.OutOrStdout(), result)
			if code := result.Outcome.ExitCode(); code != 0 {
				return &exitCodeError{code: code, err: result.Err}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compose the post without uploading or publishing")
	cmd.Flags().StringVar(&itemKey, "item", "", "Publish this catalog item instead of the rotation pick")

	return cmd
}

func newInitStoreCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init-store",
		Short: "Create the catalog database and apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Catalog store ready at %s\n", store.Path())
				return nil
			})
		},
	}
}

func printRunResult(w io.Writer, result runner.RunResult) {
	line := describeRunResult(result)
	if shouldColorize(w) {
		if color := outcomeColor(result.Outcome); color != "" {
			line = color + line + ansiReset
		}
	}
	fmt.Fprintln(w, line)

	if result.Outcome == runner.OutcomeDryRun && result.Attempt != nil && result.Attempt.PostText != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, result.Attempt.PostText)
	}
}

func describeRunResult(result runner.RunResult) string {
	switch result.Outcome {
	case runner.OutcomePublished:
		return fmt.Sprintf("Published %s (%s) in %s", result.Item.Name, result.Item.Key, result.Duration.Round(time.Millisecond))
	case runner.OutcomeDryRun:
		return fmt.Sprintf("Dry run: composed post for %s (%s)", result.Item.Name, result.Item.Key)
	case runner.OutcomeSkippedLocked:
		return "Skipped: another run holds the lock"
	case runner.OutcomeNoActiveItems:
		return "Skipped: no active catalog items"
	case runner.OutcomeCredentialError:
		return fmt.Sprintf("Credential error: %v", result.Err)
	default:
		if result.Attempt != nil && result.Attempt.FailureReason != "" {
			return fmt.Sprintf("Run failed (%s): %v", result.Attempt.FailureReason, result.Err)
		}
		return fmt.Sprintf("Run failed: %v", result.Err)
	}
}

func outcomeColor(outcome runner.Outcome) string {
	switch outcome {
	case runner.OutcomePublished:
		return ansiGreen
	case runner.OutcomeDryRun:
		return ansiBlue
	case runner.OutcomeSkippedLocked, runner.OutcomeNoActiveItems:
		return ansiYellow
	case runner.OutcomeFailed, runner.OutcomeCredentialError:
		return ansiRed
	default:
		return ""
	}
}
