// Command docuflow validates and runs workflow definitions from the command
// line, and serves the cron scheduler for schedule-triggered workflows.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/songzhibin97/gkit/generator"

	"github.com/docuflow/workflow-engine/rules"
	"github.com/docuflow/workflow-engine/trigger"
	"github.com/docuflow/workflow-engine/types"
	"github.com/docuflow/workflow-engine/workflow"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docuflow",
		Short: "Workflow definition and execution engine",
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(
		validateCmd(),
		runCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflowFile(args[0])
			if err != nil {
				return err
			}
			if wf.TriggerType == "" {
				wf.TriggerType = types.TriggerManual
			}
			if wf.Status == "" {
				wf.Status = types.WorkflowDraft
			}

			validator, err := workflow.NewValidator()
			if err != nil {
				return err
			}
			if err := validator.ValidateWorkflow(wf); err != nil {
				return err
			}
			fmt.Printf("%s: valid (%d steps)\n", args[0], len(wf.Steps))
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow definition once and print the step results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cmd.Flag("config").Value.String()
			inputJSON, _ := cmd.Flags().GetString("input")
			source, _ := cmd.Flags().GetString("source")

			engine, err := buildEngine(configPath)
			if err != nil {
				return err
			}
			defer engine.Stop(context.Background())

			wf, err := loadWorkflowFile(args[0])
			if err != nil {
				return err
			}
			wf.Status = types.WorkflowActive

			var input map[string]interface{}
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
					return fmt.Errorf("parse --input: %w", err)
				}
			}

			ctx := cmd.Context()
			created, err := engine.CreateWorkflow(ctx, wf)
			if err != nil {
				return err
			}

			result, err := engine.Execute(ctx, workflow.ExecuteRequest{
				WorkflowID:    created.ID,
				TriggerSource: source,
				InputData:     input,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().String("input", "", "Initial data context as a JSON object")
	cmd.Flags().String("source", "manual", "Trigger source recorded on the execution")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cron scheduler for schedule-triggered workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath := cmd.Flag("config").Value.String()
			syncEvery, _ := cmd.Flags().GetDuration("sync-interval")

			engine, err := buildEngine(configPath)
			if err != nil {
				return err
			}
			defer engine.Stop(context.Background())

			scheduler, err := trigger.NewScheduler(engine)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := scheduler.Start(ctx); err != nil {
				return err
			}
			defer scheduler.Stop()

			slog.Info("scheduler started", slog.Duration("sync_interval", syncEvery))

			ticker := time.NewTicker(syncEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					slog.Info("scheduler stopping")
					return nil
				case <-ticker.C:
					if err := scheduler.Sync(ctx); err != nil {
						slog.Error("schedule sync failed", slog.Any("error", err))
					}
				}
			}
		},
	}
	cmd.Flags().Duration("sync-interval", time.Minute, "How often to reconcile schedules with the store")
	return cmd
}

func buildEngine(configPath string) (*workflow.Engine, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	registry := workflow.NewRegistry(buildCollaborators(cfg.Clients), rules.NewExprEvaluator())
	snowflake := generator.NewSnowflake(time.Now().Add(-1*time.Second), 1)
	return workflow.NewEngine(snowflake, store, registry)
}
