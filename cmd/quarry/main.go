package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/monitor"
	"github.com/quarrylabs/quarry/internal/script"
	"github.com/quarrylabs/quarry/internal/storage"
	"github.com/quarrylabs/quarry/internal/tui"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Monitor multi-phase data-extraction runs",
		Long:  "Quarry streams live progress from the extraction service and keeps a local history of finished runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI("")
		},
	}

	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newApproveCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and builds the API client shared by every command.
func setup() (*config.Config, *api.Client, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	client, err := api.NewClient(api.Config{BaseURL: cfg.ServerURL, APIKey: cfg.APIKey})
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func runTUI(watchRunID string) error {
	cfg, client, err := setup()
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hooks monitor.Hooks
	if cfg.HooksFile != "" {
		engine, err := script.NewEngine(cfg.HooksFile)
		if err != nil {
			return fmt.Errorf("failed to load hooks: %w", err)
		}
		defer engine.Close()
		if err := script.Watch(ctx, engine, nil); err != nil {
			return fmt.Errorf("failed to watch hooks: %w", err)
		}
		hooks = engine
	}

	ctrl := monitor.New(client, monitor.Options{Hooks: hooks})
	defer ctrl.Close()

	app := tui.NewApp(client, store, ctrl, watchRunID)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Watch a run's live event stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(args[0])
		},
	}
}

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <name> <source>",
		Short: "Submit a new extraction run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}
			watch, _ := cmd.Flags().GetBool("watch")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			run, err := client.SubmitRun(ctx, api.SubmitRunRequest{Name: args[0], Source: args[1]})
			if err != nil {
				return fmt.Errorf("failed to submit run: %w", err)
			}

			fmt.Printf("Submitted run %s\n", run.ID)
			if watch {
				return runTUI(run.ID)
			}
			fmt.Printf("Watch it with: quarry watch %s\n", run.ID)
			return nil
		},
	}

	cmd.Flags().BoolP("watch", "w", false, "Open the monitor after submitting")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's authoritative status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			run, err := client.FetchRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch run: %w", err)
			}

			fmt.Printf("Run %s: %s\n", run.ID, run.Name)
			fmt.Printf("Status: %s\n", run.Status)
			if run.Source != "" {
				fmt.Printf("Source: %s\n", run.Source)
			}
			if run.TableCount > 0 {
				fmt.Printf("Tables: %d\n", run.TableCount)
			}
			if run.Tokens != nil {
				fmt.Printf("Tokens: %d (%d prompt / %d completion)\n",
					run.Tokens.Total, run.Tokens.Prompt, run.Tokens.Completion)
			}
			if run.Error != "" {
				fmt.Printf("Error: %s\n", run.Error)
			}
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := setup()
			if err != nil {
				return err
			}
			local, _ := cmd.Flags().GetBool("local")
			asJSON, _ := cmd.Flags().GetBool("json")

			var runs []*models.Run
			if local {
				if err := cfg.EnsureDataDir(); err != nil {
					return err
				}
				store, err := storage.New(cfg.DBPath)
				if err != nil {
					return err
				}
				defer store.Close()

				runs, err = store.ListRuns(20)
				if err != nil {
					return err
				}
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				runs, err = client.ListRuns(ctx, 20)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-28s [%s]\n", r.ID, r.Name, r.Status)
			}
			return nil
		},
	}

	cmd.Flags().Bool("local", false, "List from the local cache instead of the server")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a run on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			run, err := client.CancelRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel run: %w", err)
			}

			fmt.Printf("Cancelled run %s (status: %s)\n", run.ID, run.Status)
			return nil
		},
	}
}

func newApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Approve a run's proposed plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			run, err := client.ApprovePlan(ctx, args[0], nil)
			if err != nil {
				return fmt.Errorf("failed to approve plan: %w", err)
			}

			fmt.Printf("Approved run %s (status: %s)\n", run.ID, run.Status)
			return nil
		},
	}
}
