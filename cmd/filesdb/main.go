package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"filesdb-go/internal/app"
	"filesdb-go/internal/config"
	"filesdb-go/internal/database"

	"github.com/spf13/cobra"
)

func main() {
	// Ctrl-C cancels the context so a running sweep finishes its in-flight
	// work units and returns instead of dying mid-transaction.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "crawl", "versions");
// parameters is a free-form description of its arguments.
func newApp(operation, parameters string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return cfg, nil
}

func printStats(stats *app.Stats) {
	fmt.Printf("Completed: %d  succeeded: %d  skipped: %d  failed: %d\n",
		stats.Completed, stats.Succeeded, stats.Skipped, stats.Failed)
}

var rootCmd = &cobra.Command{
	Use:   "filesdb",
	Short: "Crawl a Python package index into a file database",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Create config with defaults
		cfg := config.NewConfig(defaults["base_dir"])

		// Initialize config file
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s (%s)\n", cfg.Database.Path, cfg.Database.Type)
		fmt.Printf("Index:       %s\n", cfg.Index.BaseURL)
		fmt.Printf("Concurrency: %d\n", cfg.Crawler.Concurrency)
		if cfg.Vault.Type == "" || cfg.Vault.Type == "none" {
			fmt.Printf("Vault:       disabled\n")
		} else {
			fmt.Printf("Vault:       %s (%s)\n", cfg.Vault.Name, cfg.Vault.Type)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Printf("Database at %s is up to date\n", store.Path())
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check schema migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		if err := store.CheckMigrations(); err != nil {
			return fmt.Errorf("schema check failed: %w", err)
		}

		fmt.Printf("Database at %s has the expected schema\n", store.Path())
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add PROJECT...",
	Short: "Register projects for crawling",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("seed", strings.Join(args, " "))
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SeedProjects(cmd.Context(), args); err != nil {
			return fmt.Errorf("seeding projects: %w", err)
		}

		fmt.Printf("Registered %d project(s)\n", len(args))
		return nil
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Fetch release metadata for projects without it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("versions", "")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.FetchVersions(cmd.Context())
		if stats != nil {
			printStats(stats)
		}
		return err
	},
}

// crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Index file listings for every project version",
	RunE: func(cmd *cobra.Command, args []string) error {
		startFrom, _ := cmd.Flags().GetString("start-from")

		parameters := ""
		if startFrom != "" {
			parameters = "start_from=" + startFrom
		}

		a, err := newApp("crawl", parameters)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.CrawlFiles(cmd.Context(), startFrom)
		if stats != nil {
			printStats(stats)
		}
		return err
	},
}

// guess-imports command
var guessImportsCmd = &cobra.Command{
	Use:   "guess-imports",
	Short: "Derive import names from indexed file listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("guess-imports", "")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.GuessImports(cmd.Context())
		if stats != nil {
			printStats(stats)
		}
		return err
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize crawl progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		sum, err := store.Summary(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Projects:           %d (%d with versions retrieved)\n", sum.Projects, sum.ProjectsWithVersions)
		fmt.Printf("Versions:           %d\n", sum.Versions)
		fmt.Printf("Downloads:          %d (%d attempted, %d indexed)\n", sum.Downloads, sum.DownloadsAttempted, sum.DownloadsIndexed)
		fmt.Printf("Files:              %d\n", sum.Files)
		fmt.Printf("Projects guessed:   %d\n", sum.ProjectsGuessed)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View crawl operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history", "")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No crawl operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().String("start-from", "", "Resume the sweep after this project name")
	rootCmd.AddCommand(guessImportsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
