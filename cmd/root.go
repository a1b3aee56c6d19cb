package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oaps-analytics/deskops/internal/board"
	"github.com/oaps-analytics/deskops/internal/gateway"
	"github.com/oaps-analytics/deskops/internal/helpdesk"
	"github.com/oaps-analytics/deskops/internal/output"
	"github.com/oaps-analytics/deskops/internal/reassign"
	"github.com/oaps-analytics/deskops/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	deskBoard *board.Board
	deskFlow  *reassign.Workflow
	desk      *helpdesk.Client
	dataStore store.Store

	verbose bool
	dryRun  bool

	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "deskops",
	Short: "Helpdesk operations dashboard - aging tickets, reassignment, exports",
	Long: `deskops is a terminal dashboard over the OAPS helpdesk gateway.
It lists aging tickets bucketed by days open, reassigns them between
agents (the group always follows the agent), posts notes, and triggers
CSV exports. Every write is followed by a full re-fetch so the view
never drifts from what the helpdesk actually stored.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ticketsListRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/deskops/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "deskops")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DESKOPS")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "deskops")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "deskops.db"))
	viper.SetDefault("helpdesk.base_url", "http://localhost:8000")
	viper.SetDefault("helpdesk.token", "")
	viper.SetDefault("helpdesk.timeout", "30s")
	viper.SetDefault("helpdesk.max_retries", 1)
	viper.SetDefault("filters.group_ids", "")
	viper.SetDefault("filters.statuses", "open,pending,on-hold")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The board, workflow, and store are built lazily. Config and version
	// commands run without touching the network or a database.
}

// getDesk returns the shared helpdesk client, building the gateway on
// first call from the effective configuration.
func getDesk() *helpdesk.Client {
	if desk != nil {
		return desk
	}

	timeout, err := time.ParseDuration(viper.GetString("helpdesk.timeout"))
	if err != nil {
		timeout = gateway.DefaultTimeout
	}

	gw := gateway.New(gateway.Config{
		BaseURL:    viper.GetString("helpdesk.base_url"),
		Token:      viper.GetString("helpdesk.token"),
		Timeout:    timeout,
		MaxRetries: viper.GetInt("helpdesk.max_retries"),
		UserAgent:  "deskops/" + buildVersion,
	})
	desk = helpdesk.NewClient(gw)
	return desk
}

// getBoard returns the shared board, creating it on first call.
func getBoard() *board.Board {
	if deskBoard != nil {
		return deskBoard
	}
	deskBoard = board.New(getDesk())
	return deskBoard
}

// getWorkflow fetches the agent roster once and wires it to the board.
func getWorkflow(ctx context.Context) (*reassign.Workflow, error) {
	if deskFlow != nil {
		return deskFlow, nil
	}

	agents, err := getDesk().Agents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch agents: %w", err)
	}

	deskFlow = reassign.NewWorkflow(getBoard(), reassign.NewRoster(agents))
	return deskFlow, nil
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// configuredFilter builds the default ticket filter from config plus any
// per-command flag overrides.
func configuredFilter(groupIDs, statuses, ids []string, bucketed bool) helpdesk.Filter {
	if len(groupIDs) == 0 {
		groupIDs = splitCSV(viper.GetString("filters.group_ids"))
	}
	if len(statuses) == 0 {
		statuses = splitCSV(viper.GetString("filters.statuses"))
	}
	return helpdesk.Filter{
		GroupIDs: groupIDs,
		Statuses: statuses,
		IDs:      ids,
		Bucketed: bucketed,
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
