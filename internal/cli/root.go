// Package cli implements the loitool command tree.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/config"
	"github.com/jengzang/loi-backend-go/internal/database"
	"github.com/jengzang/loi-backend-go/internal/logger"
	"github.com/jengzang/loi-backend-go/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds global CLI flags
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	DBPath       string
}

// CLIContext carries initialized dependencies through the command tree
type CLIContext struct {
	Config       *config.Config
	Logger       *zap.Logger
	OutputFormat string
}

type cliContextKey struct{}

// NewRootCommand creates the root command with all global flags and subcommands
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "loitool",
		Short:   "Locations of interest analysis",
		Long:    "loitool clusters geolocated login events into locations of interest,\nranks them by incident and identity counts and joins police areas,\naddresses and accounts onto the ranked locations.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.StringVar(&opts.DBPath, "db", "", "run store path (overrides database.path)")

	cmd.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(opts.LogLevel)
	}
	if opts.DBPath != "" {
		cfg.Database.Path = opts.DBPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch opts.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q", opts.OutputFormat)
	}

	// console output goes to stderr; stdout is reserved for results
	if err := logger.Init(cfg.Logging.Level, "text"); err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger.Get(),
		OutputFormat: opts.OutputFormat,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// GetCLIContext extracts the CLIContext stored by the root command
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New("CLI context not initialized")
	}
	return cliCtx, nil
}

// openService opens the run store and builds a RunService on it. The
// returned close function releases the database.
func (c *CLIContext) openService() (*service.RunService, func(), error) {
	db, err := database.Open(c.Config.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewRunService(c.Config, db, c.Logger)
	return svc, func() { closeDB(db, c.Logger) }, nil
}

func closeDB(db *sql.DB, log *zap.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %s\n", err.Error())
		return err
	}
	return nil
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
