package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/outline"
	"github.com/jward/outline/internal/config"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "outline",
	Short:         "Structural analysis of Python source",
	Long:          "Outline tokenizes, parses and extracts the classes, functions, imports and calls of Python source, and keeps the results in a SQLite database for queries and rule checks.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: store.path from outline.toml, relative to the project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: outline.toml in the project root)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(queryCmd)
}

// newLogger returns the stderr text logger used by every command.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveTargetDir returns the absolute project root. An explicit argument
// is used as-is; otherwise the root is searched upwards from the cwd.
func resolveTargetDir(args []string) (string, error) {
	if len(args) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting cwd: %w", err)
		}
		return findProjectRoot(cwd), nil
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", args[0], err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for an outline.toml file
// or a .git directory. Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, config.DefaultFile)); err == nil {
			return dir
		}
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// loadConfig reads --config, or outline.toml from root, or the defaults.
// Relative paths inside the config are resolved against root; --rules is
// resolved against the cwd.
func loadConfig(root string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.LoadDir(root)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Rules.Dir != "" && !filepath.IsAbs(cfg.Rules.Dir) {
		cfg.Rules.Dir = filepath.Join(root, cfg.Rules.Dir)
	}
	if flagRulesDir != "" {
		dir, err := filepath.Abs(flagRulesDir)
		if err != nil {
			return nil, fmt.Errorf("resolving rules dir %q: %w", flagRulesDir, err)
		}
		cfg.Rules.Dir = dir
	}
	return cfg, nil
}

// resolveDBPath returns the database path from the --db flag or the config.
func resolveDBPath(root string, cfg *config.Config) string {
	path := cfg.Store.Path
	if flagDB != "" {
		path = flagDB
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// openEngine builds an Engine for root from the project config. The
// database is attached only when withDB is set.
func openEngine(root string, withDB bool) (*outline.Engine, *config.Config, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}
	opts := []outline.Option{
		outline.WithConfig(cfg),
		outline.WithLogger(newLogger()),
		outline.WithRoot(root),
	}
	if withDB {
		dbPath := resolveDBPath(root, cfg)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
		opts = append(opts, outline.WithDatabase(dbPath))
	}
	e, err := outline.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, cfg, nil
}
