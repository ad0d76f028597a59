package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze source files and print their structure",
	Long:  "Runs the tokenizer, indentation resolver, parser and extractor over each file and prints the definitions, imports, calls and diagnostics found. Nothing is written to the database.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(nil)
	if err != nil {
		return outputError("analyze", err)
	}
	engine, _, err := openEngine(root, false)
	if err != nil {
		return outputError("analyze", err)
	}
	defer engine.Close()

	paths := make([]string, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return outputError("analyze", fmt.Errorf("resolving path %q: %w", a, err))
		}
		paths[i] = abs
	}

	results, err := engine.AnalyzeFiles(cmd.Context(), paths)
	if err != nil {
		return outputError("analyze", err)
	}

	q := engine.Query()
	mods := make([]CLIModule, len(results))
	failed := 0
	for i, r := range results {
		mods[i] = moduleToCLI(q, r)
		if mods[i].Error != nil {
			failed++
		}
	}
	count := len(mods)
	if err := outputResult(CLIResult{Command: "analyze", Results: mods, TotalCount: &count}); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d unit(s) failed", failed, count)
	}
	return nil
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Analyze a project and store the results",
	Long:  "Analyzes every source file under the project root and writes the results to the SQLite database. Files whose content and settings are unchanged keep their stored rows.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}

	if flagForce {
		cfg, err := loadConfig(root)
		if err != nil {
			return err
		}
		dbPath := resolveDBPath(root, cfg)
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database for --force: %w", err)
			}
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	engine, cfg, err := openEngine(root, true)
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.AnalyzeDirectory(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	failed := 0
	for _, r := range results {
		if fe := r.Fatal(); fe != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s\n", r.Path, fe)
		}
	}

	fmt.Fprintf(os.Stderr, "Indexed %d file(s) in %s (%d failed)\n",
		len(results), time.Since(start).Round(time.Millisecond), failed)
	fmt.Fprintf(os.Stderr, "Database: %s\n", resolveDBPath(root, cfg))
	return nil
}
