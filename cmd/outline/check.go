package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Run rule scripts over the project",
	Long:  "Indexes the project, then runs every *.risor script from the configured rules directory against each module. Exits non-zero when any rule reports a finding.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

var flagRulesDir string

func init() {
	checkCmd.Flags().StringVar(&flagRulesDir, "rules", "", "rules directory (overrides rules.dir from outline.toml)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("check", err)
	}
	engine, _, err := openEngine(root, true)
	if err != nil {
		return outputError("check", err)
	}
	defer engine.Close()

	if _, err := engine.AnalyzeDirectory(cmd.Context(), root); err != nil {
		return outputError("check", fmt.Errorf("indexing: %w", err))
	}
	findings, err := engine.Check(cmd.Context())
	if err != nil {
		return outputError("check", err)
	}

	count := len(findings)
	if err := outputResult(CLIResult{Command: "check", Results: findingsToCLI(findings), TotalCount: &count}); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%d finding(s)", count)
	}
	return nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Cross-check the analysis against tree-sitter",
	Long:  "Analyzes the project in memory and compares the class, function and import counts of every module with a tree-sitter parse of the same source.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("verify", err)
	}
	engine, _, err := openEngine(root, false)
	if err != nil {
		return outputError("verify", err)
	}
	defer engine.Close()

	if _, err := engine.AnalyzeDirectory(cmd.Context(), root); err != nil {
		return outputError("verify", fmt.Errorf("analyzing: %w", err))
	}
	// Reports are printed even when units disagree; the error then sets
	// the exit status.
	reports, verr := engine.Verify(cmd.Context())
	count := len(reports)
	if err := outputResult(CLIResult{Command: "verify", Results: reportsToCLI(reports), TotalCount: &count}); err != nil {
		return err
	}
	return verr
}
