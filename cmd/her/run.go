package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/her-retrieval/her/internal/driver"
	"github.com/her-retrieval/her/internal/metrics"
	"github.com/her-retrieval/her/internal/model"
	"github.com/her-retrieval/her/internal/pipeline"
)

var (
	stepsFile string
	startURL  string
)

var runCmd = &cobra.Command{
	Use:   "run [step...]",
	Short: "Run one or more natural-language steps against a fresh browser session",
	Long: `Run drives a headless (or headed, with --headed) browser through a
sequence of steps such as: navigate https://example.com, click "Sign in",
type "jane@example.com" into "Email".

Steps may be given as positional arguments, one per line in --steps-file,
or both.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := append([]string{}, args...)
		if stepsFile != "" {
			fileSteps, err := readSteps(stepsFile)
			if err != nil {
				return err
			}
			steps = append(steps, fileSteps...)
		}
		if startURL != "" {
			steps = append([]string{"navigate " + startURL}, steps...)
		}
		if len(steps) == 0 {
			return fmt.Errorf("no steps given: pass them as arguments or via --steps-file")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		headless := cfg.Browser.Headless && !headedOverride
		drv, err := driver.New(driver.Config{Headless: headless})
		if err != nil {
			return fmt.Errorf("failed to start driver: %w", err)
		}
		defer drv.Close()

		rec, err := metrics.New()
		if err != nil {
			return fmt.Errorf("failed to start metrics recorder: %w", err)
		}
		defer rec.Shutdown(context.Background())

		orch, err := pipeline.New(cfg, drv, st, rec)
		if err != nil {
			return fmt.Errorf("failed to build orchestrator: %w", err)
		}
		defer orch.Close()

		ctx := cmd.Context()
		ok := true
		for _, step := range steps {
			result := orch.Step(ctx, step)
			printResult(step, result)
			if !result.OK {
				ok = false
				break
			}
		}
		if !ok {
			return fmt.Errorf("run stopped on a failing step")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&stepsFile, "steps-file", "", "Path to a file of newline-separated steps")
	runCmd.Flags().StringVar(&startURL, "url", "", "Navigate here before running the given steps")
	runCmd.Flags().BoolVar(&headedOverride, "headed", false, "Force a visible browser window (overrides config headless=true)")
}

var headedOverride bool

func readSteps(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps file %s: %w", path, err)
	}
	defer f.Close()

	var steps []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		steps = append(steps, line)
	}
	return steps, scanner.Err()
}

func printResult(step string, r model.Result) {
	if r.OK {
		fmt.Printf("ok   [%s] %-10s %-40q xpath=%s value=%q\n", r.StepID, r.Action, step, r.XPath, r.Value)
		return
	}
	fmt.Printf("FAIL [%s] %-10s %-40q stage=%s kind=%s: %s\n", r.StepID, r.Action, step, r.Stage, r.Kind, r.Message)
	for _, s := range r.Suggestions {
		fmt.Printf("       suggestion: %s\n", s)
	}
}
