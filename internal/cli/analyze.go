package cli

import (
	"fmt"

	"github.com/harun/vesselplan/pkg/scene"
	"github.com/spf13/cobra"
)

var (
	analyzeScene sceneFlags
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [scene.yaml]",
	Short: "Grade the channels between obstacles",
	Long: `Measure the gap between every pair of obstacles once both are inflated by
the safety distance, and grade each channel as impassable, narrow, cautious
or clear. These are the notes the planner adds to its prompt; no language
model is called.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeScene.register(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the pair analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	s, warnings, err := analyzeScene.resolve(cmd, path, rt.cfg)
	if err != nil {
		return err
	}
	logger := rt.logger("cli")
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}

	analyzer := rt.cfg.Planner.Analyzer()
	if analyzeJSON {
		pairs := analyzer.Analyze(s.Obstacles, s.SafeDistance)
		if pairs == nil {
			pairs = []scene.PairAnalysis{}
		}
		return writeJSON(cmd, map[string]interface{}{
			"safe_distance": s.SafeDistance,
			"pairs":         pairs,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Obstacles: %d, safety distance: %gm\n", len(s.Obstacles), s.SafeDistance)
	fmt.Fprintln(out, analyzer.Notes(s.Obstacles, s.SafeDistance))
	return nil
}
