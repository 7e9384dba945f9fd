package cli

import (
	"errors"
	"fmt"

	"github.com/harun/vesselplan/pkg/gateway"
	"github.com/harun/vesselplan/pkg/geometry"
	"github.com/harun/vesselplan/pkg/validator"
	"github.com/spf13/cobra"
)

// errUnsafeRoute makes validate exit non-zero for a route that fails the check
var errUnsafeRoute = errors.New("route is not safe")

var (
	validateScene     sceneFlags
	validateWaypoints string
	validateRoute     string
)

var validateCmd = &cobra.Command{
	Use:   "validate [scene.yaml]",
	Short: "Check a route against the obstacles",
	Long: `Check that every waypoint and every leg of a route keeps the safety
distance from every obstacle edge, and print the verdict with a per-waypoint
clearance report. The route is given with --waypoints "x,y;x,y" or --route,
a JSON file such as the output of "vesselplan plan".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateScene.pointsOptional = true
	validateScene.register(validateCmd)
	validateCmd.Flags().StringVar(&validateWaypoints, "waypoints", "", "route as x,y;x,y;...")
	validateCmd.Flags().StringVar(&validateRoute, "route", "", "JSON file with a waypoints array")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	waypoints, err := routeFromFlags(validateWaypoints, validateRoute)
	if err != nil {
		return err
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	s, _, err := validateScene.resolve(cmd, path, rt.cfg)
	if err != nil {
		return err
	}

	resp := gateway.ValidateResponse{
		Verdict: validator.Validate(waypoints, s.Obstacles, s.SafeDistance),
		Report:  validator.Report(waypoints, s.Obstacles, s.SafeDistance),
	}
	if err := writeJSON(cmd, resp); err != nil {
		return err
	}
	if !resp.Verdict.Valid {
		return fmt.Errorf("%w: %s", errUnsafeRoute, resp.Verdict.Message)
	}
	return nil
}

func routeFromFlags(waypoints, routeFile string) ([]geometry.Point, error) {
	switch {
	case waypoints != "" && routeFile != "":
		return nil, fmt.Errorf("--waypoints and --route are mutually exclusive")
	case waypoints != "":
		return parseWaypoints(waypoints)
	case routeFile != "":
		return loadRoute(routeFile)
	default:
		return nil, fmt.Errorf("a route is required: use --waypoints or --route")
	}
}
