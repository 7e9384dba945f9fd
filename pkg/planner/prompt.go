package planner

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent unchanged on every attempt
const SystemPrompt = `You are a maritime route planner. You receive a start position, an end position and circular obstacles on a flat chart measured in metres. You return waypoints for a vessel that keep the required safety distance from the edge of every obstacle.

Rules:
- The straight leg between two consecutive waypoints must keep the safety distance too, not only the waypoints themselves.
- The first waypoint must be the start position and the last waypoint must be the end position.
- Reply with one JSON object and nothing else, in exactly this shape:
{"waypoints": [{"x": 0.0, "y": 0.0}, {"x": 10.0, "y": 5.0}], "explanation": "one or two sentences about the route"}`

// BuildUserPrompt renders the scene for one attempt. From the second attempt
// on, lastError is the reason the previous candidate was rejected.
func BuildUserPrompt(req Request, notes string, attempt int, lastError string) string {
	var b strings.Builder

	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		instruction = "Plan a safe route from the start to the end."
	}
	fmt.Fprintf(&b, "Instruction: %s\n\n", instruction)
	fmt.Fprintf(&b, "Start: (%g, %g)\n", req.Start.X, req.Start.Y)
	fmt.Fprintf(&b, "End: (%g, %g)\n", req.End.X, req.End.Y)
	fmt.Fprintf(&b, "Safety distance: %gm from every obstacle edge\n\n", req.SafeDistance)

	if len(req.Obstacles) == 0 {
		b.WriteString("Obstacles: none\n")
	} else {
		b.WriteString("Obstacles:\n")
		for i, o := range req.Obstacles {
			fmt.Fprintf(&b, "- Obstacle %d: center (%g, %g), radius %gm, min safe dist from center = %gm\n",
				i+1, o.X, o.Y, o.Radius, o.Radius+req.SafeDistance)
		}
	}

	b.WriteString("\nObstacle spacing:\n")
	b.WriteString(notes)
	b.WriteString("\n\n")

	b.WriteString("Planning strategy:\n")
	b.WriteString("- Pass obstacles with an arc or zig-zag detour instead of cutting close.\n")
	b.WriteString("- Use 5 to 10 waypoints so each leg stays short enough to check.\n")
	b.WriteString("- Rather detour far than risk a close pass.\n")

	if attempt >= 2 && lastError != "" {
		fmt.Fprintf(&b, "\nThis is attempt %d. The previous route was rejected:\n%s\n", attempt, lastError)
		b.WriteString("Fix that problem specifically. Make the detour around the named obstacle wider, ")
		b.WriteString("add more waypoints and stay well away from obstacle centers. ")
		fmt.Fprintf(&b, "Every waypoint and every leg must stay at least %gm from each obstacle edge.\n", req.SafeDistance)
	}

	return b.String()
}
