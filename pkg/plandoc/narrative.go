package plandoc

import (
	"fmt"
	"strings"
)

const narrativeSystem = `You write short renovation plans for homeowners.
Write two to four plain paragraphs separated by blank lines: the goal, the main
changes in order of work, and what to decide before hiring. No headings, no lists,
no markdown. Do not invent prices.`

// narrativePrompt describes plan to the narrator.
func narrativePrompt(plan Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room: %s\n", plan.Room.Name)
	if plan.Room.Kind != "" {
		fmt.Fprintf(&b, "Type: %s\n", plan.Room.Kind)
	}
	if plan.Room.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", plan.Room.Style)
	}
	if budget := formatBudget(plan.Room.BudgetCents); budget != "" {
		fmt.Fprintf(&b, "Budget: %s\n", budget)
	}
	if notes := strings.TrimSpace(plan.Room.Notes); notes != "" {
		fmt.Fprintf(&b, "Homeowner notes:\n%s\n", notes)
	}
	if len(plan.Renders) > 0 {
		b.WriteString("Approved renderings:\n")
		for _, r := range plan.Renders {
			fmt.Fprintf(&b, "- %s\n", r.Prompt)
		}
	}
	return b.String()
}
