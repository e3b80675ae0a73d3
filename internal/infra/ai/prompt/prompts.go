package prompt

import (
	"fmt"
	"strings"
)

// EnrichSystemPrompt asks for a fixed number of physical sub-components as a JSON object.
func EnrichSystemPrompt(components int) string {
	if components <= 0 {
		components = 4
	}
	return fmt.Sprintf(`You are an automotive engineering expert. Return one valid JSON object only (no markdown, no commentary).

Requirements:
- Exactly %d components, ordered by importance.
- Physical parts only, named with precise engineering terms.
- Every component needs a function and a subsystem (Powertrain, Drivetrain, Chassis, Electronics, Body, Thermal).
- Names must be unique.

Schema:
{
  "components": [
    {"name": "<string>", "function": "<string>", "subsystem": "<string>"}
  ]
}`, components)
}

func EnrichUserPrompt(identifier, description string) string {
	if strings.TrimSpace(description) == "" {
		return fmt.Sprintf("Identify the critical sub-components for HS code %s.", identifier)
	}
	return fmt.Sprintf("Identify the critical sub-components for HS code %s (%s).", identifier, description)
}

// ClassifySystemPrompt gives the three drivetrain categories and the response schema.
func ClassifySystemPrompt() string {
	return `You classify vehicle components by drivetrain usage. Return one valid JSON object only.

Categories:
- ICE_ONLY: used only in combustion-engine vehicles.
- EV_ONLY: used only in battery-electric vehicles.
- SHARED: used in both.

Rules:
- Classify every component you are given, using its exact name.
- confidence is a number between 0 and 1.
- reasoning is one short sentence.

Schema:
{
  "classifications": [
    {"name": "<string>", "category": "ICE_ONLY|EV_ONLY|SHARED", "confidence": 0.0, "reasoning": "<string>"}
  ]
}`
}

func ClassifyUserPrompt(names []string, identifier string) string {
	return fmt.Sprintf("HS code %s. Components:\n%s", identifier, bullets(names))
}

// ScoreSystemPrompt describes the six transition dimensions.
func ScoreSystemPrompt() string {
	return `You are an expert in automotive manufacturing and electrification. Score each component for the ICE-to-EV transition. Return one valid JSON object only.

Dimensions (integers 0-100):
- tech: technical compatibility with EV platforms
- manufacturing: feasibility of converting existing production
- supply_chain: supply chain concentration risk
- demand: demand stability through the transition
- value: value added per unit
- regulatory: exposure to emission and safety regulation

Rules:
- Score every component you are given, using its exact name.
- Scores must be integers. Use the full range, do not give every dimension the same value.

Schema:
{
  "scores": [
    {"name": "<string>", "tech": 0, "manufacturing": 0, "supply_chain": 0, "demand": 0, "value": 0, "regulatory": 0}
  ]
}`
}

func ScoreUserPrompt(names []string, identifier string) string {
	return fmt.Sprintf("HS code %s. Components:\n%s", identifier, bullets(names))
}

func bullets(names []string) string {
	var b strings.Builder
	for _, n := range names {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
