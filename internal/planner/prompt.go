package planner

import (
	"fmt"
	"strings"
)

// Prompts sent to the completion provider. The structured-output schema does
// the heavy lifting; the prose only sets the framing and the clarification
// escape hatch.

const clarificationInstructions = `If the request is too ambiguous to plan, respond with a line containing
[CLARIFICATION_NEEDED] followed by a single question, an optional
"Options: [a, b, c]" line, MULTIPLE_CHOICE_ONLY if free text is not acceptable,
and [END_CLARIFICATION].`

func buildPlanPrompt(request string) string {
	var b strings.Builder
	b.WriteString("You are a software planning assistant. Break the feature request below into a flat list of concrete, independently actionable tasks.\n")
	b.WriteString("Tag each task's effort as low, medium, or high.\n\n")
	b.WriteString(clarificationInstructions)
	b.WriteString("\n\nFeature request:\n")
	b.WriteString(request)
	return b.String()
}

func buildReviewPrompt(request string) string {
	var b strings.Builder
	b.WriteString("You are reviewing an existing plan. Propose additional or refined tasks for the adjustment below. Do not restate tasks that need no change.\n")
	b.WriteString("Tag each task's effort as low, medium, or high.\n\n")
	b.WriteString(clarificationInstructions)
	b.WriteString("\n\nAdjustment request:\n")
	b.WriteString(request)
	return b.String()
}

// buildResumePrompt stitches the suspended exchange back together so the
// provider sees its own partial answer and the human's clarification.
func buildResumePrompt(originalPrompt, partialResponse, answer string) string {
	var b strings.Builder
	b.WriteString(originalPrompt)
	b.WriteString("\n\nYour previous response was:\n")
	b.WriteString(partialResponse)
	b.WriteString("\n\nThe user answered your clarification question:\n")
	b.WriteString(answer)
	b.WriteString("\n\nProduce the full task plan now.")
	return b.String()
}

func buildDecomposePrompt(description string, minSubtasks, maxSubtasks int) string {
	return fmt.Sprintf(
		"Break down the following task into %d to %d smaller subtasks. Each subtask must be completable in one sitting; tag each one's effort as low or medium, never high.\n\nTask:\n%s",
		minSubtasks, maxSubtasks, description)
}

func buildEffortPrompt(line string) string {
	return "Estimate the implementation effort of the following task as exactly one of low, medium, or high.\n\nTask:\n" + line
}
