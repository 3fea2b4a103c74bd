package shallow

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are screening a live conversation transcript for claims worth fact-checking or researching further.

Recent conversation:
%s

Current utterance:
%s

If the current utterance contains a notable, checkable claim, respond in exactly this format:
Flags: ["short phrase for each claim"]
SemanticSummary: 'one sentence stating the topic of the claim'

If nothing is notable, respond with:
Flags: []
SemanticSummary: ''

Do not add any other text.`

// BuildPrompt renders the screening prompt for an utterance with its recent
// conversational context, oldest first.
func BuildPrompt(text string, window []string) string {
	context := "(start of conversation)"
	if len(window) > 0 {
		var b strings.Builder
		for _, prior := range window {
			b.WriteString("- ")
			b.WriteString(prior)
			b.WriteString("\n")
		}
		context = strings.TrimRight(b.String(), "\n")
	}
	return fmt.Sprintf(promptTemplate, context, text)
}
