package research

import (
	"fmt"
	"strings"
)

const userSearchTemplate = `You are an expert researcher assisting podcast hosts in real time.

They have flagged the following quote from a guest as confusing, contentious, or especially interesting:
%q%s

Here is the recent transcript context leading up to the flagged quote:
%s

TASK:
Deliver a thorough, factual deep dive. Clarify the issue and explain how it connects to broader ideas. Focus on names, dates, history, and evidence.

Your response must include:
1. Key names, dates, and locations
2. A brief historical timeline (if applicable, skip if not)
3. The nature of the core controversy or claim
4. Major sources or evidence (or lack thereof)

RULES:
- Be neutral, factual, and clear.
- Do NOT speculate or editorialize.
- Create a headline to capture the big idea.
- The body should be detailed. You may separate paragraphs with line breaks.
- Return a valid JSON object with exactly the keys below, all present even when empty.
- DO NOT include markdown formatting or write anything outside the JSON object.

Output this JSON exactly:
{
  "headline": "...",
  "body": "...",
  "key_figures": ["Name 1", "Name 2"],
  "timeline": ["YYYYMMDD: Event", "..."]
}`

const deepSearchTemplate = `The user has asked for a detailed analysis of the following topic:
%q

Recent conversation context:
%s

TASK:
You are an expert researcher assisting podcast hosts in real time. They have flagged this topic as confusing, contentious, or potentially misleading, and asked you to get to the bottom of it. Deliver a thorough, factual deep dive with names, dates, history, and evidence.

Your response should include:
1. Key names, dates, and locations
2. A brief historical timeline (if applicable)
3. The nature of the core controversy or claim
4. Major sources or evidence (or lack thereof)

RULES:
- Be neutral, factual, and clear.
- Do NOT speculate or editorialize.
- Use short, declarative sentences.
- Return structured JSON output, no commentary, no extra formatting.

Output this JSON exactly:
{
  "topic": %q,
  "summary": "...",
  "key_figures": ["Name 1", "Name 2"],
  "timeline": ["YYYYMMDD: Event", "..."],
  "controversy": "...",
  "evidence": "..."
}`

func buildUserSearchPrompt(selectedText, query string, window []string) string {
	queryBlock := ""
	if strings.TrimSpace(query) != "" {
		queryBlock = fmt.Sprintf("\n\nThe host has also included a personal note. It is not part of the transcript, but it reflects specific ideas or questions they want addressed directly:\n%q", query)
	}
	return fmt.Sprintf(userSearchTemplate, selectedText, queryBlock, strings.Join(window, "\n"))
}

func buildDeepSearchPrompt(topic string, window []string) string {
	return fmt.Sprintf(deepSearchTemplate, topic, strings.Join(window, "\n"), topic)
}
