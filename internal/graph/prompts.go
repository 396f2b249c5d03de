package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

const tagsSystemPrompt = `You are an information extractor.
Read the conversation history and return a strict JSON object with a key
"topics" that maps to an array of strings.
Guidelines:
- Include broad topics (e.g. "Computer Science") and narrow ones
  (e.g. "Dijkstra").
- Do not include duplicates.
- Output JSON ONLY, no commentary.`

func adjacencySystemPrompt(topicsJSON string) string {
	return fmt.Sprintf(`You are an information extractor.
Return ONLY valid JSON (no prose). Build an undirected adjacency LIST for
topic relatedness.
topics = %s
Rules:
- Use the topics array EXACTLY AS GIVEN and IN THE SAME ORDER.
- Output keys:
  - "topics": echo the array exactly,
  - "adjacency": an object mapping each topic (string) to a list of
    connected topics (strings).
- Do not invent or rename topics.
- No self-links (a topic must not list itself).
- Prefer sparsity: include a connection only when it is clearly warranted.
- The graph is undirected: if A lists B, B should list A.
- JSON only. NO MARKDOWN.`, topicsJSON)
}

// decodeModelJSON unmarshals a model response that is supposed to be a bare
// JSON object but may arrive wrapped in markdown code fences.
func decodeModelJSON(raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	stripped := trimmed
	if strings.HasPrefix(stripped, "```") {
		stripped = strings.TrimPrefix(stripped, "```json")
		stripped = strings.TrimPrefix(stripped, "```")
		stripped = strings.TrimSuffix(strings.TrimSpace(stripped), "```")
		stripped = strings.TrimSpace(stripped)
		if err := json.Unmarshal([]byte(stripped), out); err == nil {
			return nil
		}
	}

	// Last resort: take the outermost brace-delimited span.
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		return json.Unmarshal([]byte(trimmed[start:end+1]), out)
	}
	return json.Unmarshal([]byte(trimmed), out)
}
