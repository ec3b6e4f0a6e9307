package openai

import "fmt"

func buildRerankPrompt(query string, k int) string {
	return fmt.Sprintf(`You are re-ranking DNS anomaly snippets for relevance to the user's query.

User query:
%s

For each candidate, you will receive a JSON with fields:
- score: cosine similarity (higher is better)
- doc_text: the anomaly text
- metadata: event_hour, rdata_trimmed, country_code, anomaly_type

Return a JSON array of the TOP %d items with fields:
- idx: index in the provided list
- final: a float score between 0 and 1 (your relevance)
Think briefly; prefer precise temporal/location matches, concrete anomaly reasons, and consistent metrics.`, query, k)
}
