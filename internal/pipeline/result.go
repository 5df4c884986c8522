package pipeline

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

const summaryRunes = 280

var baseTags = []string{"extracted", "file", "ai"}

// NewResultEntry builds the knowledge entry for an answer. Callers fill in ids,
// refs and timestamps.
func NewResultEntry(doc *model.Document, answer string, maxBytes int) *model.KnowledgeEntry {
	content := truncateBytes(strings.TrimSpace(answer), maxBytes)
	obj := parseJSONObject(content)
	return &model.KnowledgeEntry{
		UserID:     doc.UserID,
		DocumentID: doc.ID,
		Title:      doc.Filename,
		Content:    content,
		Summary:    summarize(content, obj),
		Tags:       resultTags(obj),
	}
}

// truncateBytes cuts s to at most max bytes without splitting a rune.
func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// parseJSONObject accepts a bare JSON object or one wrapped in a markdown
// code fence.
func parseJSONObject(s string) map[string]interface{} {
	body := strings.TrimSpace(s)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}
	if !strings.HasPrefix(body, "{") {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil
	}
	return obj
}

func summarize(content string, obj map[string]interface{}) string {
	for _, key := range []string{"summary", "resumen"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if utf8.RuneCountInString(content) <= summaryRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:summaryRunes])
}

func resultTags(obj map[string]interface{}) []string {
	tags := append([]string(nil), baseTags...)
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if isEmptyValue(v) {
			continue
		}
		keys = append(keys, strings.ToLower(strings.TrimSpace(k)))
	}
	sort.Strings(keys)
	seen := map[string]bool{}
	for _, t := range tags {
		seen[t] = true
	}
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		tags = append(tags, k)
	}
	return tags
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
