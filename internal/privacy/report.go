package privacy

import (
	"fmt"
	"strings"
)

// reportSampleSize is how many values are listed per label before eliding
const reportSampleSize = 3

// Summarize counts events per label, in order of first appearance. The result
// carries no redacted values and is safe to log or persist.
func Summarize(events []Event) []LabelCount {
	counts := make([]LabelCount, 0)
	index := make(map[string]int)

	for _, event := range events {
		i, ok := index[event.Label]
		if !ok {
			i = len(counts)
			index[event.Label] = i
			counts = append(counts, LabelCount{Category: event.Category, Label: event.Label})
		}
		counts[i].Count++
	}
	return counts
}

// BuildReport renders the human-readable redaction report. It contains the
// original values and must only be shown to the operator reviewing the
// document.
func BuildReport(events []Event) string {
	if len(events) == 0 {
		return "個人情報は検出されませんでした。"
	}

	values := make(map[string][]string)
	for _, event := range events {
		values[event.Label] = append(values[event.Label], event.Value)
	}

	var b strings.Builder
	b.WriteString("=== 削除した個人情報 ===")
	for _, lc := range Summarize(events) {
		fmt.Fprintf(&b, "\n\n%s: %d件", lc.Label, lc.Count)
		for i, value := range values[lc.Label] {
			if i == reportSampleSize {
				fmt.Fprintf(&b, "\n  ... 他 %d件", lc.Count-reportSampleSize)
				break
			}
			fmt.Fprintf(&b, "\n  %d. %s", i+1, value)
		}
	}
	return b.String()
}
