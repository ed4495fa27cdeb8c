package consensus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Parsing of the judge's delimiter-based output format. The format is
// fragile by nature (it relies on the model following instructions), so
// every failure mode degrades to a usable default instead of erroring:
// a missing section keeps its default, a missing SUMMARY marker turns
// the whole raw text into the summary, and a missing score digit keeps
// the neutral 50.

const (
	defaultSentiment = "Market sentiment is neutral/mixed."
	neutralScore     = 50
)

// judgeReport holds the five parsed sections.
type judgeReport struct {
	Summary   string
	Bull      string
	Bear      string
	Sentiment string
	Score     int
}

var firstInt = regexp.MustCompile(`\d+`)

// parseJudgeOutput splits the raw judge text on the literal "---"
// delimiter and assigns each recognized section marker the segment that
// follows it. Markers match on a case-insensitive prefix so "SCORE:"
// and "score" both work.
func parseJudgeOutput(text string) (judgeReport, error) {
	if strings.TrimSpace(text) == "" {
		return judgeReport{}, fmt.Errorf("empty judge output")
	}

	report := judgeReport{
		Sentiment: defaultSentiment,
		Score:     neutralScore,
	}

	parts := strings.Split(text, "---")
	for i, part := range parts {
		if i+1 >= len(parts) {
			break
		}
		token := strings.ToUpper(strings.TrimSpace(part))
		content := strings.TrimSpace(parts[i+1])
		switch {
		case strings.HasPrefix(token, "SUMMARY"):
			report.Summary = content
		case strings.HasPrefix(token, "BULL"):
			report.Bull = content
		case strings.HasPrefix(token, "BEAR"):
			report.Bear = content
		case strings.HasPrefix(token, "SENTIMENT"):
			report.Sentiment = content
		case strings.HasPrefix(token, "SCORE"):
			// First integer anywhere in the segment, tolerating
			// annotations like "85 (High)".
			if m := firstInt.FindString(content); m != "" {
				if n, err := strconv.Atoi(m); err == nil {
					report.Score = clampScore(n)
				}
			}
		}
	}

	// Total format failure: the model ignored the instructions. Return
	// its raw text as the summary so the report is never empty.
	if report.Summary == "" {
		report.Summary = text
	}
	return report, nil
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
