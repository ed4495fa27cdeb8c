package consensus

import (
	"strings"
	"testing"
)

func TestParseJudgeOutput(t *testing.T) {
	raw := "---SUMMARY---\nAll good\n---BULL---\nUp\n---BEAR---\nDown\n---SENTIMENT---\nNeutral\n---SCORE---\n85 (High)"

	report, err := parseJudgeOutput(raw)
	if err != nil {
		t.Fatalf("parseJudgeOutput: %v", err)
	}
	if report.Summary != "All good" {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Bull != "Up" {
		t.Errorf("bull = %q", report.Bull)
	}
	if report.Bear != "Down" {
		t.Errorf("bear = %q", report.Bear)
	}
	if report.Sentiment != "Neutral" {
		t.Errorf("sentiment = %q", report.Sentiment)
	}
	if report.Score != 85 {
		t.Errorf("score = %d, want 85", report.Score)
	}
}

func TestParseJudgeOutputRoundTrip(t *testing.T) {
	sections := map[string]string{
		"SUMMARY":   "The setup is constructive but extended.",
		"BULL":      "- Strong revenue growth\n- Moat intact",
		"BEAR":      "- Valuation stretched\n- Margin pressure",
		"SENTIMENT": "Greed, retail piling in.",
	}

	// Extra whitespace around markers must not matter.
	var sb strings.Builder
	for _, name := range []string{"SUMMARY", "BULL", "BEAR", "SENTIMENT"} {
		sb.WriteString("--- " + name + " ---\n")
		sb.WriteString(sections[name] + "\n")
	}
	sb.WriteString("---SCORE---\n  72  \n")

	report, err := parseJudgeOutput(sb.String())
	if err != nil {
		t.Fatalf("parseJudgeOutput: %v", err)
	}
	if report.Summary != sections["SUMMARY"] {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Bull != sections["BULL"] {
		t.Errorf("bull = %q", report.Bull)
	}
	if report.Bear != sections["BEAR"] {
		t.Errorf("bear = %q", report.Bear)
	}
	if report.Sentiment != sections["SENTIMENT"] {
		t.Errorf("sentiment = %q", report.Sentiment)
	}
	if report.Score != 72 {
		t.Errorf("score = %d, want 72", report.Score)
	}
}

func TestParseJudgeOutputNoSummaryFallback(t *testing.T) {
	raw := "The model completely ignored the format and wrote prose instead."

	report, err := parseJudgeOutput(raw)
	if err != nil {
		t.Fatalf("parseJudgeOutput: %v", err)
	}
	if report.Summary != raw {
		t.Errorf("summary should be the raw text verbatim, got %q", report.Summary)
	}
	if report.Score != neutralScore {
		t.Errorf("score = %d, want neutral %d", report.Score, neutralScore)
	}
	if report.Sentiment != defaultSentiment {
		t.Errorf("sentiment = %q, want default", report.Sentiment)
	}
}

func TestParseJudgeOutputCaseInsensitiveMarkers(t *testing.T) {
	raw := "---summary---\nlowercase works\n---Score---\n30"
	report, err := parseJudgeOutput(raw)
	if err != nil {
		t.Fatalf("parseJudgeOutput: %v", err)
	}
	if report.Summary != "lowercase works" {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Score != 30 {
		t.Errorf("score = %d, want 30", report.Score)
	}
}

func TestParseJudgeOutputScoreNoDigit(t *testing.T) {
	raw := "---SUMMARY---\nok\n---SCORE---\nvery high conviction"
	report, err := parseJudgeOutput(raw)
	if err != nil {
		t.Fatalf("parseJudgeOutput: %v", err)
	}
	if report.Score != neutralScore {
		t.Errorf("score = %d, want neutral default", report.Score)
	}
}

func TestParseJudgeOutputScoreClamped(t *testing.T) {
	raw := "---SUMMARY---\nok\n---SCORE---\n250"
	report, _ := parseJudgeOutput(raw)
	if report.Score != 100 {
		t.Errorf("score = %d, want clamp to 100", report.Score)
	}
}

func TestParseJudgeOutputEmpty(t *testing.T) {
	if _, err := parseJudgeOutput("   \n"); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParseJudgeOutputStrayDashes(t *testing.T) {
	// "---" inside prose must not corrupt recognized sections.
	raw := "---SUMMARY---\nGood setup --- but risky\n---SCORE---\n60"
	report, err := parseJudgeOutput(raw)
	if err != nil {
		t.Fatalf("parseJudgeOutput: %v", err)
	}
	if report.Score != 60 {
		t.Errorf("score = %d, want 60", report.Score)
	}
	if !strings.HasPrefix(report.Summary, "Good setup") {
		t.Errorf("summary = %q", report.Summary)
	}
}
