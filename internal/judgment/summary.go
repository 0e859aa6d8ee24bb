package judgment

// #region imports
import (
	"regexp"
	"strconv"
	"strings"
)

// #endregion

// #region constants

// maxEvidenceWords caps the free-text evidence clause of a summary.
const maxEvidenceWords = 20

const evidencePrefix = "Key Evidence:"

// #endregion constants

// #region truncate

// TruncateEvidence shortens the evidence clause of a two-part
// `"<confidence clause> | Key Evidence: <free text>"` summary to at
// most 20 words, appending an ellipsis when it truncated. Summaries
// that do not match that exact shape come back unmodified.
func TruncateEvidence(summary string) string {
	parts := strings.Split(summary, "|")
	if len(parts) != 2 {
		return summary
	}

	evidence := strings.TrimSpace(parts[1])
	if !strings.HasPrefix(evidence, evidencePrefix) {
		return summary
	}

	words := strings.Fields(strings.TrimSpace(strings.TrimPrefix(evidence, evidencePrefix)))
	if len(words) <= maxEvidenceWords {
		return summary
	}

	return strings.TrimSpace(parts[0]) + " | " + evidencePrefix + " " +
		strings.Join(words[:maxEvidenceWords], " ") + "..."
}

// #endregion truncate

// #region confidence

var confidencePattern = regexp.MustCompile(`(?i)confidence:\s*(\d{1,3})\s*%`)

// ParseConfidence extracts the percentage from a summary's confidence
// clause, defaulting to 50 when absent or unparseable.
func ParseConfidence(summary string) int {
	m := confidencePattern.FindStringSubmatch(summary)
	if m == nil {
		return 50
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return 50
	}
	return n
}

// #endregion confidence
