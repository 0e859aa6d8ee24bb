package categories

// #region imports
import (
	"regexp"
	"sync"
)

// #endregion

// #region keyword-tables

// Keywords maps a focus-category name to the fixed keyword list scanned
// against event titles and descriptions. A keyword counts as a hit only
// as a whole word, never as a substring.
var Keywords = map[string][]string{
	"Education": {
		"lecture", "course", "tutorial", "lesson", "exam", "homework",
		"study", "learn", "professor", "university", "textbook", "syllabus",
	},
	"Science & Technology": {
		"research", "experiment", "physics", "chemistry", "biology",
		"engineering", "algorithm", "programming", "software", "hardware",
		"technology", "robotics",
	},
	"Howto & Style": {
		"howto", "guide", "diy", "tutorial", "repair", "install",
		"recipe", "technique", "walkthrough", "step",
	},
	"News & Politics": {
		"news", "election", "policy", "economy", "government",
		"debate", "analysis", "report", "briefing",
	},
	"People & Blogs": {
		"interview", "documentary", "biography", "journal", "essay",
	},
}

// #endregion keyword-tables

// #region matching

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// wordPattern compiles (and caches) a case-insensitive whole-word
// pattern for one keyword.
func wordPattern(keyword string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[keyword]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	patternCache[keyword] = re
	return re
}

// HitsKeyword reports whether any keyword of the given category appears
// as a whole word in text. Categories without a keyword list never hit.
func HitsKeyword(category, text string) bool {
	if text == "" {
		return false
	}
	for _, kw := range Keywords[category] {
		if wordPattern(kw).MatchString(text) {
			return true
		}
	}
	return false
}

// AnyHit reports whether any of the given categories has a keyword hit
// in text.
func AnyHit(cats []string, text string) bool {
	for _, c := range cats {
		if HitsKeyword(c, text) {
			return true
		}
	}
	return false
}

// #endregion matching
