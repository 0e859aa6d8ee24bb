package judgment

// #region imports
import (
	"strings"

	"github.com/scuhci/focusmode-backend/internal/categories"
	"github.com/scuhci/focusmode-backend/internal/entry"
	"github.com/scuhci/focusmode-backend/internal/features"
)

// #endregion

// #region constants

// longDescriptionWords is the word count above which a description with
// a keyword hit becomes a strong signal.
const longDescriptionWords = 50

// #endregion constants

// #region compute

// ComputeSignals derives the ten advisory signals from an event, its
// folded history, and the participant's focus-category preferences.
// fields is the extractor's flat output for the same event.
func ComputeSignals(e entry.Entry, fields map[string]any, focusCategories []string) Signals {
	title := stringField(fields, "title")
	description := stringField(fields, "description")
	category := stringField(fields, "category_name")

	titleHit := categories.AnyHit(focusCategories, title)
	descriptionHit := categories.AnyHit(focusCategories, description)

	return Signals{
		PriorPositiveLabel:        priorPositive(e.Priors),
		CategoryRepeated:          categoryRepeats(e.Priors, category) >= 2,
		CategoryPreferred:         containsFold(focusCategories, category),
		LongDescriptionKeywordHit: len(strings.Fields(description)) > longDescriptionWords && descriptionHit,
		Subscribed:                e.Subscribed,
		FromSearchSurface:         e.IntentSource == features.IntentSearchPage,
		FromChannelSurface:        e.IntentSource == features.IntentChannelPage,
		TitleKeywordHit:           titleHit,
		DescriptionKeywordHit:     descriptionHit,
		SessionHasHistory:         hasHistory(e.Priors),
	}
}

// #endregion compute

// #region helpers

func priorPositive(priors [3]entry.BackRef) bool {
	for _, p := range priors {
		if p.Focus != nil && *p.Focus {
			return true
		}
	}
	return false
}

func categoryRepeats(priors [3]entry.BackRef, category string) int {
	if category == "" || category == categories.Unknown {
		return 0
	}
	n := 0
	for _, p := range priors {
		if p.Category != nil && strings.EqualFold(*p.Category, category) {
			n++
		}
	}
	return n
}

func hasHistory(priors [3]entry.BackRef) bool {
	for _, p := range priors {
		if p.Focus != nil || p.Category != nil {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// #endregion helpers
