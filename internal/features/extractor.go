package features

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scuhci/focusmode-backend/internal/categories"
	"github.com/scuhci/focusmode-backend/internal/entry"
)

// #endregion

// #region intent-sources

// Navigation-intent sources carried by inbound events.
const (
	IntentSearchPage  = "search_page"
	IntentChannelPage = "channel_page"
	IntentHomePage    = "home_page"
)

// #endregion intent-sources

// #region errors

// ErrFieldCollision means two pruned keys renamed to the same field
// name. This is not expected for well-formed payloads.
var ErrFieldCollision = errors.New("field name collision after rename")

// #endregion errors

// #region extractor

// Extractor builds the flat context record for one event.
type Extractor struct {
	resolver *categories.Cached
}

// NewExtractor creates an extractor using the given category resolver.
func NewExtractor(resolver *categories.Cached) *Extractor {
	return &Extractor{resolver: resolver}
}

// #endregion extractor

// #region fold-history

// FoldHistory derives the three back-references for a new entry from
// its session's most recent prior entries (already newest-first). The
// i-th reference stays nil when fewer than i prior entries exist.
func (x *Extractor) FoldHistory(ctx context.Context, priors []entry.Entry) ([3]entry.BackRef, error) {
	var refs [3]entry.BackRef
	for i := 0; i < 3 && i < len(priors); i++ {
		p := priors[i]
		refs[i].Focus = p.FocusLabel

		name, err := x.resolver.Name(ctx, categoryCode(p.Video))
		if err != nil {
			return refs, fmt.Errorf("resolve prior category: %w", err)
		}
		refs[i].Category = &name
	}
	return refs, nil
}

// #endregion fold-history

// #region extract

// droppedSegments are path segments irrelevant to downstream prompting:
// raw timestamps, thumbnail URLs, and internal identifiers.
var droppedSegments = map[string]bool{
	"publishedAt": true,
	"publishTime": true,
	"timestamp":   true,
	"etag":        true,
	"id":          true,
	"videoId":     true,
	"channelId":   true,
	"playlistId":  true,
	"categoryId":  true,
	"thumbnails":  true,
	"localized":   true,
}

// Extract produces the flat field-to-scalar record for an event whose
// back-references have already been folded.
func (x *Extractor) Extract(ctx context.Context, e entry.Entry) (map[string]any, error) {
	flat := Flatten(e.Video)

	// Intent-source normalization: on a channel page the salient text is
	// the channel title; a search page passes through unmodified; every
	// other surface uses the item title.
	switch e.IntentSource {
	case IntentChannelPage:
		if v, ok := snippetField(flat, "channelTitle"); ok {
			flat["context_title"] = v
		}
	case IntentSearchPage:
		// passthrough
	default:
		if v, ok := snippetField(flat, "title"); ok {
			flat["context_title"] = v
		}
	}

	name, err := x.resolver.Name(ctx, categoryCode(e.Video))
	if err != nil {
		return nil, fmt.Errorf("resolve category: %w", err)
	}
	flat["category_name"] = name

	flat["intent_source"] = e.IntentSource
	flat["subscribed"] = e.Subscribed

	for i, ref := range e.Priors {
		focusKey := fmt.Sprintf("prior_focus_%d", i+1)
		categoryKey := fmt.Sprintf("prior_category_%d", i+1)
		if ref.Focus != nil {
			flat[focusKey] = *ref.Focus
		} else {
			flat[focusKey] = nil
		}
		if ref.Category != nil {
			flat[categoryKey] = *ref.Category
		} else {
			flat[categoryKey] = nil
		}
	}

	return pruneAndRename(flat)
}

// pruneAndRename drops irrelevant fields and renames dotted keys to
// their last path segment. Collisions raise: they are never expected.
func pruneAndRename(flat map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(flat))
	for key, val := range flat {
		if dropped(key) {
			continue
		}
		short := lastSegment(key)
		if prev, exists := out[short]; exists && prev != val {
			return nil, fmt.Errorf("%w: %q", ErrFieldCollision, short)
		}
		out[short] = val
	}
	return out, nil
}

func dropped(key string) bool {
	for _, seg := range strings.Split(key, ".") {
		if droppedSegments[seg] {
			return true
		}
	}
	return false
}

// #endregion extract

// #region payload-access

// categoryCode digs the category code out of the nested metadata
// document, tolerating either document shape.
func categoryCode(video map[string]any) string {
	if snippet, ok := video["snippet"].(map[string]any); ok {
		if code, ok := snippet["categoryId"].(string); ok {
			return code
		}
	}
	if code, ok := video["categoryId"].(string); ok {
		return code
	}
	return ""
}

// snippetField reads a field from the flattened snippet block, falling
// back to the top level for payloads without one.
func snippetField(flat map[string]any, field string) (any, bool) {
	if v, ok := flat["snippet."+field]; ok {
		return v, true
	}
	if v, ok := flat[field]; ok {
		return v, true
	}
	return nil, false
}

// #endregion payload-access
