// Package parse transforms the source site's raw JSON payloads into
// normalized ranking and book records. All functions are pure; the
// upstream's shapes are inconsistent, so field lookup walks ordered
// candidate-key tables instead of ad hoc branching. Adding a new shape is
// a data change.
package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// Candidate keys per concern, tried in order. The source nests ranking
// arrays under different names depending on the page type, and book
// identifiers vary in casing and representation (string vs number).
var (
	rankingListKeys = []string{"data", "list", "rankList", "channelMore", "items"}
	bookListKeys    = []string{"data", "list", "books", "items"}
	novelIDKeys     = []string{"novelId", "novelid", "novelID", "id"}
	rankIDKeys      = []string{"rankid", "rankId", "rank_id"}
	rankNameKeys    = []string{"channelName", "name", "title"}
	channelKeys     = []string{"channel", "channelKey", "type"}
	titleKeys       = []string{"novelName", "novelname", "title"}
	authorIDKeys    = []string{"authorId", "authorid"}
	authorNameKeys  = []string{"authorName", "authorname"}
)

// Counter keys per metric segment, as the source reports them.
var (
	favoritesKeys   = []string{"novelbefavoritedcount", "favoritedCount", "collected"}
	clicksKeys      = []string{"novip_clicks", "clicks", "allClicks"}
	clicksMonthKeys = []string{"monthClicks", "novip_month_clicks"}
	clicksWeekKeys  = []string{"weekClicks", "novip_week_clicks"}
	clicksDayKeys   = []string{"dayClicks", "novip_day_clicks"}
	commentsKeys    = []string{"comment_count", "commentCount", "reviewCount"}
	nominationKeys  = []string{"nutrition_novel", "nominationCount"}
	nominationWkKey = []string{"weekNutrition", "weekNominationCount"}
)

// Rankings extracts the leaderboards from a raw ranking-listing payload.
// A payload with no recognizable entries under any known key yields an
// empty slice: an empty ranking page is a valid outcome, not a parse
// failure.
func Rankings(payload map[string]any) []crawler.RankingEntry {
	if payload == nil {
		return nil
	}
	items := firstSlice(payload, rankingListKeys)
	if items == nil {
		return nil
	}

	entries := make([]crawler.RankingEntry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := crawler.RankingEntry{
			RankID:  stringField(m, rankIDKeys),
			Name:    stringField(m, rankNameKeys),
			Channel: stringField(m, channelKeys),
			Books:   rankedBooks(m),
		}
		entries = append(entries, entry)
	}
	return entries
}

// Book validates and normalizes a raw book-detail payload. A payload
// missing the external identifier is a data-integrity violation and
// returns a business-class error; every other field has a defined
// fallback (author reference defaults to the 0 sentinel, counters to 0).
func Book(payload map[string]any) (crawler.BookDetail, error) {
	id := intField(payload, novelIDKeys)
	if id <= 0 {
		return crawler.BookDetail{}, &crawler.BusinessError{Reason: "book payload has no novel identifier"}
	}
	return crawler.BookDetail{
		NovelID:    id,
		Title:      stringField(payload, titleKeys),
		AuthorID:   intField(payload, authorIDKeys),
		AuthorName: stringField(payload, authorNameKeys),
		Metrics: crawler.BookMetrics{
			Favorites:         intField(payload, favoritesKeys),
			Clicks:            intField(payload, clicksKeys),
			ClicksMonthly:     intField(payload, clicksMonthKeys),
			ClicksWeekly:      intField(payload, clicksWeekKeys),
			ClicksDaily:       intField(payload, clicksDayKeys),
			Comments:          intField(payload, commentsKeys),
			Nominations:       intField(payload, nominationKeys),
			NominationsWeekly: intField(payload, nominationWkKey),
		},
	}, nil
}

func rankedBooks(ranking map[string]any) []crawler.RankedBook {
	items := firstSlice(ranking, bookListKeys)
	if items == nil {
		return nil
	}
	books := make([]crawler.RankedBook, 0, len(items))
	for _, item := range items {
		var id int64
		switch v := item.(type) {
		case map[string]any:
			id = intField(v, novelIDKeys)
		default:
			id = coerceInt(v)
		}
		if id <= 0 {
			continue
		}
		books = append(books, crawler.RankedBook{
			Position: len(books) + 1,
			NovelID:  id,
		})
	}
	return books
}

// firstSlice returns the first non-empty array found under the candidate
// keys, descending through one level of object nesting (the source
// sometimes wraps the array in a sibling object under the same names).
func firstSlice(m map[string]any, keys []string) []any {
	for _, key := range keys {
		switch v := m[key].(type) {
		case []any:
			if len(v) > 0 {
				return v
			}
		case map[string]any:
			if nested := firstSlice(v, keys); nested != nil {
				return nested
			}
		}
	}
	return nil
}

func stringField(m map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func intField(m map[string]any, keys []string) int64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if n := coerceInt(v); n != 0 {
				return n
			}
		}
	}
	return 0
}

// coerceInt accepts the number representations the source actually emits:
// JSON numbers, plain digit strings, and digit strings with grouping.
func coerceInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	case fmt.Stringer:
		parsed, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
