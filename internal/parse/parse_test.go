package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestRankingsCanonicalShape(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{
		"data": [
			{
				"rankid": "jiazi",
				"channelName": "夹子",
				"channel": "index",
				"data": [
					{"novelId": 111},
					{"novelId": 222}
				]
			}
		]
	}`)

	entries := Rankings(payload)
	require.Len(t, entries, 1)
	require.Equal(t, "jiazi", entries[0].RankID)
	require.Equal(t, "夹子", entries[0].Name)
	require.Equal(t, "index", entries[0].Channel)
	require.Equal(t, []crawler.RankedBook{
		{Position: 1, NovelID: 111},
		{Position: 2, NovelID: 222},
	}, entries[0].Books)
}

func TestRankingsAlternateKeys(t *testing.T) {
	t.Parallel()

	// The same page served under a different envelope: list instead of
	// data, numeric rank ids, book lists of bare string ids.
	payload := decode(t, `{
		"list": [
			{
				"rankId": 7,
				"name": "月榜",
				"type": "yq",
				"books": ["333", "4,096"]
			}
		]
	}`)

	entries := Rankings(payload)
	require.Len(t, entries, 1)
	require.Equal(t, "7", entries[0].RankID)
	require.Equal(t, "月榜", entries[0].Name)
	require.Equal(t, "yq", entries[0].Channel)
	require.Equal(t, []crawler.RankedBook{
		{Position: 1, NovelID: 333},
		{Position: 2, NovelID: 4096},
	}, entries[0].Books)
}

func TestRankingsNestedWrapper(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{
		"data": {
			"rankList": [
				{"rankid": "vip", "title": "VIP金榜", "items": [{"id": 55}]}
			]
		}
	}`)

	entries := Rankings(payload)
	require.Len(t, entries, 1)
	require.Equal(t, "vip", entries[0].RankID)
	require.Equal(t, "VIP金榜", entries[0].Name)
	require.Equal(t, []crawler.RankedBook{{Position: 1, NovelID: 55}}, entries[0].Books)
}

func TestRankingsSkipsBooksWithoutIdentifier(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{
		"data": [
			{
				"rankid": "r",
				"data": [
					{"novelId": 0},
					{"title": "no id"},
					{"novelId": 9}
				]
			}
		]
	}`)

	entries := Rankings(payload)
	require.Len(t, entries, 1)
	// Positions stay dense after skipping unusable rows.
	require.Equal(t, []crawler.RankedBook{{Position: 1, NovelID: 9}}, entries[0].Books)
}

func TestRankingsEmptyOrUnknownPayload(t *testing.T) {
	t.Parallel()

	require.Empty(t, Rankings(nil))
	require.Empty(t, Rankings(decode(t, `{}`)))
	require.Empty(t, Rankings(decode(t, `{"data": []}`)))
	require.Empty(t, Rankings(decode(t, `{"message": "系统维护中"}`)))
}

func TestBookCanonicalShape(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{
		"novelId": 123456,
		"novelName": "某本书",
		"authorId": "789",
		"authorName": "作者",
		"novelbefavoritedcount": "1,024",
		"novip_clicks": 50000,
		"monthClicks": 4000,
		"weekClicks": 900,
		"dayClicks": 120,
		"comment_count": 88,
		"nutrition_novel": 300,
		"weekNutrition": 30
	}`)

	detail, err := Book(payload)
	require.NoError(t, err)
	require.Equal(t, int64(123456), detail.NovelID)
	require.Equal(t, "某本书", detail.Title)
	require.Equal(t, int64(789), detail.AuthorID)
	require.Equal(t, "作者", detail.AuthorName)
	require.Equal(t, crawler.BookMetrics{
		Favorites:         1024,
		Clicks:            50000,
		ClicksMonthly:     4000,
		ClicksWeekly:      900,
		ClicksDaily:       120,
		Comments:          88,
		Nominations:       300,
		NominationsWeekly: 30,
	}, detail.Metrics)
}

func TestBookStringIdentifier(t *testing.T) {
	t.Parallel()

	detail, err := Book(decode(t, `{"novelid": "42", "novelname": "t"}`))
	require.NoError(t, err)
	require.Equal(t, int64(42), detail.NovelID)
	require.Equal(t, "t", detail.Title)
}

func TestBookMissingIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty payload", raw: `{}`},
		{name: "zero id", raw: `{"novelId": 0}`},
		{name: "negative id", raw: `{"novelId": -3}`},
		{name: "non-numeric id", raw: `{"novelId": "abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Book(decode(t, tt.raw))
			require.True(t, crawler.IsBusiness(err))
		})
	}
}

func TestBookMissingCountersDefaultToZero(t *testing.T) {
	t.Parallel()

	detail, err := Book(decode(t, `{"novelId": 7}`))
	require.NoError(t, err)
	require.Zero(t, detail.Metrics)
	require.Zero(t, detail.AuthorID)
	require.Empty(t, detail.AuthorName)
}

func TestCoerceInt(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(12), coerceInt(float64(12)))
	require.Equal(t, int64(12), coerceInt("12"))
	require.Equal(t, int64(1200000), coerceInt(" 1,200,000 "))
	require.Equal(t, int64(0), coerceInt("12.5"))
	require.Equal(t, int64(0), coerceInt(nil))
	require.Equal(t, int64(0), coerceInt([]any{}))
}
