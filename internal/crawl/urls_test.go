package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLs(t *testing.T) {
	t.Parallel()

	urls := URLs{Base: "https://app.jjwxc.net"}
	require.Equal(t,
		"https://app.jjwxc.net/bookstore/getFullPageV1?channel=yq&version=20",
		urls.PageListing("yq"))
	require.Equal(t,
		"https://app.jjwxc.net/androidapi/novelbasicinfo?novelId=12345",
		urls.BookDetail(12345))
}
