package crawl

import "fmt"

// URLs builds the source site's JSON endpoints. The base URL comes from
// configuration so staging mirrors and test servers can stand in for the
// live site.
type URLs struct {
	Base string
}

// PageListing returns the ranking-listing endpoint for a channel.
func (u URLs) PageListing(channel string) string {
	return fmt.Sprintf("%s/bookstore/getFullPageV1?channel=%s&version=20", u.Base, channel)
}

// BookDetail returns the book-detail endpoint for a novel.
func (u URLs) BookDetail(novelID int64) string {
	return fmt.Sprintf("%s/androidapi/novelbasicinfo?novelId=%d", u.Base, novelID)
}
