package collyfetcher

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
)

// missingTimestamp stands in for a row without a datetime attribute. It never
// parses, so the engine rejects the page it came from.
const missingTimestamp = "nan"

// ErrBadPagination reports a pagination block whose last-page entry is not a
// number. ParseListing still returns the rows it found alongside it.
var ErrBadPagination = errors.New("pagination entry is not a page number")

// ParseListing extracts the played rows and the pagination summary from one
// listing page. Rows keep page order, newest first. LastPage is 0 when the
// page carries no pagination. An unreadable last-page entry yields the rows
// together with ErrBadPagination.
func ParseListing(r io.Reader) (crawler.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("read html: %w", err)
	}

	var listing crawler.Listing
	doc.Find("li.list-group-item").Each(func(_ int, item *goquery.Selection) {
		stamp, ok := item.Find("time").First().Attr("datetime")
		if !ok {
			stamp = missingTimestamp
		}
		listing.Rows = append(listing.Rows, crawler.Row{
			Timestamp: strings.TrimSpace(stamp),
			Title:     strings.TrimSpace(item.Find("span").First().Text()),
		})
	})
	if len(listing.Rows) > 0 {
		listing.Newest = listing.Rows[0].Timestamp
	}

	items := doc.Find("ul.pagination").First().Children().Filter("li")
	if n := items.Length(); n >= 2 {
		text := strings.TrimSpace(items.Eq(n - 2).Text())
		last, err := strconv.Atoi(text)
		if err != nil {
			return listing, fmt.Errorf("%w: %q: %v", ErrBadPagination, text, err)
		}
		listing.LastPage = last
	}
	return listing, nil
}
