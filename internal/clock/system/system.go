// Package system provides a real clock implementation.
package system

import (
	"time"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

var _ crawler.Clock = Clock{}

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stamp returns the current time rendered in the listing's timestamp layout.
func (c Clock) Stamp() string {
	return timestamp.Format(c.Now())
}
