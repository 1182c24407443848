// Package continuation decides whether a crawled page has a next page worth
// dispatching as an independent task.
package continuation

import "github.com/JakeFAU/social-harvester/internal/crawler"

// Controller walks a target's result pages in PageSize strides.
type Controller struct {
	PageSize int
}

// New returns a Controller; non-positive sizes fall back to crawler.DefaultPageSize.
func New(pageSize int) Controller {
	if pageSize <= 0 {
		pageSize = crawler.DefaultPageSize
	}
	return Controller{PageSize: pageSize}
}

func (c Controller) size() int {
	if c.PageSize <= 0 {
		return crawler.DefaultPageSize
	}
	return c.PageSize
}

// Next returns the offset of the page after offset, or false when the
// target's page budget is spent. The returned offset never exceeds the
// offset of the last budgeted page, even when offset is off the page stride.
func (c Controller) Next(target crawler.CrawlTarget, offset int) (int, bool) {
	if target.PageCount <= 1 {
		return 0, false
	}
	last := (target.PageCount - 1) * c.size()
	next := offset + c.size()
	if offset < 0 || next > last {
		return 0, false
	}
	return next, true
}

// Offsets lists every offset a chain of pages visits, starting at 0.
func Offsets(pages, size int) []int {
	c := New(size)
	target := crawler.CrawlTarget{PageCount: pages}
	offsets := []int{0}
	for offset, ok := c.Next(target, 0); ok; offset, ok = c.Next(target, offset) {
		offsets = append(offsets, offset)
	}
	return offsets
}
