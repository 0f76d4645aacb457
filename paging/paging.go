// Package paging maps the registry's global counter onto fixed capacity
// pages.
//
// The page an entry lands on is never inferred from page content. It is
// always computed from the counter, so the same counter value names the same
// page on every call.
package paging

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-programregistry/records"
)

var (
	ErrPageCapacityExceeded = errors.New("the page is already at capacity")
	ErrCapacityNotValid     = errors.New("page capacity must be greater than zero")
)

// PageIndex returns the page the entry with ordinal counter belongs on.
func PageIndex(counter, capacity uint32) uint32 {
	return counter / capacity
}

// IsPageBoundary is true when the next entry starts a page that may not exist
// yet.
func IsPageBoundary(counter, capacity uint32) bool {
	return counter%capacity == 0
}

// CheckAppend returns ErrPageCapacityExceeded if a page currently holding
// length entries can not take one more.
func CheckAppend(length int, capacity uint32) error {
	if length >= int(capacity) {
		return fmt.Errorf("%w: %d of %d", ErrPageCapacityExceeded, length, capacity)
	}
	return nil
}

// ResetFloor rounds counter down to the first entry of its page.
func ResetFloor(counter, capacity uint32) uint32 {
	return counter - counter%capacity
}

// PagesSpanned counts the pages holding entries from through to-1. It is zero
// when to is not past from.
func PagesSpanned(from, to, capacity uint32) uint32 {
	if to <= from {
		return 0
	}
	return PageIndex(to-1, capacity) - PageIndex(from, capacity) + 1
}

// Engine applies a page capacity to an injected counter. It holds no counter
// state of its own.
type Engine struct {
	Capacity uint32
}

func NewEngine(capacity uint32) (Engine, error) {
	if capacity == 0 {
		return Engine{}, ErrCapacityNotValid
	}
	return Engine{Capacity: capacity}, nil
}

// Target returns the page the next entry goes to, and whether that entry is
// the first on its page.
func (e Engine) Target(c *records.GlobalCounter) (uint32, bool) {
	return PageIndex(c.Count, e.Capacity), IsPageBoundary(c.Count, e.Capacity)
}

// CheckAppend re-verifies the capacity ceiling for a page holding length
// entries.
func (e Engine) CheckAppend(length int) error {
	return CheckAppend(length, e.Capacity)
}

// Floor is the counter value a page aligned reset returns to.
func (e Engine) Floor(c *records.GlobalCounter) uint32 {
	return ResetFloor(c.Count, e.Capacity)
}

// Advance records one more entry.
func (e Engine) Advance(c *records.GlobalCounter) {
	c.Count++
}
