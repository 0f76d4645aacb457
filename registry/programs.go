// Package registry holds the pure mutations of the registry's pages: adding
// and removing program keys, and adding globally unique names. Nothing here
// touches a slot; callers decode, mutate and re-encode.
package registry

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/paging"
	"github.com/forestrie/go-programregistry/records"
)

var (
	ErrDuplicateEntry    = errors.New("the program is already registered on this page")
	ErrNotFound          = errors.New("the program is not registered on this page")
	ErrDuplicateName     = errors.New("the name is already registered")
	ErrInvalidNameLength = errors.New("the normalized name must be between 1 and 12 characters")
	ErrNoNamePage        = errors.New("at least one name page is required")
)

// AddProgram appends key to page. Pages in a generation that supports cheap
// searching reject a key they already hold. The page is unchanged on error.
func AddProgram(page records.ProgramPage, key keys.Key, capacity uint32) error {
	if dc, ok := page.(records.DuplicateChecked); ok && dc.ChecksDuplicates() {
		if page.Index(key) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, key)
		}
	}
	if err := paging.CheckAppend(page.Len(), capacity); err != nil {
		return err
	}
	page.Append(key)
	return nil
}

// RemoveProgram removes key from page, keeping the order of the remaining
// entries.
func RemoveProgram(page records.ProgramPage, key keys.Key, capacity uint32) error {
	i := page.Index(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	page.RemoveAt(i)
	if page.Len() > int(capacity) {
		return fmt.Errorf("%w: %d of %d", paging.ErrPageCapacityExceeded, page.Len(), capacity)
	}
	return nil
}
