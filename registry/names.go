package registry

import (
	"fmt"
	"strings"

	"github.com/forestrie/go-programregistry/paging"
	"github.com/forestrie/go-programregistry/records"
)

// Normalize keeps the ASCII letters and digits of raw, lower cased.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, raw)
}

// ValidateName normalizes raw and checks the result fits a name slot.
func ValidateName(raw string) (string, error) {
	name := Normalize(raw)
	if len(name) == 0 || len(name) > records.MaxNameLength {
		return "", fmt.Errorf("%w: %q normalizes to %q", ErrInvalidNameLength, raw, name)
	}
	return name, nil
}

// FindName returns the index of the first page, oldest first, holding name.
func FindName(pages []records.NamePage, name string) (int, bool) {
	for i, p := range pages {
		if p.Contains(name) {
			return i, true
		}
	}
	return 0, false
}

// CheckName validates raw and requires that no page holds it yet. It is the
// part of AddName that can run before any slot is allocated.
func CheckName(raw string, pages []records.NamePage) (string, error) {
	name, err := ValidateName(raw)
	if err != nil {
		return "", err
	}
	if i, ok := FindName(pages, name); ok {
		return "", fmt.Errorf("%w: %q on name page %d", ErrDuplicateName, name, i)
	}
	return name, nil
}

// AddName registers raw, normalized, on the last of pages. Every page is
// searched first: a name is unique across the whole lineage, not just its
// page. Earlier pages are never written.
func AddName(raw string, pages []records.NamePage, capacity uint32) (string, error) {
	if len(pages) == 0 {
		return "", ErrNoNamePage
	}
	name, err := CheckName(raw, pages)
	if err != nil {
		return "", err
	}
	current := pages[len(pages)-1]
	if err := paging.CheckAppend(current.Len(), capacity); err != nil {
		return "", err
	}
	if err := current.Insert(name); err != nil {
		return "", err
	}
	return name, nil
}
