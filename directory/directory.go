// Package directory answers read-only questions about a deployed registry:
// which page holds a name, where a program is registered, what is listed.
//
// A Directory is a point in time view. Loading it decodes every page once to
// build a bloom filter per page, then keeps only the raw page bytes. Lookups
// decode just the pages whose filter admits the query. The registry's write
// path never consults these filters.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/bloom"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/paging"
	"github.com/forestrie/go-programregistry/processor"
	"github.com/forestrie/go-programregistry/records"
	"github.com/forestrie/go-programregistry/registry"
)

const (
	DefaultBitsPerElement = 10
	DefaultK              = 7
)

var (
	ErrNotInitialized = errors.New("the registry has no config slot")
)

type Kind string

const (
	KindProgram     Kind = "program"
	KindMarketplace Kind = "marketplace"
)

// AccountReader is satisfied by ledger.Ledger.
type AccountReader interface {
	Snapshot(ctx context.Context, key keys.Key) (*host.Account, error)
}

type Location struct {
	Kind  Kind
	Page  uint32
	Index int
}

type Entry struct {
	Location
	Key keys.Key
}

type page struct {
	data   []byte
	filter []byte
}

type Directory struct {
	log    logger.Logger
	params processor.Params
	count  uint32

	programs    []page
	marketplace []page
	names       []page
}

// Load reads the config slot and every page it implies through r.
func Load(ctx context.Context, log logger.Logger, r AccountReader, params processor.Params) (*Directory, error) {
	config, err := r.Snapshot(ctx, params.ConfigKey())
	if err != nil {
		return nil, err
	}
	if !config.Allocated() {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, config.Key)
	}
	counter, err := records.DecodeCounter(config.Data)
	if err != nil {
		log.Infof("Error @ config decode: %v", err)
		return nil, err
	}

	d := &Directory{log: log, params: params, count: counter.Count}

	lastProgram := paging.PageIndex(counter.Count, params.ProgramsPerPage)
	for i := range lastProgram + 1 {
		p, err := loadPage(ctx, r, params.ProgramPageKey(i), programElems(records.DecodeProgramPage))
		if err != nil {
			log.Infof("Error @ program page %d: %v", i, err)
			return nil, err
		}
		d.programs = append(d.programs, p)

		p, err = loadPage(ctx, r, params.MarketplacePageKey(i), programElems(decodeMarketplace))
		if err != nil {
			log.Infof("Error @ marketplace page %d: %v", i, err)
			return nil, err
		}
		d.marketplace = append(d.marketplace, p)
	}
	for i := range paging.PageIndex(counter.Count, params.NamesPerPage) + 1 {
		p, err := loadPage(ctx, r, params.NamePageKey(i), nameElems)
		if err != nil {
			log.Infof("Error @ name page %d: %v", i, err)
			return nil, err
		}
		d.names = append(d.names, p)
	}
	log.Debugf("directory loaded: count %d, %d program pages, %d name pages", d.count, len(d.programs), len(d.names))
	return d, nil
}

// Count is the counter value the directory was loaded at.
func (d *Directory) Count() uint32 { return d.count }

// NameCandidates returns the name pages whose filter admits name.
func (d *Directory) NameCandidates(name string) ([]uint32, error) {
	return candidates(d.names, []byte(name))
}

// LookupName returns the page holding raw, after normalization.
func (d *Directory) LookupName(raw string) (uint32, bool, error) {
	name, err := registry.ValidateName(raw)
	if err != nil {
		return 0, false, err
	}
	pages, err := d.NameCandidates(name)
	if err != nil {
		return 0, false, err
	}
	for _, i := range pages {
		np, err := records.DecodeNamePage(d.names[i].data)
		if err != nil {
			return 0, false, err
		}
		if np.Contains(name) {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// FindProgram returns where key is registered, searching program pages then
// marketplace pages.
func (d *Directory) FindProgram(key keys.Key) (Location, bool, error) {
	kinds := []struct {
		kind   Kind
		pages  []page
		decode func([]byte) (records.ProgramPage, error)
	}{
		{KindProgram, d.programs, records.DecodeProgramPage},
		{KindMarketplace, d.marketplace, decodeMarketplace},
	}
	for _, k := range kinds {
		pages, err := candidates(k.pages, key[:])
		if err != nil {
			return Location{}, false, err
		}
		for _, i := range pages {
			pp, err := k.decode(k.pages[i].data)
			if err != nil {
				return Location{}, false, err
			}
			if at := pp.Index(key); at >= 0 {
				return Location{Kind: k.kind, Page: i, Index: at}, true, nil
			}
		}
	}
	return Location{}, false, nil
}

// Programs lists every registered key, program pages first.
func (d *Directory) Programs() ([]Entry, error) {
	var entries []Entry
	add := func(kind Kind, pages []page, decode func([]byte) (records.ProgramPage, error)) error {
		for i, p := range pages {
			if p.data == nil {
				continue
			}
			pp, err := decode(p.data)
			if err != nil {
				return err
			}
			for j := range pp.Len() {
				entries = append(entries, Entry{
					Location: Location{Kind: kind, Page: uint32(i), Index: j},
					Key:      pp.At(j),
				})
			}
		}
		return nil
	}
	if err := add(KindProgram, d.programs, records.DecodeProgramPage); err != nil {
		return nil, err
	}
	if err := add(KindMarketplace, d.marketplace, decodeMarketplace); err != nil {
		return nil, err
	}
	return entries, nil
}

// Names lists every registered name, page by page.
func (d *Directory) Names() ([]string, error) {
	var names []string
	for _, p := range d.names {
		if p.data == nil {
			continue
		}
		np, err := records.DecodeNamePage(p.data)
		if err != nil {
			return nil, err
		}
		names = append(names, np.Names()...)
	}
	return names, nil
}

func decodeMarketplace(data []byte) (records.ProgramPage, error) {
	return records.DecodeMarketplacePage(data)
}

func programElems(decode func([]byte) (records.ProgramPage, error)) func([]byte) ([][]byte, error) {
	return func(data []byte) ([][]byte, error) {
		pp, err := decode(data)
		if err != nil {
			return nil, err
		}
		elems := make([][]byte, pp.Len())
		for i := range elems {
			k := pp.At(i)
			elems[i] = k[:]
		}
		return elems, nil
	}
}

func nameElems(data []byte) ([][]byte, error) {
	np, err := records.DecodeNamePage(data)
	if err != nil {
		return nil, err
	}
	var elems [][]byte
	for _, name := range np.Names() {
		elems = append(elems, []byte(name))
	}
	return elems, nil
}

// loadPage reads one page and builds its filter. Pages that were never
// created have neither data nor filter.
func loadPage(ctx context.Context, r AccountReader, key keys.Key, elems func([]byte) ([][]byte, error)) (page, error) {
	a, err := r.Snapshot(ctx, key)
	if err != nil {
		return page{}, err
	}
	if !a.Allocated() {
		return page{}, nil
	}
	es, err := elems(a.Data)
	if err != nil {
		return page{}, err
	}
	filter, err := bloom.NewV1(uint64(max(len(es), 1)), DefaultBitsPerElement, DefaultK)
	if err != nil {
		return page{}, err
	}
	for _, e := range es {
		if err = bloom.InsertV1(filter, e); err != nil {
			return page{}, err
		}
	}
	return page{data: a.Data, filter: filter}, nil
}

func candidates(pages []page, elem []byte) ([]uint32, error) {
	var found []uint32
	for i, p := range pages {
		if p.filter == nil {
			continue
		}
		ok, err := bloom.MaybeContainsV1(p.filter, elem)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, uint32(i))
		}
	}
	return found, nil
}
