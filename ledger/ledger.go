// Package ledger is an in-process execution host for the registry.
//
// It provides the guarantees the registry core assumes of its host: an
// invocation runs against a private copy of every account it touches and
// those copies replace the committed state only if the invocation succeeds
// and leaves every allocated account funded for its size. Invocations are
// serialized. The ledger optionally reads through to, and writes back to, a
// slotstore.Store so that state survives the process.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/slotstore"
	"github.com/google/uuid"
)

var (
	ErrLedgerClosed = errors.New("the invocation has already finished")
)

type committed struct {
	account *host.Account
	etag    string
}

type Ledger struct {
	mu       sync.Mutex
	log      logger.Logger
	rent     host.Rent
	store    slotstore.Store
	accounts map[keys.Key]*committed
}

type Option func(*Ledger)

func WithRent(r host.Rent) Option {
	return func(l *Ledger) {
		l.rent = r
	}
}

// WithStore makes the ledger durable: accounts not yet in memory are read from
// store, committed changes are written back to it.
func WithStore(store slotstore.Store) Option {
	return func(l *Ledger) {
		l.store = store
	}
}

func New(log logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		log:      log,
		rent:     host.DefaultRent(),
		accounts: make(map[keys.Key]*committed),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) Rent() host.Rent { return l.rent }

// Invoke runs fn as a single atomic invocation. signers are the keys that
// signed it. Either every account mutation fn makes is committed or, if fn
// fails or leaves an account under funded, none is.
func (l *Ledger) Invoke(ctx context.Context, signers []keys.Key, fn func(h host.Host) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &invocation{
		ctx:     ctx,
		id:      uuid.New(),
		ledger:  l,
		signers: signers,
		touched: make(map[keys.Key]*host.Account),
		base:    make(map[keys.Key]*committed),
	}
	defer func() { tx.done = true }()

	if err := fn(tx); err != nil {
		l.log.Infof("invocation %s aborted: %v", tx.id, err)
		return err
	}
	if err := tx.checkRent(); err != nil {
		l.log.Infof("invocation %s aborted: %v", tx.id, err)
		return err
	}
	if err := l.commit(ctx, tx); err != nil {
		l.log.Infof("invocation %s commit failed: %v", tx.id, err)
		return err
	}
	l.log.Debugf("invocation %s committed %d accounts", tx.id, len(tx.touched))
	return nil
}

// Snapshot returns a copy of the committed account for key. Unknown keys
// yield an unallocated account.
func (l *Ledger) Snapshot(ctx context.Context, key keys.Key) (*host.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.account.Clone(), nil
}

// Keys returns every committed account key known to the ledger, including
// those only present in the backing store.
func (l *Ledger) Keys(ctx context.Context) ([]keys.Key, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := make(map[keys.Key]bool, len(l.accounts))
	for k := range l.accounts {
		found[k] = true
	}
	if l.store != nil {
		stored, err := l.store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range stored {
			found[k] = true
		}
	}
	all := make([]keys.Key, 0, len(found))
	for k := range found {
		all = append(all, k)
	}
	slices.SortFunc(all, func(a, b keys.Key) int { return bytes.Compare(a[:], b[:]) })
	return all, nil
}

// Airdrop credits lamports to key. It is a host administration primitive,
// not something the registry itself can do.
func (l *Ledger) Airdrop(ctx context.Context, key keys.Key, lamports uint64) error {
	return l.Invoke(ctx, nil, func(h host.Host) error {
		a, err := h.Load(key)
		if err != nil {
			return err
		}
		a.Balance += lamports
		return nil
	})
}

// Deploy installs key as an executable program owned by the upgradeable
// loader, funded for its size.
func (l *Ledger) Deploy(ctx context.Context, key keys.Key, code []byte) error {
	return l.Invoke(ctx, nil, func(h host.Host) error {
		a, err := h.Load(key)
		if err != nil {
			return err
		}
		if a.Allocated() {
			return fmt.Errorf("%w: %s", host.ErrAccountExists, key)
		}
		a.Owner = keys.UpgradeableLoader
		a.Executable = true
		a.Data = append([]byte(nil), code...)
		if need := l.rent.MinimumBalance(len(a.Data)); a.Balance < need {
			a.Balance = need
		}
		return nil
	})
}

// get returns the committed state for key, reading through to the store.
// Callers hold l.mu.
func (l *Ledger) get(ctx context.Context, key keys.Key) (*committed, error) {
	if c, ok := l.accounts[key]; ok {
		return c, nil
	}
	if l.store != nil {
		a, etag, err := l.store.Read(ctx, key)
		if err == nil {
			c := &committed{account: a, etag: etag}
			l.accounts[key] = c
			return c, nil
		}
		if !errors.Is(err, slotstore.ErrNotFound) {
			return nil, err
		}
	}
	return &committed{account: &host.Account{Key: key}}, nil
}

func (l *Ledger) commit(ctx context.Context, tx *invocation) error {
	type write struct {
		account *host.Account
		etag    string
	}
	var writes []write
	for k, a := range tx.touched {
		base := tx.base[k]
		if sameAccount(base.account, a) {
			continue
		}
		stored := a.Clone()
		stored.Signer = false
		writes = append(writes, write{account: stored, etag: base.etag})
	}

	// Write through first so a store failure leaves memory untouched. A
	// failure part way through a multi account write can leave the store
	// ahead of memory; the next read of those accounts sees the etag change.
	for i, w := range writes {
		if l.store == nil {
			continue
		}
		etag, err := l.store.Write(ctx, w.account, w.etag)
		if err != nil {
			return err
		}
		writes[i].etag = etag
	}
	for _, w := range writes {
		l.accounts[w.account.Key] = &committed{account: w.account, etag: w.etag}
	}
	return nil
}

func sameAccount(a, b *host.Account) bool {
	return a.Owner == b.Owner &&
		a.Balance == b.Balance &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}
