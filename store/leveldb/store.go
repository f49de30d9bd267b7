// Package leveldb provides an embedded, persistent Store on goleveldb.
//
// Every changeset is written as a single leveldb batch, so a commit either
// lands completely or not at all, including across process crashes.
package leveldb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	jsoniter "github.com/json-iterator/go"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/vault"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ store.Store = (*Store)(nil)

const (
	// minCache is the minimum amount of memory in megabytes to allocate to
	// leveldb read and write caching, split half and half.
	minCache = 16

	// minHandles is the minimum number of file handles for the open database.
	minHandles = 16
)

// Key layout. Ids are big-endian so iteration follows id order.
var (
	prefixManager      = []byte("m/")
	prefixNote         = []byte("n/")
	prefixPayment      = []byte("p/")
	prefixPaymentOrder = []byte("q/")

	keyManagerCount = []byte("meta/managers")
	keyNoteCount    = []byte("meta/notes")
	keyPaymentCount = []byte("meta/payments")
)

type Store struct {
	mu     sync.Mutex
	db     *goleveldb.DB
	path   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*config)

type config struct {
	cache   int
	handles int
	logger  *slog.Logger
}

// WithCache sets the cache size in megabytes.
func WithCache(mb int) Option { return func(c *config) { c.cache = mb } }

// WithHandles sets the number of open file handles.
func WithHandles(n int) Option { return func(c *config) { c.handles = n } }

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return func(c *config) { c.logger = logger } }

// New opens (or creates) a database at path.
func New(path string, opts ...Option) (*Store, error) {
	cfg := &config{logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	cfg.cache = max(cfg.cache, minCache)
	cfg.handles = max(cfg.handles, minHandles)

	options := &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		DisableSeeksCompaction: true,
		OpenFilesCacheCapacity: cfg.handles,
		BlockCacheCapacity:     cfg.cache / 2 * opt.MiB,
		WriteBuffer:            cfg.cache / 4 * opt.MiB,
	}

	db, err := goleveldb.OpenFile(path, options)
	if dberrors.IsCorrupted(err) {
		cfg.logger.Warn("leveldb corrupted, recovering", "path", path)
		db, err = goleveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("pledge/leveldb: open %s: %w", path, err)
	}

	cfg.logger.Info("leveldb store opened",
		"path", path,
		"cache_mb", cfg.cache,
		"handles", cfg.handles,
	)
	return &Store{db: db, path: path, logger: cfg.logger}, nil
}

// NewMem returns a Store on volatile in-memory storage.
func NewMem() (*Store, error) {
	db, err := goleveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("pledge/leveldb: open memory storage: %w", err)
	}
	return &Store{db: db, path: ":memory:", logger: slog.Default()}, nil
}

// Path returns the database directory.
func (s *Store) Path() string { return s.path }

func idKey(prefix []byte, v uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], v)
	return k
}

func paymentKey(paymentID id.PaymentID) []byte {
	return append(append([]byte{}, prefixPayment...), paymentID.String()...)
}

func (s *Store) counter(key []byte) (uint64, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, goleveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrap(err)
	}
	return binary.BigEndian.Uint64(v), nil
}

func counterValue(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *Store) wrap(err error) error {
	if errors.Is(err, goleveldb.ErrClosed) {
		return pledge.ErrStoreClosed
	}
	return fmt.Errorf("pledge/leveldb: %w", err)
}

func (s *Store) get(key []byte, v any, notFound error) error {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, goleveldb.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return s.wrap(err)
	}
	return json.Unmarshal(data, v)
}

// scan decodes every value under prefix, in key order, through decode.
func (s *Store) scan(prefix []byte, decode func(value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := decode(iter.Value()); err != nil {
			return err
		}
	}
	return s.iterErr(iter.Error())
}

func (s *Store) iterErr(err error) error {
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// Manager Store implementation
func (s *Store) GetManager(_ context.Context, managerID manager.ID) (*manager.Manager, error) {
	m := new(manager.Manager)
	if err := s.get(idKey(prefixManager, uint64(managerID)), m,
		fmt.Errorf("%w: %d", pledge.ErrManagerNotFound, managerID)); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListManagers(_ context.Context, opts manager.ListOpts) ([]*manager.Manager, error) {
	result := make([]*manager.Manager, 0)
	err := s.scan(prefixManager, func(value []byte) error {
		m := new(manager.Manager)
		if err := json.Unmarshal(value, m); err != nil {
			return err
		}
		if opts.Match(m) {
			result = append(result, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lo, hi := store.Window(len(result), opts.Offset, opts.Limit)
	return result[lo:hi], nil
}

func (s *Store) CountManagers(_ context.Context) (uint64, error) {
	return s.counter(keyManagerCount)
}

// Note Store implementation
func (s *Store) GetNote(_ context.Context, noteID note.ID) (*note.Note, error) {
	n := new(note.Note)
	if err := s.get(idKey(prefixNote, uint64(noteID)), n,
		fmt.Errorf("%w: %d", pledge.ErrNoteNotFound, noteID)); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) ListNotes(_ context.Context, opts note.ListOpts) ([]*note.Note, error) {
	result := make([]*note.Note, 0)
	err := s.scan(prefixNote, func(value []byte) error {
		n := new(note.Note)
		if err := json.Unmarshal(value, n); err != nil {
			return err
		}
		if opts.Match(n) {
			result = append(result, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lo, hi := store.Window(len(result), opts.Offset, opts.Limit)
	return result[lo:hi], nil
}

func (s *Store) CountNotes(_ context.Context) (uint64, error) {
	return s.counter(keyNoteCount)
}

// Payment Store implementation
func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*vault.Payment, error) {
	p := new(vault.Payment)
	if err := s.get(paymentKey(paymentID), p,
		fmt.Errorf("%w: %s", pledge.ErrPaymentNotFound, paymentID)); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPayments walks the authorization-order index.
func (s *Store) ListPayments(ctx context.Context, opts vault.ListOpts) ([]*vault.Payment, error) {
	keys := make([]string, 0)
	err := s.scan(prefixPaymentOrder, func(value []byte) error {
		keys = append(keys, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]*vault.Payment, 0, len(keys))
	for _, k := range keys {
		paymentID, err := id.ParsePaymentID(k)
		if err != nil {
			return nil, fmt.Errorf("pledge/leveldb: payment index: %w", err)
		}
		p, err := s.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if opts.Match(p) {
			result = append(result, p)
		}
	}

	lo, hi := store.Window(len(result), opts.Offset, opts.Limit)
	return result[lo:hi], nil
}

// Commit stages the changeset into one batch after validating it against
// the stored counters.
func (s *Store) Commit(_ context.Context, cs *store.Changeset) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	managers, err := s.counter(keyManagerCount)
	if err != nil {
		return err
	}
	notes, err := s.counter(keyNoteCount)
	if err != nil {
		return err
	}
	payments, err := s.counter(keyPaymentCount)
	if err != nil {
		return err
	}
	if err := cs.CheckSequence(managers, notes); err != nil {
		return err
	}

	batch := new(goleveldb.Batch)
	put := func(key []byte, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		batch.Put(key, data)
		return nil
	}

	managerTotal := managers + uint64(len(cs.CreatedManagers))
	for _, m := range cs.UpdatedManagers {
		if m.ID == manager.None || uint64(m.ID) > managerTotal {
			return fmt.Errorf("%w: %d", pledge.ErrManagerNotFound, m.ID)
		}
	}
	noteTotal := notes + uint64(len(cs.CreatedNotes))
	for _, n := range cs.UpdatedNotes {
		if n.ID == note.None || uint64(n.ID) > noteTotal {
			return fmt.Errorf("%w: %d", pledge.ErrNoteNotFound, n.ID)
		}
	}

	for _, m := range append(append([]*manager.Manager{}, cs.CreatedManagers...), cs.UpdatedManagers...) {
		if err := put(idKey(prefixManager, uint64(m.ID)), m); err != nil {
			return err
		}
	}
	for _, n := range append(append([]*note.Note{}, cs.CreatedNotes...), cs.UpdatedNotes...) {
		if err := put(idKey(prefixNote, uint64(n.ID)), n); err != nil {
			return err
		}
	}
	for i, p := range cs.CreatedPayments {
		exists, err := s.db.Has(paymentKey(p.ID), nil)
		if err != nil {
			return s.wrap(err)
		}
		if exists {
			return fmt.Errorf("%w: payment %s exists", pledge.ErrConflict, p.ID)
		}
		if err := put(paymentKey(p.ID), p); err != nil {
			return err
		}
		batch.Put(idKey(prefixPaymentOrder, payments+uint64(i)+1), []byte(p.ID.String()))
	}
	for _, p := range cs.UpdatedPayments {
		exists, err := s.db.Has(paymentKey(p.ID), nil)
		if err != nil {
			return s.wrap(err)
		}
		if !exists && !cs.CreatesPayment(p.ID) {
			return fmt.Errorf("%w: %s", pledge.ErrPaymentNotFound, p.ID)
		}
		if err := put(paymentKey(p.ID), p); err != nil {
			return err
		}
	}

	batch.Put(keyManagerCount, counterValue(managerTotal))
	batch.Put(keyNoteCount, counterValue(noteTotal))
	batch.Put(keyPaymentCount, counterValue(payments+uint64(len(cs.CreatedPayments))))

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return s.wrap(err)
	}

	s.logger.Debug("leveldb commit",
		"records", cs.Len(),
		"batch_bytes", len(batch.Dump()),
	)
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	if _, err := s.db.GetProperty("leveldb.stats"); err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
