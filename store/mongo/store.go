package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	pledgestore "github.com/xraph/pledge/store"
	"github.com/xraph/pledge/vault"
)

// Collection name constants.
const (
	colManagers = "pledge_managers"
	colNotes    = "pledge_notes"
	colPayments = "pledge_payments"
)

// compile-time interface check
var _ pledgestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all pledge collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("pledge/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Manager Store ====================

func (s *Store) GetManager(ctx context.Context, managerID manager.ID) (*manager.Manager, error) {
	var m managerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(managerID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %d", pledge.ErrManagerNotFound, managerID)
		}
		return nil, fmt.Errorf("pledge/mongo: get manager: %w", err)
	}
	return fromManagerModel(&m), nil
}

func (s *Store) ListManagers(ctx context.Context, opts manager.ListOpts) ([]*manager.Manager, error) {
	var models []managerModel

	filter := bson.M{}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("pledge/mongo: list managers: %w", err)
	}

	result := make([]*manager.Manager, len(models))
	for i := range models {
		result[i] = fromManagerModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountManagers(ctx context.Context) (uint64, error) {
	return s.count(ctx, colManagers)
}

// ==================== Note Store ====================

func (s *Store) GetNote(ctx context.Context, noteID note.ID) (*note.Note, error) {
	var m noteModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(noteID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %d", pledge.ErrNoteNotFound, noteID)
		}
		return nil, fmt.Errorf("pledge/mongo: get note: %w", err)
	}
	return fromNoteModel(&m)
}

func (s *Store) ListNotes(ctx context.Context, opts note.ListOpts) ([]*note.Note, error) {
	var models []noteModel

	filter := bson.M{}
	if opts.Owner != manager.None {
		filter["owner"] = int64(opts.Owner)
	}
	if opts.PaymentState != "" {
		filter["payment_state"] = string(opts.PaymentState)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("pledge/mongo: list notes: %w", err)
	}

	result := make([]*note.Note, len(models))
	for i := range models {
		n, err := fromNoteModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = n
	}
	return result, nil
}

func (s *Store) CountNotes(ctx context.Context) (uint64, error) {
	return s.count(ctx, colNotes)
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*vault.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": paymentID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", pledge.ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("pledge/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, opts vault.ListOpts) ([]*vault.Payment, error) {
	var models []paymentModel

	filter := bson.M{}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}
	if opts.Owner != manager.None {
		filter["owner"] = int64(opts.Owner)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("pledge/mongo: list payments: %w", err)
	}

	result := make([]*vault.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Commit ====================

// Commit applies the changeset inside a session transaction, counting the
// id sequences within the same transaction. Transactions need a replica set
// or sharded cluster.
func (s *Store) Commit(ctx context.Context, cs *pledgestore.Changeset) error {
	if cs.Empty() {
		return nil
	}

	started, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("pledge/mongo: begin: %w", err)
	}
	tx, ok := started.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("pledge/mongo: begin: unexpected transaction %T", started)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback() //nolint:errcheck // abort after a failed write
		}
	}()

	if err := s.applyChangeset(tx.SessionContext(ctx), tx, cs); err != nil {
		return err
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pledge/mongo: commit: %w", err)
	}
	return nil
}

func (s *Store) applyChangeset(ctx context.Context, tx *mongodriver.MongoTx, cs *pledgestore.Changeset) error {
	managers, err := s.count(ctx, colManagers)
	if err != nil {
		return err
	}
	notes, err := s.count(ctx, colNotes)
	if err != nil {
		return err
	}
	if err := cs.CheckSequence(managers, notes); err != nil {
		return err
	}

	for _, m := range cs.CreatedManagers {
		if _, err := tx.NewInsert(toManagerModel(m)).Exec(ctx); err != nil {
			return fmt.Errorf("pledge/mongo: insert manager %d: %w", m.ID, err)
		}
	}
	for _, m := range cs.UpdatedManagers {
		model := toManagerModel(m)
		if err := update(ctx, tx.NewUpdate(model), model.ID, pledge.ErrManagerNotFound); err != nil {
			return err
		}
	}
	for _, n := range cs.CreatedNotes {
		model, err := toNoteModel(n)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert(model).Exec(ctx); err != nil {
			return fmt.Errorf("pledge/mongo: insert note %d: %w", n.ID, err)
		}
	}
	for _, n := range cs.UpdatedNotes {
		model, err := toNoteModel(n)
		if err != nil {
			return err
		}
		if err := update(ctx, tx.NewUpdate(model), model.ID, pledge.ErrNoteNotFound); err != nil {
			return err
		}
	}
	for _, p := range cs.CreatedPayments {
		model, err := toPaymentModel(p)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert(model).Exec(ctx); err != nil {
			return fmt.Errorf("%w: insert payment %s: %w", pledge.ErrConflict, p.ID, err)
		}
	}
	for _, p := range cs.UpdatedPayments {
		model, err := toPaymentModel(p)
		if err != nil {
			return err
		}
		if err := update(ctx, tx.NewUpdate(model), model.ID, pledge.ErrPaymentNotFound); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Helpers ====================

func update(ctx context.Context, q *mongodriver.UpdateQuery, key any, notFound error) error {
	res, err := q.Filter(bson.M{"_id": key}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("pledge/mongo: update: %w", err)
	}
	if res.MatchedCount() == 0 {
		return notFound
	}
	return nil
}

func (s *Store) count(ctx context.Context, col string) (uint64, error) {
	n, err := s.mdb.Collection(col).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("pledge/mongo: count %s: %w", col, err)
	}
	return uint64(n), nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all pledge collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colManagers: {
			{Keys: bson.D{{Key: "kind", Value: 1}}},
			{Keys: bson.D{{Key: "address", Value: 1}}},
		},
		colNotes: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "payment_state", Value: 1}}},
			{Keys: bson.D{{Key: "old_note", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}}},
			{
				Keys:    bson.D{{Key: "note_id", Value: 1}, {Key: "created_at", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
