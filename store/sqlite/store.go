package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	// Registers the migration executor used by Migrate.
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	pledgestore "github.com/xraph/pledge/store"
	"github.com/xraph/pledge/vault"
)

// compile-time interface check
var _ pledgestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("pledge/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("pledge/sqlite: migration failed: %w", err)
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
	m := new(managerModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(managerID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %d", pledge.ErrManagerNotFound, managerID)
		}
		return nil, err
	}
	return fromManagerModel(m), nil
}

func (s *Store) ListManagers(ctx context.Context, opts manager.ListOpts) ([]*manager.Manager, error) {
	var models []managerModel
	q := s.sdb.NewSelect(&models)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*manager.Manager, len(models))
	for i := range models {
		result[i] = fromManagerModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountManagers(ctx context.Context) (uint64, error) {
	return s.count(ctx, "pledge_managers")
}

// ==================== Note Store ====================

func (s *Store) GetNote(ctx context.Context, noteID note.ID) (*note.Note, error) {
	m := new(noteModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(noteID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %d", pledge.ErrNoteNotFound, noteID)
		}
		return nil, err
	}
	return fromNoteModel(m)
}

func (s *Store) ListNotes(ctx context.Context, opts note.ListOpts) ([]*note.Note, error) {
	var models []noteModel
	q := s.sdb.NewSelect(&models)

	if opts.Owner != manager.None {
		q = q.Where("owner = ?", int64(opts.Owner))
	}
	if opts.PaymentState != "" {
		q = q.Where("payment_state = ?", string(opts.PaymentState))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	return s.count(ctx, "pledge_notes")
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*vault.Payment, error) {
	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", paymentID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", pledge.ErrPaymentNotFound, paymentID)
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) ListPayments(ctx context.Context, opts vault.ListOpts) ([]*vault.Payment, error) {
	var models []paymentModel
	q := s.sdb.NewSelect(&models)

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Owner != manager.None {
		q = q.Where("owner = ?", int64(opts.Owner))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// Commit applies the changeset in a single transaction. The id sequence
// check runs inside the same transaction so a concurrent writer cannot
// slip in between the check and the inserts.
func (s *Store) Commit(ctx context.Context, cs *pledgestore.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("pledge/sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after Commit

	if err := applyChangeset(ctx, tx, cs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pledge/sqlite: commit: %w", err)
	}
	return nil
}

func applyChangeset(ctx context.Context, tx *sqlitedriver.SqliteTx, cs *pledgestore.Changeset) error {
	managers, err := countIn(ctx, tx.NewRaw(`SELECT COUNT(*) FROM pledge_managers`))
	if err != nil {
		return err
	}
	notes, err := countIn(ctx, tx.NewRaw(`SELECT COUNT(*) FROM pledge_notes`))
	if err != nil {
		return err
	}
	if err := cs.CheckSequence(managers, notes); err != nil {
		return err
	}

	for _, m := range cs.CreatedManagers {
		if _, err := tx.NewInsert(toManagerModel(m)).Exec(ctx); err != nil {
			return fmt.Errorf("pledge/sqlite: insert manager %d: %w", m.ID, err)
		}
	}
	for _, m := range cs.UpdatedManagers {
		if err := update(ctx, tx.NewUpdate(toManagerModel(m)), pledge.ErrManagerNotFound); err != nil {
			return err
		}
	}
	for _, n := range cs.CreatedNotes {
		if _, err := tx.NewInsert(toNoteModel(n)).Exec(ctx); err != nil {
			return fmt.Errorf("pledge/sqlite: insert note %d: %w", n.ID, err)
		}
	}
	for _, n := range cs.UpdatedNotes {
		if err := update(ctx, tx.NewUpdate(toNoteModel(n)), pledge.ErrNoteNotFound); err != nil {
			return err
		}
	}
	for _, p := range cs.CreatedPayments {
		if _, err := tx.NewInsert(toPaymentModel(p)).Exec(ctx); err != nil {
			return fmt.Errorf("%w: insert payment %s: %w", pledge.ErrConflict, p.ID, err)
		}
	}
	for _, p := range cs.UpdatedPayments {
		if err := update(ctx, tx.NewUpdate(toPaymentModel(p)), pledge.ErrPaymentNotFound); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Helpers ====================

func update(ctx context.Context, q *sqlitedriver.UpdateQuery, notFound error) error {
	res, err := q.WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func countIn(ctx context.Context, q *sqlitedriver.RawQuery) (uint64, error) {
	var total int64
	if err := q.Scan(ctx, &total); err != nil {
		return 0, err
	}
	return uint64(total), nil
}

func (s *Store) count(ctx context.Context, table string) (uint64, error) {
	return countIn(ctx, s.sdb.NewRaw(`SELECT COUNT(*) FROM ` + table))
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
