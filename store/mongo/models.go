package mongo

import (
	"fmt"
	"math/big"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// ==================== Manager models ====================

type managerModel struct {
	grove.BaseModel `grove:"table:pledge_managers"`

	ID         int64     `grove:"id,pk"          bson:"_id"`
	Kind       string    `grove:"kind"           bson:"kind"`
	Address    string    `grove:"address"        bson:"address"`
	Name       string    `grove:"name"           bson:"name"`
	CommitTime int64     `grove:"commit_time_ns" bson:"commit_time_ns"`
	Reviewer   string    `grove:"reviewer"       bson:"reviewer,omitempty"`
	Canceled   bool      `grove:"canceled"       bson:"canceled"`
	CreatedAt  time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"     bson:"updated_at"`
}

func toManagerModel(m *manager.Manager) *managerModel {
	return &managerModel{
		ID:         int64(m.ID),
		Kind:       string(m.Kind),
		Address:    string(m.Address),
		Name:       m.Name,
		CommitTime: int64(m.CommitTime),
		Reviewer:   string(m.Reviewer),
		Canceled:   m.Canceled,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func fromManagerModel(m *managerModel) *manager.Manager {
	return &manager.Manager{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         manager.ID(m.ID),
		Kind:       manager.Kind(m.Kind),
		Address:    types.Address(m.Address),
		Name:       m.Name,
		CommitTime: time.Duration(m.CommitTime),
		Reviewer:   types.Address(m.Reviewer),
		Canceled:   m.Canceled,
	}
}

// ==================== Note models ====================

type noteModel struct {
	grove.BaseModel `grove:"table:pledge_notes"`

	ID              int64           `grove:"id,pk"            bson:"_id"`
	Amount          bson.Decimal128 `grove:"amount"           bson:"amount"`
	Currency        string          `grove:"currency"         bson:"currency"`
	Owner           int64           `grove:"owner"            bson:"owner"`
	Delegates       []int64         `grove:"delegates"        bson:"delegates"`
	ProposedProject int64           `grove:"proposed_project" bson:"proposed_project"`
	CommitTime      *time.Time      `grove:"commit_time"      bson:"commit_time,omitempty"`
	OldNote         int64           `grove:"old_note"         bson:"old_note"`
	PaymentState    string          `grove:"payment_state"    bson:"payment_state"`
	CreatedAt       time.Time       `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"       bson:"updated_at"`
}

func toNoteModel(n *note.Note) (*noteModel, error) {
	amount, err := toDecimal(n.Amount)
	if err != nil {
		return nil, err
	}

	delegates := make([]int64, len(n.Delegates))
	for i, d := range n.Delegates {
		delegates[i] = int64(d)
	}

	var commitTime *time.Time
	if !n.CommitTime.IsZero() {
		t := n.CommitTime
		commitTime = &t
	}

	return &noteModel{
		ID:              int64(n.ID),
		Amount:          amount,
		Currency:        n.Amount.Currency,
		Owner:           int64(n.Owner),
		Delegates:       delegates,
		ProposedProject: int64(n.ProposedProject),
		CommitTime:      commitTime,
		OldNote:         int64(n.OldNote),
		PaymentState:    string(n.PaymentState),
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}, nil
}

func fromNoteModel(m *noteModel) (*note.Note, error) {
	var delegates []manager.ID
	for _, d := range m.Delegates {
		delegates = append(delegates, manager.ID(d))
	}
	amount, err := fromDecimal(m.Amount, m.Currency)
	if err != nil {
		return nil, err
	}

	n := &note.Note{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              note.ID(m.ID),
		Amount:          amount,
		Owner:           manager.ID(m.Owner),
		Delegates:       delegates,
		ProposedProject: manager.ID(m.ProposedProject),
		OldNote:         note.ID(m.OldNote),
		PaymentState:    note.PaymentState(m.PaymentState),
	}
	if m.CommitTime != nil {
		n.CommitTime = *m.CommitTime
	}
	return n, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:pledge_payments"`

	ID        string          `grove:"id,pk"      bson:"_id"`
	NoteID    int64           `grove:"note_id"    bson:"note_id"`
	Owner     int64           `grove:"owner"      bson:"owner"`
	Address   string          `grove:"address"    bson:"address"`
	Amount    bson.Decimal128 `grove:"amount"     bson:"amount"`
	Currency  string          `grove:"currency"   bson:"currency"`
	State     string          `grove:"state"      bson:"state"`
	PaidNote  int64           `grove:"paid_note"  bson:"paid_note"`
	SettledAt *time.Time      `grove:"settled_at" bson:"settled_at,omitempty"`
	CreatedAt time.Time       `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at" bson:"updated_at"`
}

func toPaymentModel(p *vault.Payment) (*paymentModel, error) {
	amount, err := toDecimal(p.Amount)
	if err != nil {
		return nil, err
	}

	return &paymentModel{
		ID:        p.ID.String(),
		NoteID:    int64(p.NoteID),
		Owner:     int64(p.Owner),
		Address:   string(p.Address),
		Amount:    amount,
		Currency:  p.Amount.Currency,
		State:     string(p.State),
		PaidNote:  int64(p.PaidNote),
		SettledAt: p.SettledAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func fromPaymentModel(m *paymentModel) (*vault.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := fromDecimal(m.Amount, m.Currency)
	if err != nil {
		return nil, err
	}

	return &vault.Payment{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        paymentID,
		NoteID:    note.ID(m.NoteID),
		Owner:     manager.ID(m.Owner),
		Address:   types.Address(m.Address),
		Amount:    amount,
		State:     vault.State(m.State),
		PaidNote:  note.ID(m.PaidNote),
		SettledAt: m.SettledAt,
	}, nil
}

// ==================== Amount encoding ====================

// toDecimal stores an amount as an integral Decimal128, which holds 34
// significant digits.
func toDecimal(m types.Money) (bson.Decimal128, error) {
	d, ok := bson.ParseDecimal128FromBigInt(types.FromBig(m.Amount, m.Currency).Amount, 0)
	if !ok {
		return bson.Decimal128{}, fmt.Errorf("pledge/mongo: amount %s exceeds decimal128", m.Units())
	}
	return d, nil
}

func fromDecimal(d bson.Decimal128, currency string) (types.Money, error) {
	bi, exp, err := d.BigInt()
	if err != nil {
		return types.Money{}, fmt.Errorf("pledge/mongo: decode amount: %w", err)
	}
	for ; exp > 0; exp-- {
		bi.Mul(bi, big.NewInt(10))
	}
	if exp < 0 {
		return types.Money{}, fmt.Errorf("pledge/mongo: fractional amount %s", d)
	}
	return types.FromBig(bi, currency), nil
}
