package postgres

import (
	"encoding/json"
	"time"

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

	ID         int64     `grove:"id,pk"`
	Kind       string    `grove:"kind"`
	Address    string    `grove:"address"`
	Name       string    `grove:"name"`
	CommitTime int64     `grove:"commit_time_ns"`
	Reviewer   string    `grove:"reviewer"`
	Canceled   bool      `grove:"canceled"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
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

	ID              int64           `grove:"id,pk"`
	Amount          string          `grove:"amount"`
	Currency        string          `grove:"currency"`
	Owner           int64           `grove:"owner"`
	Delegates       json.RawMessage `grove:"delegates,type:jsonb"`
	ProposedProject int64           `grove:"proposed_project"`
	CommitTime      *time.Time      `grove:"commit_time"`
	OldNote         int64           `grove:"old_note"`
	PaymentState    string          `grove:"payment_state"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toNoteModel(n *note.Note) *noteModel {
	delegates, _ := json.Marshal(n.Delegates) //nolint:errcheck // []uint64 cannot fail
	if n.Delegates == nil {
		delegates = json.RawMessage("[]")
	}

	var commitTime *time.Time
	if !n.CommitTime.IsZero() {
		t := n.CommitTime
		commitTime = &t
	}

	return &noteModel{
		ID:              int64(n.ID),
		Amount:          n.Amount.Units(),
		Currency:        n.Amount.Currency,
		Owner:           int64(n.Owner),
		Delegates:       delegates,
		ProposedProject: int64(n.ProposedProject),
		CommitTime:      commitTime,
		OldNote:         int64(n.OldNote),
		PaymentState:    string(n.PaymentState),
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}
}

func fromNoteModel(m *noteModel) (*note.Note, error) {
	var delegates []manager.ID
	if len(m.Delegates) > 0 {
		if err := json.Unmarshal(m.Delegates, &delegates); err != nil {
			return nil, err
		}
	}
	if len(delegates) == 0 {
		delegates = nil
	}

	amount, err := types.ParseUnits(m.Amount, m.Currency)
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

	ID        string     `grove:"id,pk"`
	NoteID    int64      `grove:"note_id"`
	Owner     int64      `grove:"owner"`
	Address   string     `grove:"address"`
	Amount    string     `grove:"amount"`
	Currency  string     `grove:"currency"`
	State     string     `grove:"state"`
	PaidNote  int64      `grove:"paid_note"`
	SettledAt *time.Time `grove:"settled_at"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
}

func toPaymentModel(p *vault.Payment) *paymentModel {
	return &paymentModel{
		ID:        p.ID.String(),
		NoteID:    int64(p.NoteID),
		Owner:     int64(p.Owner),
		Address:   string(p.Address),
		Amount:    p.Amount.Units(),
		Currency:  p.Amount.Currency,
		State:     string(p.State),
		PaidNote:  int64(p.PaidNote),
		SettledAt: p.SettledAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*vault.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseUnits(m.Amount, m.Currency)
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
