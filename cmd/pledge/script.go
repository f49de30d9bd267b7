package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/yaml.v3"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// Script is a YAML scenario replayed against a ledger on a mock clock.
type Script struct {
	Currency  string    `yaml:"currency"`
	Operators []string  `yaml:"operators"`
	Start     time.Time `yaml:"start"`
	Steps     []Step    `yaml:"steps"`
}

// Step is one scenario line. Which fields matter depends on Op. Values
// starting with "$" refer to ids saved by earlier steps.
type Step struct {
	Op         string   `yaml:"op"`
	Caller     string   `yaml:"caller"`
	As         string   `yaml:"as"`
	Name       string   `yaml:"name"`
	Reviewer   string   `yaml:"reviewer"`
	CommitTime string   `yaml:"commit_time"`
	Donor      string   `yaml:"donor"`
	Target     string   `yaml:"target"`
	Project    string   `yaml:"project"`
	Note       string   `yaml:"note"`
	Amount     string   `yaml:"amount"`
	Payment    string   `yaml:"payment"`
	Payments   []string `yaml:"payments"`
	Duration   string   `yaml:"duration"`
	Owner      string   `yaml:"owner"`
	State      string   `yaml:"state"`
	Save       string   `yaml:"save"`
	Expect     string   `yaml:"expect"`
}

// expectations names the errors a step may declare in "expect".
var expectations = map[string]error{
	"unauthorized":        pledge.ErrUnauthorized,
	"not_owner":           pledge.ErrNotOwner,
	"invalid_target":      pledge.ErrInvalidTarget,
	"invalid_amount":      pledge.ErrInvalidAmount,
	"insufficient_amount": pledge.ErrInsufficientAmount,
	"project_canceled":    pledge.ErrProjectCanceled,
	"invalid_state":       pledge.ErrInvalidState,
	"time_locked":         pledge.ErrTimeLocked,
	"invalid_input":       pledge.ErrInvalidInput,
	"not_found":           pledge.ErrNotFound,
}

// ParseScript decodes a YAML scenario.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, st := range s.Steps {
		if st.Op == "" {
			return nil, fmt.Errorf("step %d: missing op", i+1)
		}
		if st.Expect != "" {
			if _, ok := expectations[st.Expect]; !ok {
				return nil, fmt.Errorf("step %d: unknown expectation %q", i+1, st.Expect)
			}
		}
	}
	return &s, nil
}

// Runner executes script steps.
type Runner struct {
	ledger *pledge.Ledger
	clock  *clock.Mock
	wallet *vault.Wallet
	out    io.Writer
	vars   map[string]string
}

func NewRunner(l *pledge.Ledger, mock *clock.Mock, wallet *vault.Wallet, out io.Writer) *Runner {
	return &Runner{
		ledger: l,
		clock:  mock,
		wallet: wallet,
		out:    out,
		vars:   make(map[string]string),
	}
}

// Var returns what a step saved under name.
func (r *Runner) Var(name string) string { return r.vars[name] }

// Run executes steps in order and stops at the first unexpected outcome.
func (r *Runner) Run(ctx context.Context, steps []Step) error {
	for i, st := range steps {
		result, err := r.step(ctx, st)

		if st.Expect != "" {
			want := expectations[st.Expect]
			if !errors.Is(err, want) {
				return fmt.Errorf("step %d (%s): expected %s, got %v", i+1, st.Op, st.Expect, err)
			}
			fmt.Fprintf(r.out, "#%-3d %-15s rejected: %v\n", i+1, st.Op, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		fmt.Fprintf(r.out, "#%-3d %-15s %s\n", i+1, st.Op, result)
	}
	return nil
}

func (r *Runner) step(ctx context.Context, st Step) (string, error) {
	l := r.ledger
	caller := types.Address(st.Caller)

	switch st.Op {
	case "add_donor", "add_delegate", "add_project":
		commit, err := r.duration(st.CommitTime)
		if err != nil {
			return "", err
		}
		var m manager.ID
		switch st.Op {
		case "add_donor":
			m, err = l.AddDonor(ctx, caller, st.Name, commit)
		case "add_delegate":
			m, err = l.AddDelegate(ctx, caller, st.Name)
		default:
			m, err = l.AddProject(ctx, caller, st.Name, types.Address(st.Reviewer), commit)
		}
		if err != nil {
			return "", err
		}
		r.save(st.Save, m.String())
		return fmt.Sprintf("manager %d (%s)", m, st.Name), nil

	case "donate":
		donor, target, amount, err := r.donateArgs(st)
		if err != nil {
			return "", err
		}
		n, err := l.Donate(ctx, caller, donor, target, amount)
		if err != nil {
			return "", err
		}
		r.save(st.Save, n.String())
		return fmt.Sprintf("note %d holds %s", n, amount), nil

	case "transfer":
		as, src, amount, err := r.noteArgs(st)
		if err != nil {
			return "", err
		}
		target, err := r.manager(st.Target)
		if err != nil {
			return "", err
		}
		n, err := l.Transfer(ctx, caller, as, src, amount, target)
		if err != nil {
			return "", err
		}
		r.save(st.Save, n.String())
		return fmt.Sprintf("note %d -> note %d (%s)", src, n, amount), nil

	case "withdraw":
		as, src, amount, err := r.noteArgs(st)
		if err != nil {
			return "", err
		}
		res, err := l.Withdraw(ctx, caller, as, src, amount)
		if err != nil {
			return "", err
		}
		r.save(st.Save, res.Paying.String())
		r.save(st.Save+".payment", res.Payment.String())
		return fmt.Sprintf("note %d paying %s, payment %s", res.Paying, amount, res.Payment), nil

	case "cancel_project":
		project, err := r.manager(st.Project)
		if err != nil {
			return "", err
		}
		if err := l.CancelProject(ctx, caller, project); err != nil {
			return "", err
		}
		return fmt.Sprintf("project %d canceled", project), nil

	case "confirm":
		p, err := r.payment(st.Payment)
		if err != nil {
			return "", err
		}
		paid, err := l.ConfirmPayment(ctx, caller, p)
		if err != nil {
			return "", err
		}
		r.save(st.Save, paid.String())
		return fmt.Sprintf("payment %s confirmed, note %d paid", p, paid), nil

	case "cancel_payment":
		p, err := r.payment(st.Payment)
		if err != nil {
			return "", err
		}
		if err := l.CancelPayment(ctx, caller, p); err != nil {
			return "", err
		}
		return fmt.Sprintf("payment %s canceled", p), nil

	case "multi_confirm":
		ids := make([]id.PaymentID, 0, len(st.Payments))
		for _, ref := range st.Payments {
			p, err := r.payment(ref)
			if err != nil {
				return "", err
			}
			ids = append(ids, p)
		}
		confirmed, err := l.MultiConfirm(ctx, caller, ids)
		msg := fmt.Sprintf("%d of %d confirmed", len(confirmed), len(ids))
		if st.Expect == "" && err != nil {
			// Partial batches are an outcome, not a failure, unless nothing
			// went through.
			if len(confirmed) == 0 {
				return "", err
			}
			msg += fmt.Sprintf(" (%v)", err)
			err = nil
		}
		return msg, err

	case "advance":
		d, err := r.duration(st.Duration)
		if err != nil {
			return "", err
		}
		r.clock.Add(d)
		return "clock at " + r.clock.Now().UTC().Format(time.RFC3339), nil

	case "check":
		return r.check(ctx, st)

	case "balance":
		want, err := types.Parse(st.Amount, l.Currency())
		if err != nil {
			return "", err
		}
		got := r.wallet.Balance(caller)
		if !got.Equal(want) {
			return "", fmt.Errorf("balance of %s is %s, want %s", caller, got, want)
		}
		return fmt.Sprintf("%s holds %s", caller, got), nil

	default:
		return "", fmt.Errorf("unknown op %q", st.Op)
	}
}

// check compares a note against the fields the step sets.
func (r *Runner) check(ctx context.Context, st Step) (string, error) {
	noteID, err := r.note(st.Note)
	if err != nil {
		return "", err
	}
	n, err := r.ledger.GetNote(ctx, noteID)
	if err != nil {
		return "", err
	}

	if st.Amount != "" {
		want, err := types.Parse(st.Amount, r.ledger.Currency())
		if err != nil {
			return "", err
		}
		if !n.Amount.Equal(want) {
			return "", fmt.Errorf("note %d holds %s, want %s", noteID, n.Amount, want)
		}
	}
	if st.Owner != "" {
		want, err := r.manager(st.Owner)
		if err != nil {
			return "", err
		}
		if n.Owner != want {
			return "", fmt.Errorf("note %d is owned by %d, want %d", noteID, n.Owner, want)
		}
	}
	if st.State != "" && n.PaymentState != note.PaymentState(st.State) {
		return "", fmt.Errorf("note %d is %s, want %s", noteID, n.PaymentState, st.State)
	}
	return fmt.Sprintf("note %d: %s owner %d %s", noteID, n.Amount, n.Owner, n.PaymentState), nil
}

func (r *Runner) save(name, value string) {
	if name != "" {
		r.vars[name] = value
	}
}

func (r *Runner) resolve(ref string) (string, error) {
	if !strings.HasPrefix(ref, "$") {
		return ref, nil
	}
	v, ok := r.vars[ref[1:]]
	if !ok {
		return "", fmt.Errorf("unbound reference %s", ref)
	}
	return v, nil
}

func (r *Runner) manager(ref string) (manager.ID, error) {
	s, err := r.resolve(ref)
	if err != nil {
		return manager.None, err
	}
	return manager.ParseID(s)
}

func (r *Runner) note(ref string) (note.ID, error) {
	s, err := r.resolve(ref)
	if err != nil {
		return 0, err
	}
	return note.ParseID(s)
}

func (r *Runner) payment(ref string) (id.PaymentID, error) {
	s, err := r.resolve(ref)
	if err != nil {
		return id.PaymentID{}, err
	}
	return id.ParsePaymentID(s)
}

func (r *Runner) duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func (r *Runner) donateArgs(st Step) (donor, target manager.ID, amount types.Money, err error) {
	if donor, err = r.manager(st.Donor); err != nil {
		return
	}
	target = donor
	if st.Target != "" {
		if target, err = r.manager(st.Target); err != nil {
			return
		}
	}
	amount, err = types.Parse(st.Amount, r.ledger.Currency())
	return
}

func (r *Runner) noteArgs(st Step) (as manager.ID, src note.ID, amount types.Money, err error) {
	if as, err = r.manager(st.As); err != nil {
		return
	}
	if src, err = r.note(st.Note); err != nil {
		return
	}
	amount, err = types.Parse(st.Amount, r.ledger.Currency())
	return
}
