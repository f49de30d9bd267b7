// Package pledge provides a custodial fund-accounting ledger for Go
// applications.
//
// Pledge tracks pooled contributions ("notes") as they flow from donors,
// through delegates, to projects, and settles withdrawals through a
// two-phase vault. It is designed as a library, not a service: import it
// directly and plug in the store, clock and payout sink you need.
//
//   - Donors, delegates and projects are registered as managers
//   - Donations create notes; transfers split them
//   - Delegates propose projects, which take ownership after a time-lock
//   - Projects withdraw into Pending payments that the vault confirms or cancels
//   - Reviewers cancel projects; the cancellation is enforced lazily
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/pledge"
//	    "github.com/xraph/pledge/store/memory"
//	    "github.com/xraph/pledge/vault"
//	)
//
//	wallet := vault.NewWallet("eth")
//	l := pledge.New(memory.New(), pledge.WithSink(wallet))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Every mutating call names the address of its caller. A manager acts only
// through the address it was registered with:
//
//	donor, _ := l.AddDonor(ctx, "0xd0", "Donor1", 24*time.Hour)
//	delegate, _ := l.AddDelegate(ctx, "0xde", "Delegate1")
//	project, _ := l.AddProject(ctx, "0xa1", "Project1", "0xre", 24*time.Hour)
//
//	n, _ := l.Donate(ctx, "0xd0", donor, donor, pledge.ETH(1e18))
//	d, _ := l.Transfer(ctx, "0xd0", donor, n, pledge.ETH(5e17), delegate)
//	p, _ := l.Transfer(ctx, "0xde", delegate, d, pledge.ETH(2e17), project)
//
// The last transfer only proposes the project. Once the project's commit
// time has passed the proposal is final and the project may withdraw:
//
//	res, _ := l.Withdraw(ctx, "0xa1", project, p, pledge.ETH(5e16))
//	_, _ = l.ConfirmPayment(ctx, operator, res.Payment)
//
// # Atomicity
//
// Operations are serialized. Each one stages its changes and commits them to
// the store as a single changeset, or returns an error and changes nothing.
// Plugins are notified after the commit.
//
// # Amounts
//
// All monetary calculations use integer arithmetic. The Money type holds
// amounts in the smallest unit of the asset (wei for ETH).
package pledge
