package vault

import (
	"context"

	"github.com/xraph/pledge/id"
)

type Store interface {
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, opts ListOpts) ([]*Payment, error)
}
