package pledge

import "github.com/xraph/pledge/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Address is re-exported from types package.
type Address = types.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	NewMoney   = types.New
	MoneyOf    = types.FromBig
	ParseMoney = types.Parse
	Zero       = types.Zero
	Sum        = types.Sum
)

// ETH returns amount wei.
func ETH(wei int64) Money { return types.New(wei, "eth") }

// Re-export Entity constructor
var NewEntity = types.NewEntity
