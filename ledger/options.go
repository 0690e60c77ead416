package ledger

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures the ledgers. Build from DefaultOptions and override.
type Options struct {
	Logger zerolog.Logger
	Clock  func() time.Time

	// AllowOverpayment skips the remaining-balance check on dealer and
	// invoice payments. Remaining balances may then go negative.
	AllowOverpayment bool

	// AtomicCashMirror writes a primary row and its cash mirror in one store
	// transaction, so a failed mirror fails the whole operation. Only honored
	// when the store is a TxStore.
	AtomicCashMirror bool

	// EmitSupplierCreditCash controls whether supplier credits post a
	// supplier_credit cash outflow. Disable for the legacy behavior where
	// supplier credits never touched cash.
	EmitSupplierCreditCash bool
}

func DefaultOptions() Options {
	return Options{
		Logger:                 log.Logger,
		Clock:                  time.Now,
		EmitSupplierCreditCash: true,
	}
}

func (o Options) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock()
}

func (o Options) today() Date { return DateOf(o.now()) }

func (o Options) component(name string) zerolog.Logger {
	return o.Logger.With().Str("component", name).Logger()
}
