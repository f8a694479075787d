package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept NoTX for the non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one database transaction. fn's error rolls
// the transaction back; nil commits it. Repositories receive the handle as tx
// and take row locks (SELECT ... FOR UPDATE) only when it is live.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
