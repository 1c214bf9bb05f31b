package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction, passing the
// transaction handle as tx. Repositories accept a nil tx for the
// non-transactional path; the concrete handle type is infra-defined (pgx.Tx
// for Postgres).
//
// The usage reservation and the suggestion's usage_reserved flag are written
// through the same tx so a retry can never reserve twice.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
