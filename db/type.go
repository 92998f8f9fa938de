package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrParentMismatch is returned when an appended block's claimed parent
	// does not match stored state.
	ErrParentMismatch = errors.New("block parent does not match stored state")
	// ErrInvalidFinalityAdvance is returned when a finality advance does not
	// extend the stored linear finalized chain.
	ErrInvalidFinalityAdvance = errors.New("finality advance does not extend the finalized chain")
)

var (
	ErrDuplicateEntryCode = 1062
)

func MysqlErrCode(err error) int {
	mysqlErr, ok := err.(*mysql.MySQLError)
	if !ok {
		return 0
	}
	return int(mysqlErr.Number)
}
