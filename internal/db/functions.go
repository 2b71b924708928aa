package db

import (
	"database/sql/driver"
	"strings"

	msqlite "modernc.org/sqlite"
)

// FuncUnicodeLower is a SQL function that lowercases text with full Unicode
// case folding. The builtin LOWER only folds ASCII letters.
const FuncUnicodeLower = "ulower"

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(FuncUnicodeLower, 1, unicodeLower)
}

func unicodeLower(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
