package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 12

// ErrorDump flattens an error for structured logs. It never reaches clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump walks the wrap chain and lifts Postgres driver fields from either
// pgx or lib/pq errors.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.setPG(pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message)
		return d
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.setPG(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	}
	return d
}

func (d *ErrorDump) setPG(code, constraint, table, column, detail, message string) {
	d.PGCode = code
	d.PGConstraint = constraint
	d.PGTable = table
	d.PGColumn = column
	d.PGDetail = detail
	d.PGMessage = message
}
