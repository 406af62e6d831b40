package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError is a no-op on a committed transaction.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && rErr != sql.ErrTxDone && *err == nil {
		*err = rErr
	}
}

func toNullString(v any) (sql.NullString, error) {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func fromUnixMicro(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// batchInsertSQL returns a multi-row insert statement for n rows.
func batchInsertSQL(prefix, placeholder string, n int) string {
	var sb strings.Builder
	sb.Grow(len(prefix) + n*(len(placeholder)+2))

	sb.WriteString(prefix)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
	}
	return sb.String()
}
