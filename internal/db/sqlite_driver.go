package db

import (
	"database/sql"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the SQLCipher driver with the project's SQL functions.
	SQLiteDriverName = "sqlite3_pillbridge"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("normalize_code", NormalizeCode, true); err != nil {
				return fmt.Errorf("register normalize_code SQL function: %w", err)
			}
			return nil
		},
	})
}

// NormalizeCode canonicalizes a caregiver code for lookup: trimmed, upper case.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
