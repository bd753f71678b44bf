package sql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// DialectForDriver maps a data source driver kind to its SQL dialect.
// Unknown drivers use the PostgreSQL dialect of the system store.
func DialectForDriver(driver string) Dialect {
	switch driver {
	case models.DriverMySQL:
		return DialectMySQL
	case models.DriverSQLite:
		return DialectSQLite
	case models.DriverMSSQL:
		return DialectMSSQL
	default:
		return DialectPostgres
	}
}

// QuoteIdent quotes name as an identifier in the given dialect, escaping
// embedded quote characters.
func QuoteIdent(name string, dialect Dialect) string {
	switch dialect {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}
