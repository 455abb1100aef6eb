package outbox

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

func TableLabel(table pgx.Identifier) string {
	if len(table) == 0 {
		return ""
	}
	return strings.Join(table, ".")
}
