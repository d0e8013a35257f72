// Package migrations embeds the SQL schema files into the binary and
// registers them with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/smart-watering-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.Register(files, ".")
}
