// Package migrations embeds SQL migration files into the binary so Lumina
// can migrate its database without shipping loose SQL files alongside the
// executable.
package migrations

import (
	"embed"

	"github.com/lumina-home/lumina-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
