// Package contentdb holds all the migrations for the source content database
package contentdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the content database
var Migrations = migrate.NewMigrations()
