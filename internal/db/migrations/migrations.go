// Package migrations embeds the goose SQL migrations for the administrative
// database and for every dedicated tenant database.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed admin/*.sql
var adminFS embed.FS

//go:embed tenant/*.sql
var tenantFS embed.FS

// Admin returns the migrations of the administrative database.
func Admin() fs.FS { return sub(adminFS, "admin") }

// Tenant returns the migrations applied to each dedicated tenant database.
func Tenant() fs.FS { return sub(tenantFS, "tenant") }

func sub(fsys embed.FS, dir string) fs.FS {
	s, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return s
}
