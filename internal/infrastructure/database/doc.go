// Package database provides the SQLite store behind session history.
//
// Open configures the connection for SQLite's single-writer model (one open
// connection, optional WAL, busy timeout) and Migrate applies versioned
// schema files from any fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql.
// Applied versions are tracked in the schema_migrations table.
package database
