// Package database provides SQLite connectivity and schema migrations for
// Smart Watering Core.
//
// The store holds farms, devices, rules, sensor readings, triggered actions
// and the entity audit log. Every repository in the domain packages takes the
// *sql.DB embedded in DB.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. The migrations package registers its embedded
// files with Register during init.
package database
