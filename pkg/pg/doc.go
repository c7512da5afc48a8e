// Package pg opens the PostgreSQL pool used by the Postgres user store and
// applies its goose migrations from an embedded filesystem.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, migrations.Postgres, cfg, log); err != nil {
//		return err
//	}
package pg
