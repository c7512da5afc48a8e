package mysql

import "time"

// Config holds the MySQL DSN in go-sql-driver format,
// e.g. "user:pass@tcp(127.0.0.1:3306)/app?parseTime=true".
type Config struct {
	DSN             string        `env:"MYSQL_DSN"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"MYSQL_RETRY_ATTEMPTS" envDefault:"5"`
	RetryInterval time.Duration `env:"MYSQL_RETRY_INTERVAL" envDefault:"2s"`

	MigrationsTable string `env:"MYSQL_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
}
