package mysql

import "errors"

var (
	ErrEmptyDSN                 = errors.New("empty mysql dsn, set MYSQL_DSN")
	ErrFailedToOpenDBConnection = errors.New("failed to open mysql connection")
	ErrHealthcheckFailed        = errors.New("mysql healthcheck failed")
	ErrFailedToApplyMigrations  = errors.New("failed to apply mysql migrations")
)
