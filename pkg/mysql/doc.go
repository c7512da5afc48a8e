// Package mysql opens the gorm connection used by the MySQL user store and
// applies goose migrations over the same *sql.DB.
package mysql
