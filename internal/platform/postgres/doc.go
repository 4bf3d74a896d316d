// Package postgres implements store.TaskStore on PostgreSQL through the pgx
// database/sql driver, and carries the embedded goose migrations that create
// the tasks table.
//
// Conditional updates are translated into a single UPDATE ... WHERE statement
// so the database arbitrates between concurrent workers.
package postgres
