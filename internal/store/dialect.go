package store

import (
    "fmt"
    "strings"
)

// Dialect covers the SQL differences between the supported drivers.
type Dialect interface {
    Name() string
    DriverName() string
    Placeholder(n int) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) DriverName() string     { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) DriverName() string       { return "pgx" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// rebind rewrites ? placeholders for the dialect.
func rebind(d Dialect, query string) string {
    if d.Placeholder(1) == "?" { return query }
    n := 0
    var b strings.Builder
    for i := 0; i < len(query); i++ {
        if query[i] == '?' {
            n++
            b.WriteString(d.Placeholder(n))
            continue
        }
        b.WriteByte(query[i])
    }
    return b.String()
}
