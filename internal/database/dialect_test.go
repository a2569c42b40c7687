package database

import (
	"testing"
)

func TestDialectProperties(t *testing.T) {
	tests := []struct {
		name          string
		dialect       Dialect
		driver        string
		lastInsertID  bool
		migrationsDir string
		trueLiteral   string
		falseLiteral  string
	}{
		{"sqlite", NewSQLiteDialect(), "sqlite3", true, "sqlite", "1", "0"},
		{"postgres", NewPostgresDialect(), "postgres", false, "postgres", "TRUE", "FALSE"},
		{"mysql", NewMySQLDialect(), "mysql", true, "mysql", "TRUE", "FALSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.DriverName(); got != tt.driver {
				t.Errorf("DriverName() = %q, want %q", got, tt.driver)
			}
			if got := tt.dialect.SupportsLastInsertId(); got != tt.lastInsertID {
				t.Errorf("SupportsLastInsertId() = %v, want %v", got, tt.lastInsertID)
			}
			if got := tt.dialect.MigrationsSubdir(); got != tt.migrationsDir {
				t.Errorf("MigrationsSubdir() = %q, want %q", got, tt.migrationsDir)
			}
			if got := tt.dialect.BoolValue(true); got != tt.trueLiteral {
				t.Errorf("BoolValue(true) = %q, want %q", got, tt.trueLiteral)
			}
			if got := tt.dialect.BoolValue(false); got != tt.falseLiteral {
				t.Errorf("BoolValue(false) = %q, want %q", got, tt.falseLiteral)
			}
		})
	}
}

func TestDialectDSN(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		config  DialectConfig
		want    string
	}{
		{
			name:    "sqlite path gets pragmas",
			dialect: NewSQLiteDialect(),
			config:  DialectConfig{Path: "./ecoquest.db"},
			want:    "./ecoquest.db?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		},
		{
			name:    "sqlite path with its own options is kept",
			dialect: NewSQLiteDialect(),
			config:  DialectConfig{Path: "file:test.db?mode=memory"},
			want:    "file:test.db?mode=memory",
		},
		{
			name:    "postgres url is tagged",
			dialect: NewPostgresDialect(),
			config:  DialectConfig{URL: "postgres://eco:secret@db:5432/ecoquest"},
			want:    "postgres://eco:secret@db:5432/ecoquest?application_name=ecoquest",
		},
		{
			name:    "postgres url with query is tagged",
			dialect: NewPostgresDialect(),
			config:  DialectConfig{URL: "postgresql://eco@db/ecoquest?sslmode=disable"},
			want:    "postgresql://eco@db/ecoquest?sslmode=disable&application_name=ecoquest",
		},
		{
			name:    "postgres keyword dsn is untouched",
			dialect: NewPostgresDialect(),
			config:  DialectConfig{URL: "host=db dbname=ecoquest"},
			want:    "host=db dbname=ecoquest",
		},
		{
			name:    "mysql gets missing params",
			dialect: NewMySQLDialect(),
			config:  DialectConfig{URL: "eco:secret@tcp(db:3306)/ecoquest"},
			want:    "eco:secret@tcp(db:3306)/ecoquest?parseTime=true&multiStatements=true&clientFoundRows=true",
		},
		{
			name:    "mysql keeps explicit params",
			dialect: NewMySQLDialect(),
			config:  DialectConfig{URL: "eco@tcp(db)/ecoquest?parseTime=false"},
			want:    "eco@tcp(db)/ecoquest?parseTime=false&multiStatements=true&clientFoundRows=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.DSN(tt.config); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	const approve = "UPDATE mission_submissions SET status = ?, points_awarded = ?, reviewer_id = ? WHERE id = ? AND status = ?"

	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "sqlite keeps placeholders",
			dialect:  NewSQLiteDialect(),
			query:    approve,
			expected: approve,
		},
		{
			name:     "mysql keeps placeholders",
			dialect:  NewMySQLDialect(),
			query:    approve,
			expected: approve,
		},
		{
			name:     "postgres numbers placeholders in order",
			dialect:  NewPostgresDialect(),
			query:    approve,
			expected: "UPDATE mission_submissions SET status = $1, points_awarded = $2, reviewer_id = $3 WHERE id = $4 AND status = $5",
		},
		{
			name:     "postgres single placeholder",
			dialect:  NewPostgresDialect(),
			query:    "SELECT code FROM organization_codes WHERE organization_id = ?",
			expected: "SELECT code FROM organization_codes WHERE organization_id = $1",
		},
		{
			name:     "postgres leaves queries without placeholders alone",
			dialect:  NewPostgresDialect(),
			query:    "SELECT COUNT(*) FROM missions WHERE is_active = TRUE",
			expected: "SELECT COUNT(*) FROM missions WHERE is_active = TRUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.RewriteQuery(tt.query); got != tt.expected {
				t.Errorf("RewriteQuery() = %q, want %q", got, tt.expected)
			}
		})
	}
}
