package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryableDetectsWrappedSerializationFailures(t *testing.T) {
	serialization := fmt.Errorf("post: %w", &pgconn.PgError{Code: CodeSerializationFailure})
	deadlock := errors.Join(errors.New("posting failed"), &pgconn.PgError{Code: CodeDeadlockDetected})

	require.True(t, Retryable(serialization))
	require.True(t, Retryable(deadlock))
	require.False(t, Retryable(&pgconn.PgError{Code: CodeUniqueViolation}))
	require.False(t, Retryable(errors.New("boom")))
	require.True(t, HasCode(fmt.Errorf("x: %w", &pgconn.PgError{Code: CodeUniqueViolation}), CodeUniqueViolation))
}

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/ledger?sslmode=disable", MigrationURL("postgres://u:p@db:5432/ledger?sslmode=disable"))
	require.Equal(t, "pgx5://db/ledger", MigrationURL("postgresql://db/ledger"))
	require.Equal(t, "pgx5://db/ledger", MigrationURL("pgx5://db/ledger"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	up, down := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	require.Positive(t, up)
	require.Equal(t, up, down)
}

func TestMigrationsStoreAmountsUnscaled(t *testing.T) {
	scaled := regexp.MustCompile(`(?i)\bNUMERIC\s*\(`)
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	for _, e := range entries {
		body, err := migrations.ReadFile("migrations/" + e.Name())
		require.NoError(t, err)
		require.False(t, scaled.Match(body), "%s declares a NUMERIC with fixed precision", e.Name())
	}
}

func TestMigrationsTrackAccountReferences(t *testing.T) {
	body, err := migrations.ReadFile("migrations/000001_ledger.up.sql")
	require.NoError(t, err)
	require.Regexp(t, `account_id\s+TEXT NOT NULL REFERENCES ledger_accounts \(id\)`, string(body))
}
