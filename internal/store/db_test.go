package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConstraintViolations(t *testing.T) {
	unique := fmt.Errorf("insert event: %w", &pgconn.PgError{Code: "23505"})
	fk := fmt.Errorf("insert code: %w", &pgconn.PgError{Code: "23503"})

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(errors.New("23503")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestNilDBIsUnavailable(t *testing.T) {
	var d *DB
	assert.False(t, d.Healthy(context.Background()))
	assert.ErrorIs(t, d.WithConn(context.Background(), func(Querier) error { return nil }), ErrUnavailable)
	assert.ErrorIs(t, Migrate(context.Background(), d), ErrUnavailable)
	d.Close()
}

func TestNewDBRejectsBadURL(t *testing.T) {
	_, err := NewDB(context.Background(), "postgres://%zz", PoolConfig{})
	assert.Error(t, err)
}
