package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorage_ReadUserKey(t *testing.T) {
	key := generateTestKey(t)

	db := &mockDB{}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"default"}).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*[]byte) = key.MarshalPEM()
			return nil
		}})

	s := NewPostgresStorage(db, "default")
	loaded, err := s.ReadUserKey()
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))
	db.AssertExpectations(t)
}

func TestPostgresStorage_ReadUserKey_NotFound(t *testing.T) {
	db := &mockDB{}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			return pgx.ErrNoRows
		}})

	s := NewPostgresStorage(db, "default")
	_, err := s.ReadUserKey()
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestPostgresStorage_WriteUserKey(t *testing.T) {
	key := generateTestKey(t)

	db := &mockDB{}
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, nil)

	s := NewPostgresStorage(db, "default")
	require.NoError(t, s.WriteUserKey(key))
	db.AssertExpectations(t)
}

func TestPostgresStorage_WriteUserKey_Error(t *testing.T) {
	db := &mockDB{}
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("db error"))

	s := NewPostgresStorage(db, "default")
	err := s.WriteUserKey(generateTestKey(t))

	var storageErr *Error
	require.Error(t, err)
	assert.ErrorAs(t, err, &storageErr)
}

func TestPostgresStorage_ReadHostKeyLines(t *testing.T) {
	db := &mockDB{}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"default"}).
		Return(newMockRows(
			func(dest ...any) error {
				*dest[0].(*string) = "host1 ssh-rsa AAAA"
				return nil
			},
			func(dest ...any) error {
				*dest[0].(*string) = "host2 ssh-rsa BBBB"
				return nil
			},
		), nil)

	s := NewPostgresStorage(db, "default")
	lines, err := s.ReadHostKeyLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"host1 ssh-rsa AAAA", "host2 ssh-rsa BBBB"}, lines)
}

func TestPostgresStorage_ReadHostKeyLines_QueryError(t *testing.T) {
	db := &mockDB{}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	s := NewPostgresStorage(db, "default")
	_, err := s.ReadHostKeyLines()

	var storageErr *Error
	require.Error(t, err)
	assert.ErrorAs(t, err, &storageErr)
}
