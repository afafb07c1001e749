package directory

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceUserCacheServesSecondLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	// One DB round trip expected for two loads.
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(7), "alice", "alice@example.com", "admin", true, now, now))

	svc := NewService(NewStore(db), 16, time.Minute)

	first, err := svc.UserByID(context.Background(), 7)
	require.NoError(t, err)
	second, err := svc.UserByID(context.Background(), 7)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, second.IsAdmin())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceInvalidateUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := func(role string) *sqlmock.Rows {
		return sqlmock.NewRows(userColumns()).
			AddRow(int64(7), "alice", "alice@example.com", role, true, now, now)
	}
	mock.ExpectQuery("SELECT (.+) FROM users").WithArgs(int64(7)).WillReturnRows(rows("user"))
	mock.ExpectQuery("SELECT (.+) FROM users").WithArgs(int64(7)).WillReturnRows(rows("leader"))

	svc := NewService(NewStore(db), 16, time.Minute)

	user, err := svc.UserByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, user.Role)

	svc.InvalidateUser(7)

	user, err = svc.UserByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, RoleLeader, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceCacheDisabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(userColumns()).
				AddRow(int64(7), "alice", "alice@example.com", "user", true, now, now))
	}

	svc := NewService(NewStore(db), 0, 0)

	_, err = svc.UserByID(context.Background(), 7)
	require.NoError(t, err)
	_, err = svc.UserByID(context.Background(), 7)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
