package datastore

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nightsound/nightsound-go/internal/errors"
)

func newMockStore(t *testing.T) (*DataStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: createGormLogger()})
	require.NoError(t, err)
	return &DataStore{DB: db}, mock
}

func TestSaveSnippetRollsBackOnInsertFailure(t *testing.T) {
	ds, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `sessions` SET `snippet_count`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `snippets`").
		WillReturnError(fmt.Errorf("duplicate entry"))
	mock.ExpectRollback()

	err := ds.SaveSnippet(snippetAt(1, "dup.wav", time.Minute, 0.5))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnippetSkipsInsertForClosedSession(t *testing.T) {
	ds, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `sessions` SET `snippet_count`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ds.SaveSnippet(snippetAt(1, "late.wav", time.Minute, 0.5))
	assert.True(t, errors.Is(err, ErrSessionClosed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionRollsBack(t *testing.T) {
	ds, mock := newMockStore(t)
	end := t0.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `sessions`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "start_time", "end_time"}).AddRow(7, t0, end))
	mock.ExpectQuery("SELECT `file_name` FROM `snippets`").
		WillReturnRows(sqlmock.NewRows([]string{"file_name"}).AddRow("a.wav"))
	mock.ExpectExec("DELETE FROM `snippets`").
		WillReturnError(fmt.Errorf("lock wait timeout"))
	mock.ExpectRollback()

	files, err := ds.DeleteSession(7)
	require.Error(t, err)
	assert.Nil(t, files)
	require.NoError(t, mock.ExpectationsWereMet())
}
