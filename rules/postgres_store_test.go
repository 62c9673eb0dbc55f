package rules

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var definitionRowColumns = []string{
	"id", "name", "expression", "premium", "active",
	"pass_message", "fail_message", "fail_severity", "created_at", "updated_at",
}

func newMockDefinitionStore(t *testing.T) (*PostgresDefinitionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresDefinitionStore(db), mock
}

func TestPostgresDefinitionStore_Add(t *testing.T) {
	store, mock := newMockDefinitionStore(t)
	d := refundDefinition()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM expression_rules WHERE id = $1)`)).
		WithArgs(d.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO expression_rules`)).
		WithArgs(d.ID, d.Name, d.Expression, false, true,
			d.PassMessage, d.FailMessage, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Add(d))
	assert.False(t, d.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_AddExisting(t *testing.T) {
	store, mock := newMockDefinitionStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("refund-policy").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.Add(refundDefinition())
	assert.ErrorIs(t, err, ErrDefinitionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_AddInsertFailure(t *testing.T) {
	store, mock := newMockDefinitionStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO expression_rules`)).
		WillReturnError(errors.New("connection reset"))

	err := store.Add(refundDefinition())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert rule")
}

func TestPostgresDefinitionStore_Get(t *testing.T) {
	store, mock := newMockDefinitionStore(t)
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM expression_rules WHERE id = $1`)).
		WithArgs("vr-support").
		WillReturnRows(sqlmock.NewRows(definitionRowColumns).
			AddRow("vr-support", "VR Support", `lower.contains("vr")`, true, true,
				"VR support described", "Describe VR support", "fail", created, created))

	d, err := store.Get("vr-support")
	require.NoError(t, err)
	assert.Equal(t, "VR Support", d.Name)
	assert.True(t, d.Premium)
	assert.Equal(t, SeverityFail, d.FailSeverity)
	assert.True(t, d.CreatedAt.Equal(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_GetMissing(t *testing.T) {
	store, mock := newMockDefinitionStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM expression_rules WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(definitionRowColumns))

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestPostgresDefinitionStore_ListActive(t *testing.T) {
	store, mock := newMockDefinitionStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE active = true ORDER BY created_at ASC, id ASC`)).
		WillReturnRows(sqlmock.NewRows(definitionRowColumns).
			AddRow("a", "A", "true", false, true, "", "", "", now, now).
			AddRow("b", "B", "false", false, true, "", "", "warning", now, now))

	defs, err := store.ListActive()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].ID)
	assert.Equal(t, SeverityWarning, defs[1].FailSeverity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_ListQueryError(t *testing.T) {
	store, mock := newMockDefinitionStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM expression_rules ORDER BY`)).
		WillReturnError(errors.New("relation does not exist"))

	_, err := store.List()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list rules")
}

func TestPostgresDefinitionStore_Update(t *testing.T) {
	store, mock := newMockDefinitionStore(t)
	d := refundDefinition()
	d.FailSeverity = SeverityFail

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE expression_rules`)).
		WithArgs(d.Name, d.Expression, false, true, d.PassMessage, d.FailMessage, "fail", sqlmock.AnyArg(), d.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Update(d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_UpdateMissing(t *testing.T) {
	store, mock := newMockDefinitionStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE expression_rules`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Update(refundDefinition()), ErrDefinitionNotFound)
}

func TestPostgresDefinitionStore_Delete(t *testing.T) {
	store, mock := newMockDefinitionStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM expression_rules WHERE id = $1`)).
		WithArgs("refund-policy").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM expression_rules WHERE id = $1`)).
		WithArgs("refund-policy").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete("refund-policy"))
	assert.ErrorIs(t, store.Delete("refund-policy"), ErrDefinitionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
