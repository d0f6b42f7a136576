package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"menubot/model"
)

func newMockInstance(t *testing.T) (*Instance, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("cannot open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewInstance(sqlx.NewDb(db, "sqlmock")), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSwapMessages(t *testing.T) {
	instance, mock := newMockInstance(t)

	a := model.Message{ID: 10, ButtonID: 1, Order: 0}
	b := model.Message{ID: 11, ButtonID: 1, Order: 1}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE messages SET "order" = -1 WHERE id = \$1`).
		WithArgs(a.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messages SET "order" = \$2 WHERE id = \$1`).
		WithArgs(b.ID, a.Order).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messages SET "order" = \$2 WHERE id = \$1`).
		WithArgs(a.ID, b.Order).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := instance.SwapMessages(a, b); err != nil {
		t.Fatalf("SwapMessages: %v", err)
	}
	expectationsMet(t, mock)
}

func TestSwapMessagesRollsBackOnFailure(t *testing.T) {
	instance, mock := newMockInstance(t)

	a := model.Message{ID: 10, ButtonID: 1, Order: 0}
	b := model.Message{ID: 11, ButtonID: 1, Order: 1}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE messages SET "order" = -1 WHERE id = \$1`).
		WithArgs(a.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messages SET "order" = \$2 WHERE id = \$1`).
		WithArgs(b.ID, a.Order).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if err := instance.SwapMessages(a, b); err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

func TestInsertMessageAtShiftsFollowers(t *testing.T) {
	instance, mock := newMockInstance(t)

	target := 1
	draft := model.MessageDraft{Type: model.MessageText, Content: "مرحبا"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM messages WHERE button_id = \$1 AND "order" >= \$2`).
		WithArgs(int64(5), target).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31).AddRow(30))
	mock.ExpectExec(`UPDATE messages SET "order" = "order" \+ 1 WHERE id = \$1`).
		WithArgs(int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messages SET "order" = "order" \+ 1 WHERE id = \$1`).
		WithArgs(int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(int64(5), target, draft.Type, draft.Content, draft.Caption, draft.Entities).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := instance.InsertMessageAt(5, draft, &target); err != nil {
		t.Fatalf("InsertMessageAt: %v", err)
	}
	expectationsMet(t, mock)
}

func TestInsertMessageAtAppendsWithoutTarget(t *testing.T) {
	instance, mock := newMockInstance(t)

	draft := model.MessageDraft{Type: model.MessageText, Content: "مرحبا"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("order"\), -1\) \+ 1 FROM messages`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(int64(5), 3, draft.Type, draft.Content, draft.Caption, draft.Entities).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := instance.InsertMessageAt(5, draft, nil); err != nil {
		t.Fatalf("InsertMessageAt: %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeleteMessageClosesGap(t *testing.T) {
	instance, mock := newMockInstance(t)

	columns := []string{"id", "button_id", "order", "type", "content", "caption", "entities"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM messages WHERE id = \$1`).
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(20, 5, 1, "text", "x", "", nil))
	mock.ExpectExec(`DELETE FROM messages WHERE id = \$1`).
		WithArgs(int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM messages WHERE button_id = \$1 AND "order" > \$2`).
		WithArgs(int64(5), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21).AddRow(22))
	mock.ExpectExec(`UPDATE messages SET "order" = "order" - 1 WHERE id = \$1`).
		WithArgs(int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messages SET "order" = "order" - 1 WHERE id = \$1`).
		WithArgs(int64(22)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := instance.DeleteMessage(20); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	expectationsMet(t, mock)
}

func TestAppendMessagesNumbersSequentially(t *testing.T) {
	instance, mock := newMockInstance(t)

	drafts := []model.MessageDraft{
		{Type: model.MessageText, Content: "أولى"},
		{Type: model.MessageText, Content: "ثانية"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("order"\), -1\) \+ 1 FROM messages`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(int64(7), 2, drafts[0].Type, drafts[0].Content, "", drafts[0].Entities).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(int64(7), 3, drafts[1].Type, drafts[1].Content, "", drafts[1].Entities).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := instance.AppendMessages(7, drafts); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	expectationsMet(t, mock)
}
