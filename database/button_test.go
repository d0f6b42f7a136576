package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
)

func TestCreateButtonsSkipsReservedAndDuplicates(t *testing.T) {
	instance, mock := newMockInstance(t)

	parentID := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT text FROM buttons WHERE parent_id IS NOT DISTINCT FROM \$1`).
		WithArgs(&parentID).
		WillReturnRows(sqlmock.NewRows([]string{"text"}).AddRow("موجود"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("order"\), -1\) \+ 1 FROM buttons`).
		WithArgs(&parentID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO buttons`).
		WithArgs("جديد", &parentID, 1).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	summary, err := instance.CreateButtons(&parentID, []string{
		"جديد",
		"موجود",
		keyboard.LabelMainMenu,
		"  ",
	})
	if err != nil {
		t.Fatalf("CreateButtons: %v", err)
	}

	if summary.Added != 1 {
		t.Fatalf("Added = %d; want 1", summary.Added)
	}
	if len(summary.Skipped) != 2 {
		t.Fatalf("Skipped = %+v; want 2 entries", summary.Skipped)
	}
	if summary.Skipped[0].Reason != model.SkipDuplicate || summary.Skipped[0].Name != "موجود" {
		t.Fatalf("unexpected first skip: %+v", summary.Skipped[0])
	}
	if summary.Skipped[1].Reason != model.SkipReserved {
		t.Fatalf("unexpected second skip: %+v", summary.Skipped[1])
	}
	expectationsMet(t, mock)
}

func TestRenameButtonRejectsSiblingDuplicate(t *testing.T) {
	instance, mock := newMockInstance(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(5), "مكرر").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := instance.RenameButton(5, "مكرر")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v; want ErrDuplicateName", err)
	}
	expectationsMet(t, mock)
}

func TestRenameButton(t *testing.T) {
	instance, mock := newMockInstance(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(5), "حر").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE buttons SET text = \$2 WHERE id = \$1`).
		WithArgs(int64(5), "حر").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := instance.RenameButton(5, "حر"); err != nil {
		t.Fatalf("RenameButton: %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeepDeleteButtonDeletesBottomUp(t *testing.T) {
	instance, mock := newMockInstance(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT parent_id FROM buttons WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(nil))
	// Level walk: root -> children -> none.
	mock.ExpectQuery(`SELECT id FROM buttons WHERE parent_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3))
	mock.ExpectQuery(`SELECT id FROM buttons WHERE parent_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`DELETE FROM messages WHERE button_id = ANY\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 4))
	// Children level first, then the root level.
	mock.ExpectExec(`DELETE FROM buttons WHERE id = ANY\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM buttons WHERE id = ANY\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE buttons b SET "order" = ranked.rn - 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := instance.DeepDeleteButton(1); err != nil {
		t.Fatalf("DeepDeleteButton: %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeepDeleteButtonRollsBackOnFailure(t *testing.T) {
	instance, mock := newMockInstance(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT parent_id FROM buttons WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(nil))
	mock.ExpectQuery(`SELECT id FROM buttons WHERE parent_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`DELETE FROM messages WHERE button_id = ANY\(\$1\)`).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if err := instance.DeepDeleteButton(1); err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

func TestMoveButtonsSkipsSelfTargetAndDuplicate(t *testing.T) {
	instance, mock := newMockInstance(t)

	destID := int64(9)
	columns := []string{"id", "text", "parent_id", "order", "is_full_width", "admin_only"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT text FROM buttons WHERE parent_id IS NOT DISTINCT FROM \$1`).
		WithArgs(&destID).
		WillReturnRows(sqlmock.NewRows([]string{"text"}).AddRow("مكرر"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("order"\), -1\) \+ 1 FROM buttons`).
		WithArgs(&destID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))

	// First ref: the destination lies inside its own subtree.
	mock.ExpectQuery(`SELECT \* FROM buttons WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(2, "ذاتي", nil, 0, false, false))
	mock.ExpectQuery(`WITH RECURSIVE subtree`).
		WithArgs(int64(2), destID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	// Second ref: destination already carries the label.
	mock.ExpectQuery(`SELECT \* FROM buttons WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(3, "مكرر", nil, 1, false, false))
	mock.ExpectQuery(`WITH RECURSIVE subtree`).
		WithArgs(int64(3), destID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	// Third ref moves.
	mock.ExpectQuery(`SELECT \* FROM buttons WHERE id = \$1`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(4, "سليم", 7, 2, false, false))
	mock.ExpectQuery(`WITH RECURSIVE subtree`).
		WithArgs(int64(4), destID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE buttons SET parent_id = \$2, "order" = \$3 WHERE id = \$1`).
		WithArgs(int64(4), &destID, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Vacated parent then destination get renumbered.
	mock.ExpectExec(`UPDATE buttons b SET "order" = ranked.rn - 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE buttons b SET "order" = ranked.rn - 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	summary, err := instance.MoveButtons([]model.ButtonRef{
		{ID: 2, Text: "ذاتي"},
		{ID: 3, Text: "مكرر"},
		{ID: 4, Text: "سليم"},
	}, &destID)
	if err != nil {
		t.Fatalf("MoveButtons: %v", err)
	}

	if summary.Moved != 1 {
		t.Fatalf("Moved = %d; want 1", summary.Moved)
	}
	if len(summary.Skipped) != 2 {
		t.Fatalf("Skipped = %+v; want 2 entries", summary.Skipped)
	}
	if summary.Skipped[0].Reason != model.SkipSelfTarget || summary.Skipped[1].Reason != model.SkipDuplicate {
		t.Fatalf("unexpected skip reasons: %+v", summary.Skipped)
	}
	expectationsMet(t, mock)
}

func TestAddDefaultButtonsInsertsFullWidthRows(t *testing.T) {
	instance, mock := newMockInstance(t)

	parentID := int64(4)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT text FROM buttons WHERE parent_id IS NOT DISTINCT FROM \$1`).
		WithArgs(&parentID).
		WillReturnRows(sqlmock.NewRows([]string{"text"}))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("order"\), -1\) \+ 1 FROM buttons`).
		WithArgs(&parentID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	// Each default button takes a full keyboard row of its own.
	mock.ExpectExec(`VALUES \(\$1, \$2, \$3, true, false\)`).
		WithArgs("افتراضي", parentID, 0).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	added, err := instance.AddDefaultButtons([]string{"افتراضي"}, []model.ButtonRef{{ID: parentID, Text: "هدف"}})
	if err != nil {
		t.Fatalf("AddDefaultButtons: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d; want 1", added)
	}
	expectationsMet(t, mock)
}

func TestImportButtonsInsertsFullWidthRows(t *testing.T) {
	instance, mock := newMockInstance(t)

	parentID := int64(2)
	unit := model.TransferUnit{
		Name:    "مستورد",
		Content: []model.MessageDraft{{Type: model.MessageText, Content: "نص"}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT text FROM buttons WHERE parent_id IS NOT DISTINCT FROM \$1`).
		WithArgs(&parentID).
		WillReturnRows(sqlmock.NewRows([]string{"text"}))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("order"\), -1\) \+ 1 FROM buttons`).
		WithArgs(&parentID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery(`VALUES \(\$1, \$2, \$3, true, false\) RETURNING id`).
		WithArgs("مستورد", &parentID, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(int64(12), 0, unit.Content[0].Type, unit.Content[0].Content, "", unit.Content[0].Entities).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := instance.ImportButtons(&parentID, []model.TransferUnit{unit}); err != nil {
		t.Fatalf("ImportButtons: %v", err)
	}
	expectationsMet(t, mock)
}

func TestReorderSiblings(t *testing.T) {
	instance, mock := newMockInstance(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE buttons SET "order" = \$2, is_full_width = \$3 WHERE id = \$1`).
		WithArgs(int64(1), 0, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE buttons SET "order" = \$2, is_full_width = \$3 WHERE id = \$1`).
		WithArgs(int64(2), 1, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := instance.ReorderSiblings([]keyboard.Placement{
		{ID: 1, Order: 0, IsFullWidth: false},
		{ID: 2, Order: 1, IsFullWidth: true},
	})
	if err != nil {
		t.Fatalf("ReorderSiblings: %v", err)
	}
	expectationsMet(t, mock)
}
