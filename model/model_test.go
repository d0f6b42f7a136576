package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestPathTail(t *testing.T) {
	tests := []struct {
		path string
		id   int64
		ok   bool
	}{
		{PathRoot, 0, false},
		{PathSupervision, 0, false},
		{"", 0, false},
		{"root/5", 5, true},
		{"root/5/12", 12, true},
	}
	for _, tt := range tests {
		id, ok := PathTail(tt.path)
		if id != tt.id || ok != tt.ok {
			t.Fatalf("PathTail(%q) = %d,%v; want %d,%v", tt.path, id, ok, tt.id, tt.ok)
		}
	}
}

func TestPathParentID(t *testing.T) {
	if PathParentID(PathRoot) != nil {
		t.Fatal("root must map to nil parent")
	}
	if got := PathParentID("root/7"); got == nil || *got != 7 {
		t.Fatalf("PathParentID(root/7) = %v; want 7", got)
	}
}

func TestPathPushPop(t *testing.T) {
	path := PathPush(PathRoot, 3)
	if path != "root/3" {
		t.Fatalf("PathPush = %q", path)
	}
	path = PathPush(path, 9)
	if path != "root/3/9" {
		t.Fatalf("PathPush = %q", path)
	}

	if got := PathPop(path); got != "root/3" {
		t.Fatalf("PathPop(%q) = %q", path, got)
	}
	if got := PathPop("root/3"); got != PathRoot {
		t.Fatalf("PathPop(root/3) = %q", got)
	}
	if got := PathPop(PathRoot); got != PathRoot {
		t.Fatalf("PathPop(root) = %q", got)
	}
	if got := PathPop(PathSupervision); got != PathRoot {
		t.Fatalf("PathPop(supervision) = %q", got)
	}
}

func TestAlertActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	empty := &Settings{ID: 1}
	if empty.AlertActive(now) {
		t.Fatal("empty settings must not report an active alert")
	}

	active := &Settings{
		ID:                 1,
		AlertMessage:       AlertItems{{FromChatID: 1, MessageID: 2}},
		AlertSetAt:         pq.NullTime{Time: now.Add(-time.Hour), Valid: true},
		AlertDurationHours: sql.NullInt64{Int64: 6, Valid: true},
	}
	if !active.AlertActive(now) {
		t.Fatal("alert inside its window must be active")
	}

	expired := &Settings{
		ID:                 1,
		AlertMessage:       AlertItems{{FromChatID: 1, MessageID: 2}},
		AlertSetAt:         pq.NullTime{Time: now.Add(-7 * time.Hour), Valid: true},
		AlertDurationHours: sql.NullInt64{Int64: 6, Valid: true},
	}
	if expired.AlertActive(now) {
		t.Fatal("alert past its window must be inactive")
	}
}

func TestStateDataRoundTrip(t *testing.T) {
	order := 4
	in := StateData{
		LastClickedButtonID: 11,
		MessageViewIDs:      []int{100, 101},
		Target:              &MessageTarget{ButtonID: 5, ButtonName: "قسم", MessageID: 42, TargetOrder: &order},
		Selection: &Selection{
			Action:  "move",
			Buttons: []ButtonRef{{ID: 1, Text: "أ"}, {ID: 2, Text: "ب"}},
		},
		Transfer: &Transfer{
			Step:           StepAwaitingContent,
			ButtonSourceID: -100123,
			Current:        &TransferUnit{Name: "زر", Content: []MessageDraft{{Type: MessageText, Content: "مرحبا"}}},
		},
		Contact: &Contact{BatchNumber: "12", TargetAdminID: 77},
	}

	value, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out StateData
	if err := out.Scan(value); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if out.LastClickedButtonID != 11 || len(out.MessageViewIDs) != 2 {
		t.Fatalf("base fields lost: %+v", out)
	}
	if out.Target == nil || out.Target.TargetOrder == nil || *out.Target.TargetOrder != 4 {
		t.Fatalf("target lost: %+v", out.Target)
	}
	if out.Selection == nil || len(out.Selection.Buttons) != 2 || out.Selection.Action != "move" {
		t.Fatalf("selection lost: %+v", out.Selection)
	}
	if out.Transfer == nil || out.Transfer.Current == nil || out.Transfer.Current.Name != "زر" {
		t.Fatalf("transfer lost: %+v", out.Transfer)
	}
	if out.Contact == nil || out.Contact.BatchNumber != "12" {
		t.Fatalf("contact lost: %+v", out.Contact)
	}
}

func TestSelectionToggle(t *testing.T) {
	s := &Selection{}

	if !s.ToggleButton(ButtonRef{ID: 1, Text: "أ"}) {
		t.Fatal("first toggle must select")
	}
	if !s.ButtonSelected(1) {
		t.Fatal("id 1 must be selected")
	}
	if s.ToggleButton(ButtonRef{ID: 1, Text: "أ"}) {
		t.Fatal("second toggle must deselect")
	}
	if s.ButtonSelected(1) {
		t.Fatal("id 1 must be deselected")
	}

	s.ToggleTarget(ButtonRef{ID: 2, Text: "ب"})
	if !s.TargetSelected(2) || s.TargetSelected(3) {
		t.Fatal("target toggling broken")
	}
}
