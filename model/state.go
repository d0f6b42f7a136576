package model

import (
	"database/sql/driver"
	"encoding/json"
)

// State is the per-user conversation state. Every inbound event is first
// routed on it; only the base states fall through to label routing.
type State string

const (
	StateNormal         State = "NORMAL"
	StateEditingButtons State = "EDITING_BUTTONS"
	StateEditingContent State = "EDITING_CONTENT"

	// Button tree editing.
	StateAwaitingNewButtonName State = "AWAITING_NEW_BUTTON_NAME"
	StateAwaitingRename        State = "AWAITING_RENAME"
	StateAwaitingDeleteConfirm State = "AWAITING_DELETE_CONFIRMATION"

	// Content editing.
	StateAwaitingBulkMessages    State = "AWAITING_BULK_MESSAGES"
	StateAwaitingNewMessage      State = "AWAITING_NEW_MESSAGE"
	StateAwaitingEditedText      State = "AWAITING_EDITED_TEXT"
	StateAwaitingNewCaption      State = "AWAITING_NEW_CAPTION"
	StateAwaitingReplacementFile State = "AWAITING_REPLACEMENT_FILE"

	// Move/copy wizard.
	StateSelectingButtons    State = "SELECTING_BUTTONS"
	StateAwaitingDestination State = "AWAITING_DESTINATION"

	// Default-buttons fan-out wizard.
	StateAwaitingDefaultNames State = "AWAITING_DEFAULT_BUTTON_NAMES"
	StateSelectingTargets     State = "SELECTING_TARGETS_FOR_DEFAULT"

	// Import-by-forwarding wizard.
	StateDynamicTransfer State = "DYNAMIC_TRANSFER"

	// Mass send.
	StateAwaitingBroadcastMessages State = "AWAITING_BROADCAST_MESSAGES"
	StateAwaitingBroadcast         State = "AWAITING_BROADCAST"

	// Pinned alert setup.
	StateAwaitingAlertMessages State = "AWAITING_ALERT_MESSAGES"
	StateAwaitingAlertDuration State = "AWAITING_ALERT_DURATION"

	// Admin roster management.
	StateAwaitingAdminIDToAdd    State = "AWAITING_ADMIN_ID_TO_ADD"
	StateAwaitingAdminIDToRemove State = "AWAITING_ADMIN_ID_TO_REMOVE"
	StateAwaitingAddAdminConfirm State = "AWAITING_ADD_ADMIN_CONFIRMATION"
	StateAwaitingRemAdminConfirm State = "AWAITING_REMOVE_ADMIN_CONFIRMATION"

	StateAwaitingWelcomeMessage State = "AWAITING_WELCOME_MESSAGE"

	// User-to-admin contact relay.
	StateAwaitingBatchNumber State = "AWAITING_BATCH_NUMBER"
	StateContactingAdmin     State = "CONTACTING_ADMIN"
	StateReplyingToAdmin     State = "REPLYING_TO_ADMIN"
	StateAwaitingAdminReply  State = "AWAITING_ADMIN_REPLY"
)

// TransferStep is the sub-step of the DYNAMIC_TRANSFER wizard.
type TransferStep string

const (
	StepAwaitingButtonSource  TransferStep = "AWAITING_BUTTON_SOURCE"
	StepAwaitingContentSource TransferStep = "AWAITING_CONTENT_SOURCE"
	StepAwaitingNextButton    TransferStep = "AWAITING_NEXT_BUTTON"
	StepAwaitingContent       TransferStep = "AWAITING_CONTENT"
)

// StateData is the wizard payload scoped to the active state: one typed
// variant per wizard family, stored as a JSONB column. A state handler only
// ever touches its own variant; entering a base state resets the whole value.
type StateData struct {
	// Double-click tracking in EDITING_BUTTONS.
	LastClickedButtonID int64 `json:"lastClickedButtonId,omitempty"`

	// Message ids of the edit-mode view, deleted on refresh.
	MessageViewIDs []int `json:"messageViewIds,omitempty"`

	Target    *MessageTarget `json:"target,omitempty"`
	Collect   *Collection    `json:"collect,omitempty"`
	Selection *Selection     `json:"selection,omitempty"`
	Transfer  *Transfer      `json:"transfer,omitempty"`
	Contact   *Contact       `json:"contact,omitempty"`
	Admin     *AdminTarget   `json:"admin,omitempty"`
}

// MessageTarget locates the message (or button) a single-shot edit state
// operates on.
type MessageTarget struct {
	ButtonID   int64  `json:"buttonId"`
	ButtonName string `json:"buttonName,omitempty"`
	MessageID  int64  `json:"messageId,omitempty"`
	// Insert position for insert-after; nil appends at the end.
	TargetOrder *int `json:"targetOrder,omitempty"`
}

// Collection accumulates one inbound item per turn for the bulk-add,
// broadcast and alert wizards.
type Collection struct {
	ButtonID   int64          `json:"buttonId,omitempty"`
	Messages   []MessageDraft `json:"messages,omitempty"`
	AlertItems []AlertItem    `json:"alertItems,omitempty"`
}

// Selection drives the move/copy and default-buttons wizards.
type Selection struct {
	// "move" or "copy".
	Action       string      `json:"action,omitempty"`
	Buttons      []ButtonRef `json:"buttons,omitempty"`
	DefaultNames []string    `json:"defaultNames,omitempty"`
	Targets      []ButtonRef `json:"targets,omitempty"`
}

// Toggle adds the ref when absent and removes it when present,
// reporting whether it is now selected.
func toggleRef(refs []ButtonRef, ref ButtonRef) ([]ButtonRef, bool) {
	for i, r := range refs {
		if r.ID == ref.ID {
			return append(refs[:i], refs[i+1:]...), false
		}
	}
	return append(refs, ref), true
}

func (s *Selection) ToggleButton(ref ButtonRef) bool {
	var selected bool
	s.Buttons, selected = toggleRef(s.Buttons, ref)
	return selected
}

func (s *Selection) ToggleTarget(ref ButtonRef) bool {
	var selected bool
	s.Targets, selected = toggleRef(s.Targets, ref)
	return selected
}

func (s *Selection) ButtonSelected(id int64) bool {
	return refSelected(s.Buttons, id)
}

func (s *Selection) TargetSelected(id int64) bool {
	return refSelected(s.Targets, id)
}

func refSelected(refs []ButtonRef, id int64) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Transfer is the import-by-forwarding wizard payload. The two source
// identities are origin chat/user ids extracted from forwards; incoming
// forwards are routed by matching their origin against them.
type Transfer struct {
	Step            TransferStep   `json:"step"`
	ButtonSourceID  int64          `json:"buttonSourceId,omitempty"`
	ContentSourceID int64          `json:"contentSourceId,omitempty"`
	Completed       []TransferUnit `json:"completed,omitempty"`
	Current         *TransferUnit  `json:"current,omitempty"`
}

// TransferUnit is one (button name, content list) pair built up during a
// dynamic transfer. Empty content is a valid unit.
type TransferUnit struct {
	Name    string         `json:"name"`
	Content []MessageDraft `json:"content"`
}

// Contact carries the relay flow participants.
type Contact struct {
	BatchNumber string `json:"batchNumber,omitempty"`
	// User the admin is replying to.
	TargetUserID int64 `json:"targetUserId,omitempty"`
	// Admin the user is replying to.
	TargetAdminID int64 `json:"targetAdminId,omitempty"`
}

// AdminTarget is the pending admin add/remove confirmation payload.
type AdminTarget struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (d StateData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *StateData) Scan(src interface{}) error {
	*d = StateData{}
	return scanJSON(src, d, "state data")
}
