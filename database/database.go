package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
)

// ErrDuplicateName is returned when a rename would collide with a sibling.
var ErrDuplicateName = errors.New("database: sibling with this name already exists")

type IDatabase interface {
	UpsertUser(user *model.User) (*model.User, error)
	UserExists(id int64) (bool, error)
	GetUser(id int64) (*model.User, error)
	UpdateState(id int64, state model.State, data model.StateData) error
	UpdateStateData(id int64, data model.StateData) error
	UpdatePath(id int64, path string) error
	TouchLastActive(id int64) error
	SetBanned(id int64, banned bool) error
	SetAdmin(id int64, isAdmin bool) error
	AdminIDs() ([]int64, error)
	BannedIDs() ([]int64, error)
	RecipientIDs() ([]int64, error)
	CountUsers() (int, error)
	MarkAlertSeen(id int64, pinnedMessageID int) error

	ButtonsByParent(parentID *int64) ([]model.Button, error)
	ButtonByLabel(parentID *int64, text string) (*model.Button, error)
	GetButton(id int64) (*model.Button, error)
	CreateButtons(parentID *int64, names []string) (*model.CreateSummary, error)
	RenameButton(id int64, newName string) error
	SetAdminOnly(id int64, adminOnly bool) error
	DeepDeleteButton(id int64) error
	DeepCopyButton(sourceID int64, destParentID *int64) error
	MoveButtons(refs []model.ButtonRef, destParentID *int64) (*model.MoveSummary, error)
	ReorderSiblings(placements []keyboard.Placement) error
	AddDefaultButtons(names []string, targets []model.ButtonRef) (int, error)
	ImportButtons(parentID *int64, units []model.TransferUnit) error
	IsDescendant(ancestorID, id int64) (bool, error)
	HasChildren(id int64) (bool, error)
	SubtreeStats(id int64) (*model.SubtreeStats, error)

	MessagesByButton(buttonID int64) ([]model.Message, error)
	GetMessage(id int64) (*model.Message, error)
	AppendMessages(buttonID int64, drafts []model.MessageDraft) error
	InsertMessageAt(buttonID int64, draft model.MessageDraft, targetOrder *int) error
	UpdateMessage(id int64, draft model.MessageDraft) error
	UpdateCaption(id int64, caption string, entities model.Entities) error
	DeleteMessage(id int64) error
	SwapMessages(a, b model.Message) error
	HasMessages(buttonID int64) (bool, error)

	GetSettings() (*model.Settings, error)
	SetWelcomeMessage(text string) error
	SetAlert(items []model.AlertItem, durationHours int) error
	ClearAlert() error
	CountAlertSeenSince(t time.Time) (int, error)
	LogButtonClick(buttonID, userID int64) error
	GeneralStats() (*model.GeneralStats, error)
	TopButtons(daily bool) ([]model.ButtonUsage, error)
	UserActivity(userID int64) (*model.UserActivity, error)
	ButtonClickStats(buttonID int64) (*model.ClickStats, error)
	InsertBackgroundJob(jobType string, data interface{}, userID int64) (int64, error)
	RollupLifetimeStats(olderThan time.Time) (int64, error)
}

type Instance struct {
	db *sqlx.DB
}

func NewInstance(db *sqlx.DB) *Instance {
	return &Instance{db: db}
}

// withTx runs fn inside a transaction: committed when fn returns nil,
// rolled back otherwise. Every multi-step mutation goes through here so a
// mid-operation failure never leaves a partial state visible.
func (i *Instance) withTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := i.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "cannot begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "cannot commit transaction")
}
