package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"menubot/model"
)

func (i *Instance) MessagesByButton(buttonID int64) ([]model.Message, error) {
	var result []model.Message
	err := i.db.Select(
		&result,
		`SELECT * FROM messages WHERE button_id = $1 ORDER BY "order", id`,
		buttonID,
	)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (i *Instance) GetMessage(id int64) (*model.Message, error) {
	var result model.Message
	err := i.db.Get(
		&result,
		`SELECT * FROM messages WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// AppendMessages stores the drafts at the end of the button's content, in
// the given order.
func (i *Instance) AppendMessages(buttonID int64, drafts []model.MessageDraft) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		order, err := nextMessageOrder(tx, buttonID)
		if err != nil {
			return err
		}

		for _, draft := range drafts {
			if err := insertMessage(tx, buttonID, order, draft); err != nil {
				return err
			}
			order++
		}
		return nil
	})
}

// InsertMessageAt places the draft at targetOrder, shifting everything at or
// after that position down by one. A nil targetOrder appends at the end.
func (i *Instance) InsertMessageAt(buttonID int64, draft model.MessageDraft, targetOrder *int) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		if targetOrder == nil {
			order, err := nextMessageOrder(tx, buttonID)
			if err != nil {
				return err
			}
			return insertMessage(tx, buttonID, order, draft)
		}

		var shifting []int64
		err := tx.Select(
			&shifting,
			`SELECT id FROM messages WHERE button_id = $1 AND "order" >= $2 ORDER BY "order" DESC, id DESC`,
			buttonID,
			*targetOrder,
		)
		if err != nil {
			return err
		}

		// Highest order first so the shift never collides with a row that
		// has not moved yet.
		for _, id := range shifting {
			_, err := tx.Exec(`UPDATE messages SET "order" = "order" + 1 WHERE id = $1`, id)
			if err != nil {
				return errors.Wrapf(err, "cannot shift message %d", id)
			}
		}

		return insertMessage(tx, buttonID, *targetOrder, draft)
	})
}

// UpdateMessage replaces the stored content in place, keeping the position.
func (i *Instance) UpdateMessage(id int64, draft model.MessageDraft) error {
	_, err := i.db.Exec(
		`UPDATE messages SET type = $2, content = $3, caption = $4, entities = $5 WHERE id = $1`,
		id,
		draft.Type,
		draft.Content,
		draft.Caption,
		draft.Entities,
	)
	return err
}

func (i *Instance) UpdateCaption(id int64, caption string, entities model.Entities) error {
	_, err := i.db.Exec(
		`UPDATE messages SET caption = $2, entities = $3 WHERE id = $1`,
		id,
		caption,
		entities,
	)
	return err
}

// DeleteMessage removes one message and closes the order gap it leaves.
func (i *Instance) DeleteMessage(id int64) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		var deleted model.Message
		if err := tx.Get(&deleted, `SELECT * FROM messages WHERE id = $1`, id); err != nil {
			return errors.Wrap(err, "cannot load message to delete")
		}

		if _, err := tx.Exec(`DELETE FROM messages WHERE id = $1`, id); err != nil {
			return errors.Wrap(err, "cannot delete message")
		}

		var following []int64
		err := tx.Select(
			&following,
			`SELECT id FROM messages WHERE button_id = $1 AND "order" > $2 ORDER BY "order", id`,
			deleted.ButtonID,
			deleted.Order,
		)
		if err != nil {
			return err
		}

		for _, fid := range following {
			_, err := tx.Exec(`UPDATE messages SET "order" = "order" - 1 WHERE id = $1`, fid)
			if err != nil {
				return errors.Wrapf(err, "cannot close order gap at message %d", fid)
			}
		}
		return nil
	})
}

// SwapMessages exchanges the positions of two messages of one button. A
// sentinel order parks the first row so the rewrite never has two rows on
// the same position.
func (i *Instance) SwapMessages(a, b model.Message) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`UPDATE messages SET "order" = -1 WHERE id = $1`, a.ID); err != nil {
			return errors.Wrap(err, "cannot park first message")
		}
		if _, err := tx.Exec(`UPDATE messages SET "order" = $2 WHERE id = $1`, b.ID, a.Order); err != nil {
			return errors.Wrap(err, "cannot reposition second message")
		}
		if _, err := tx.Exec(`UPDATE messages SET "order" = $2 WHERE id = $1`, a.ID, b.Order); err != nil {
			return errors.Wrap(err, "cannot reposition first message")
		}
		return nil
	})
}

func (i *Instance) HasMessages(buttonID int64) (bool, error) {
	var result bool
	err := i.db.Get(
		&result,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE button_id = $1)`,
		buttonID,
	)
	return result, err
}

func insertMessage(tx *sqlx.Tx, buttonID int64, order int, draft model.MessageDraft) error {
	_, err := tx.Exec(
		`INSERT INTO messages (button_id, "order", type, content, caption, entities)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		buttonID,
		order,
		draft.Type,
		draft.Content,
		draft.Caption,
		draft.Entities,
	)
	return errors.Wrap(err, "cannot insert message")
}

func nextMessageOrder(tx *sqlx.Tx, buttonID int64) (int, error) {
	var order int
	err := tx.Get(
		&order,
		`SELECT COALESCE(MAX("order"), -1) + 1 FROM messages WHERE button_id = $1`,
		buttonID,
	)
	return order, err
}
