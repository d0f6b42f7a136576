package database

import (
	"database/sql"

	"menubot/model"
)

// UpsertUser registers a first contact or, for a returning user, resets the
// conversation to the base state and refreshes the admin flag.
func (i *Instance) UpsertUser(user *model.User) (*model.User, error) {
	rows, err := i.db.NamedQuery(
		`INSERT INTO users (id, chat_id, is_admin, banned, current_path, state, state_data, last_active)
		 VALUES (:id, :chat_id, :is_admin, false, 'root', 'NORMAL', '{}', NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET chat_id = EXCLUDED.chat_id,
		     is_admin = EXCLUDED.is_admin,
		     current_path = 'root',
		     state = 'NORMAL',
		     state_data = '{}',
		     last_active = NOW()
		 RETURNING *`,
		user,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		var result model.User
		if err := rows.StructScan(&result); err != nil {
			return nil, err
		}
		return &result, nil
	}

	return nil, sql.ErrNoRows
}

// UserExists is checked before the upsert so first contacts can be announced
// to the admins.
func (i *Instance) UserExists(id int64) (bool, error) {
	var exists bool
	err := i.db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id)
	return exists, err
}

func (i *Instance) GetUser(id int64) (*model.User, error) {
	var result model.User
	err := i.db.Get(
		&result,
		`SELECT * FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (i *Instance) UpdateState(id int64, state model.State, data model.StateData) error {
	_, err := i.db.Exec(
		`UPDATE users SET state = $2, state_data = $3 WHERE id = $1`,
		id,
		state,
		data,
	)
	return err
}

func (i *Instance) UpdateStateData(id int64, data model.StateData) error {
	_, err := i.db.Exec(
		`UPDATE users SET state_data = $2 WHERE id = $1`,
		id,
		data,
	)
	return err
}

func (i *Instance) UpdatePath(id int64, path string) error {
	_, err := i.db.Exec(
		`UPDATE users SET current_path = $2 WHERE id = $1`,
		id,
		path,
	)
	return err
}

func (i *Instance) TouchLastActive(id int64) error {
	_, err := i.db.Exec(
		`UPDATE users SET last_active = NOW() WHERE id = $1`,
		id,
	)
	return err
}

func (i *Instance) SetBanned(id int64, banned bool) error {
	_, err := i.db.Exec(
		`UPDATE users SET banned = $2 WHERE id = $1`,
		id,
		banned,
	)
	return err
}

func (i *Instance) SetAdmin(id int64, isAdmin bool) error {
	_, err := i.db.Exec(
		`UPDATE users SET is_admin = $2 WHERE id = $1`,
		id,
		isAdmin,
	)
	return err
}

// AdminIDs returns the allow-list in stable id order; the relay flows use
// the position as the admin's public number.
func (i *Instance) AdminIDs() ([]int64, error) {
	var ids []int64
	err := i.db.Select(&ids, `SELECT id FROM users WHERE is_admin = true ORDER BY id`)
	return ids, err
}

func (i *Instance) BannedIDs() ([]int64, error) {
	var ids []int64
	err := i.db.Select(&ids, `SELECT id FROM users WHERE banned = true ORDER BY id`)
	return ids, err
}

// RecipientIDs lists everyone a broadcast may reach.
func (i *Instance) RecipientIDs() ([]int64, error) {
	var ids []int64
	err := i.db.Select(&ids, `SELECT id FROM users WHERE banned = false ORDER BY id`)
	return ids, err
}

func (i *Instance) CountUsers() (int, error) {
	var count int
	err := i.db.Get(&count, `SELECT COUNT(*) FROM users`)
	return count, err
}

func (i *Instance) MarkAlertSeen(id int64, pinnedMessageID int) error {
	_, err := i.db.Exec(
		`UPDATE users SET last_alert_seen_at = NOW(), pinned_alert_id = $2 WHERE id = $1`,
		id,
		pinnedMessageID,
	)
	return err
}
