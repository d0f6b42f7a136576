package database

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
)

// ButtonsByParent lists one sibling set in layout order. parentID nil selects
// the top level.
func (i *Instance) ButtonsByParent(parentID *int64) ([]model.Button, error) {
	var result []model.Button
	err := i.db.Select(
		&result,
		`SELECT * FROM buttons WHERE parent_id IS NOT DISTINCT FROM $1 ORDER BY "order", id`,
		parentID,
	)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ButtonByLabel resolves an inbound text against one sibling set.
// Returns nil without error when no sibling carries the label.
func (i *Instance) ButtonByLabel(parentID *int64, text string) (*model.Button, error) {
	var result model.Button
	err := i.db.Get(
		&result,
		`SELECT * FROM buttons WHERE parent_id IS NOT DISTINCT FROM $1 AND text = $2`,
		parentID,
		text,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (i *Instance) GetButton(id int64) (*model.Button, error) {
	var result model.Button
	err := i.db.Get(
		&result,
		`SELECT * FROM buttons WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// CreateButtons appends new siblings under parentID. Reserved captions and
// labels already present in the sibling set are skipped and reported, they
// never abort the batch. New buttons are half-width so consecutive additions
// pack two per row.
func (i *Instance) CreateButtons(parentID *int64, names []string) (*model.CreateSummary, error) {
	summary := &model.CreateSummary{}

	err := i.withTx(func(tx *sqlx.Tx) error {
		existing, err := siblingNames(tx, parentID)
		if err != nil {
			return err
		}

		order, err := nextOrder(tx, parentID)
		if err != nil {
			return err
		}

		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if keyboard.IsReserved(name) {
				summary.Skipped = append(summary.Skipped, model.SkippedName{Name: name, Reason: model.SkipReserved})
				continue
			}
			if _, ok := existing[name]; ok {
				summary.Skipped = append(summary.Skipped, model.SkippedName{Name: name, Reason: model.SkipDuplicate})
				continue
			}

			_, err := tx.Exec(
				`INSERT INTO buttons (text, parent_id, "order", is_full_width, admin_only)
				 VALUES ($1, $2, $3, false, false)`,
				name,
				parentID,
				order,
			)
			if err != nil {
				return errors.Wrapf(err, "cannot insert button %q", name)
			}

			existing[name] = struct{}{}
			order++
			summary.Added++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// RenameButton returns ErrDuplicateName when a sibling already carries the
// new name.
func (i *Instance) RenameButton(id int64, newName string) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		var taken bool
		err := tx.Get(
			&taken,
			`SELECT EXISTS(
			     SELECT 1 FROM buttons
			     WHERE parent_id IS NOT DISTINCT FROM (SELECT parent_id FROM buttons WHERE id = $1)
			       AND text = $2 AND id <> $1
			 )`,
			id,
			newName,
		)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateName
		}

		_, err = tx.Exec(`UPDATE buttons SET text = $2 WHERE id = $1`, id, newName)
		return err
	})
}

func (i *Instance) SetAdminOnly(id int64, adminOnly bool) error {
	_, err := i.db.Exec(
		`UPDATE buttons SET admin_only = $2 WHERE id = $1`,
		id,
		adminOnly,
	)
	return err
}

// DeepDeleteButton removes a button with its whole subtree and all attached
// messages. Children go before parents so the tree is never left with
// orphaned rows mid-operation.
func (i *Instance) DeepDeleteButton(id int64) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		parentID, err := buttonParent(tx, id)
		if err != nil {
			return errors.Wrap(err, "cannot load delete target")
		}

		levels, err := subtreeLevels(tx, id)
		if err != nil {
			return err
		}

		var all []int64
		for _, level := range levels {
			all = append(all, level...)
		}

		_, err = tx.Exec(`DELETE FROM messages WHERE button_id = ANY($1)`, pq.Array(all))
		if err != nil {
			return errors.Wrap(err, "cannot delete subtree messages")
		}

		for l := len(levels) - 1; l >= 0; l-- {
			_, err = tx.Exec(`DELETE FROM buttons WHERE id = ANY($1)`, pq.Array(levels[l]))
			if err != nil {
				return errors.Wrap(err, "cannot delete subtree buttons")
			}
		}

		return compactSiblings(tx, parentID)
	})
}

// DeepCopyButton duplicates a button with its subtree and messages under
// destParentID. The copied root lands at the end of the destination sibling
// set; descendants keep their relative layout.
func (i *Instance) DeepCopyButton(sourceID int64, destParentID *int64) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		var source model.Button
		if err := tx.Get(&source, `SELECT * FROM buttons WHERE id = $1`, sourceID); err != nil {
			return errors.Wrap(err, "cannot load copy source")
		}

		order, err := nextOrder(tx, destParentID)
		if err != nil {
			return err
		}

		type copyTask struct {
			source    model.Button
			newParent *int64
			order     int
		}
		stack := []copyTask{{source: source, newParent: destParentID, order: order}}

		for len(stack) > 0 {
			task := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			var newID int64
			err := tx.Get(
				&newID,
				`INSERT INTO buttons (text, parent_id, "order", is_full_width, admin_only)
				 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				task.source.Text,
				task.newParent,
				task.order,
				task.source.IsFullWidth,
				task.source.AdminOnly,
			)
			if err != nil {
				return errors.Wrapf(err, "cannot copy button %d", task.source.ID)
			}

			_, err = tx.Exec(
				`INSERT INTO messages (button_id, "order", type, content, caption, entities)
				 SELECT $1, "order", type, content, caption, entities
				 FROM messages WHERE button_id = $2`,
				newID,
				task.source.ID,
			)
			if err != nil {
				return errors.Wrapf(err, "cannot copy messages of button %d", task.source.ID)
			}

			var children []model.Button
			err = tx.Select(
				&children,
				`SELECT * FROM buttons WHERE parent_id = $1 ORDER BY "order", id`,
				task.source.ID,
			)
			if err != nil {
				return err
			}
			for _, child := range children {
				stack = append(stack, copyTask{source: child, newParent: &newID, order: child.Order})
			}
		}

		return nil
	})
}

// MoveButtons reparents the selected buttons under destParentID. A button is
// skipped when the destination is itself or lies inside its own subtree, or
// when the destination already has a sibling with the same label. Both the
// vacated and the receiving sibling sets are renumbered afterwards.
func (i *Instance) MoveButtons(refs []model.ButtonRef, destParentID *int64) (*model.MoveSummary, error) {
	summary := &model.MoveSummary{}

	err := i.withTx(func(tx *sqlx.Tx) error {
		destNames, err := siblingNames(tx, destParentID)
		if err != nil {
			return err
		}

		order, err := nextOrder(tx, destParentID)
		if err != nil {
			return err
		}

		touched := map[int64]*int64{}

		for _, ref := range refs {
			var button model.Button
			err := tx.Get(&button, `SELECT * FROM buttons WHERE id = $1`, ref.ID)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return err
			}

			invalid, err := destinationInSubtree(tx, button.ID, destParentID)
			if err != nil {
				return err
			}
			if invalid {
				summary.Skipped = append(summary.Skipped, model.SkippedName{Name: button.Text, Reason: model.SkipSelfTarget})
				continue
			}
			if _, ok := destNames[button.Text]; ok {
				summary.Skipped = append(summary.Skipped, model.SkippedName{Name: button.Text, Reason: model.SkipDuplicate})
				continue
			}

			_, err = tx.Exec(
				`UPDATE buttons SET parent_id = $2, "order" = $3 WHERE id = $1`,
				button.ID,
				destParentID,
				order,
			)
			if err != nil {
				return errors.Wrapf(err, "cannot move button %d", button.ID)
			}

			destNames[button.Text] = struct{}{}
			order++
			summary.Moved++

			var oldParent *int64
			if button.ParentID.Valid {
				v := button.ParentID.Int64
				oldParent = &v
			}
			touched[nullableKey(oldParent)] = oldParent
		}

		for _, parent := range touched {
			if err := compactSiblings(tx, parent); err != nil {
				return err
			}
		}
		return compactSiblings(tx, destParentID)
	})
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// ReorderSiblings persists a rewritten layout produced by the keyboard
// package.
func (i *Instance) ReorderSiblings(placements []keyboard.Placement) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		for _, p := range placements {
			_, err := tx.Exec(
				`UPDATE buttons SET "order" = $2, is_full_width = $3 WHERE id = $1`,
				p.ID,
				p.Order,
				p.IsFullWidth,
			)
			if err != nil {
				return errors.Wrapf(err, "cannot reorder button %d", p.ID)
			}
		}
		return nil
	})
}

// AddDefaultButtons creates the named buttons under every target, skipping a
// name wherever the target already has it. Returns how many buttons were
// created across all targets.
func (i *Instance) AddDefaultButtons(names []string, targets []model.ButtonRef) (int, error) {
	var added int

	err := i.withTx(func(tx *sqlx.Tx) error {
		for _, target := range targets {
			parentID := target.ID

			existing, err := siblingNames(tx, &parentID)
			if err != nil {
				return err
			}
			order, err := nextOrder(tx, &parentID)
			if err != nil {
				return err
			}

			for _, name := range names {
				name = strings.TrimSpace(name)
				if name == "" || keyboard.IsReserved(name) {
					continue
				}
				if _, ok := existing[name]; ok {
					continue
				}

				_, err := tx.Exec(
					`INSERT INTO buttons (text, parent_id, "order", is_full_width, admin_only)
					 VALUES ($1, $2, $3, true, false)`,
					name,
					parentID,
					order,
				)
				if err != nil {
					return errors.Wrapf(err, "cannot insert default button %q", name)
				}

				existing[name] = struct{}{}
				order++
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return added, nil
}

// ImportButtons materializes the units collected by the forward-import
// wizard: one new button per unit, with its captured content appended in
// arrival order. Duplicate and reserved names are skipped.
func (i *Instance) ImportButtons(parentID *int64, units []model.TransferUnit) error {
	return i.withTx(func(tx *sqlx.Tx) error {
		existing, err := siblingNames(tx, parentID)
		if err != nil {
			return err
		}
		order, err := nextOrder(tx, parentID)
		if err != nil {
			return err
		}

		for _, unit := range units {
			name := strings.TrimSpace(unit.Name)
			if name == "" || keyboard.IsReserved(name) {
				continue
			}
			if _, ok := existing[name]; ok {
				continue
			}

			var buttonID int64
			err := tx.Get(
				&buttonID,
				`INSERT INTO buttons (text, parent_id, "order", is_full_width, admin_only)
				 VALUES ($1, $2, $3, true, false) RETURNING id`,
				name,
				parentID,
				order,
			)
			if err != nil {
				return errors.Wrapf(err, "cannot import button %q", name)
			}

			for n, draft := range unit.Content {
				_, err := tx.Exec(
					`INSERT INTO messages (button_id, "order", type, content, caption, entities)
					 VALUES ($1, $2, $3, $4, $5, $6)`,
					buttonID,
					n,
					draft.Type,
					draft.Content,
					draft.Caption,
					draft.Entities,
				)
				if err != nil {
					return errors.Wrapf(err, "cannot import content of button %q", name)
				}
			}

			existing[name] = struct{}{}
			order++
		}

		return nil
	})
}

// IsDescendant reports whether id lies inside the subtree rooted at
// ancestorID, the root itself included.
func (i *Instance) IsDescendant(ancestorID, id int64) (bool, error) {
	var result bool
	err := i.db.Get(
		&result,
		`WITH RECURSIVE subtree AS (
		     SELECT id FROM buttons WHERE id = $1
		     UNION ALL
		     SELECT b.id FROM buttons b JOIN subtree s ON b.parent_id = s.id
		 )
		 SELECT EXISTS(SELECT 1 FROM subtree WHERE id = $2)`,
		ancestorID,
		id,
	)
	return result, err
}

func (i *Instance) HasChildren(id int64) (bool, error) {
	var result bool
	err := i.db.Get(
		&result,
		`SELECT EXISTS(SELECT 1 FROM buttons WHERE parent_id = $1)`,
		id,
	)
	return result, err
}

// SubtreeStats counts the descendants of a button and the messages stored on
// the button and its whole subtree.
func (i *Instance) SubtreeStats(id int64) (*model.SubtreeStats, error) {
	var result model.SubtreeStats
	err := i.db.Get(
		&result,
		`WITH RECURSIVE subtree AS (
		     SELECT id FROM buttons WHERE id = $1
		     UNION ALL
		     SELECT b.id FROM buttons b JOIN subtree s ON b.parent_id = s.id
		 )
		 SELECT
		     (SELECT COUNT(*) - 1 FROM subtree) AS deep_sub_button_count,
		     (SELECT COUNT(*) FROM messages WHERE button_id IN (SELECT id FROM subtree)) AS deep_message_count`,
		id,
	)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// destinationInSubtree reports whether moving buttonID under destParentID
// would place it inside its own subtree. A nil destination (top level) is
// always safe.
func destinationInSubtree(tx *sqlx.Tx, buttonID int64, destParentID *int64) (bool, error) {
	if destParentID == nil {
		return false, nil
	}

	var result bool
	err := tx.Get(
		&result,
		`WITH RECURSIVE subtree AS (
		     SELECT id FROM buttons WHERE id = $1
		     UNION ALL
		     SELECT b.id FROM buttons b JOIN subtree s ON b.parent_id = s.id
		 )
		 SELECT EXISTS(SELECT 1 FROM subtree WHERE id = $2)`,
		buttonID,
		*destParentID,
	)
	return result, err
}

// subtreeLevels collects subtree ids grouped by depth, root level first.
func subtreeLevels(tx *sqlx.Tx, rootID int64) ([][]int64, error) {
	levels := [][]int64{{rootID}}

	for {
		var next []int64
		err := tx.Select(
			&next,
			`SELECT id FROM buttons WHERE parent_id = ANY($1) ORDER BY id`,
			pq.Array(levels[len(levels)-1]),
		)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			return levels, nil
		}
		levels = append(levels, next)
	}
}

func siblingNames(tx *sqlx.Tx, parentID *int64) (map[string]struct{}, error) {
	var names []string
	err := tx.Select(
		&names,
		`SELECT text FROM buttons WHERE parent_id IS NOT DISTINCT FROM $1`,
		parentID,
	)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

func nextOrder(tx *sqlx.Tx, parentID *int64) (int, error) {
	var order int
	err := tx.Get(
		&order,
		`SELECT COALESCE(MAX("order"), -1) + 1 FROM buttons WHERE parent_id IS NOT DISTINCT FROM $1`,
		parentID,
	)
	return order, err
}

func buttonParent(tx *sqlx.Tx, id int64) (*int64, error) {
	var parent sql.NullInt64
	err := tx.Get(&parent, `SELECT parent_id FROM buttons WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if !parent.Valid {
		return nil, nil
	}
	v := parent.Int64
	return &v, nil
}

// compactSiblings renumbers one sibling set to a dense 0..n-1 order.
func compactSiblings(tx *sqlx.Tx, parentID *int64) error {
	_, err := tx.Exec(
		`UPDATE buttons b SET "order" = ranked.rn - 1
		 FROM (
		     SELECT id, ROW_NUMBER() OVER (ORDER BY "order", id) AS rn
		     FROM buttons WHERE parent_id IS NOT DISTINCT FROM $1
		 ) ranked
		 WHERE b.id = ranked.id`,
		parentID,
	)
	return errors.Wrap(err, "cannot compact sibling order")
}

func nullableKey(id *int64) int64 {
	if id == nil {
		return -1
	}
	return *id
}
