// Package keyboard holds the pure reply-keyboard layout model: 2-column row
// packing of sibling buttons, directional reorder over the packed rows, and
// flattening back to a dense order sequence. The handler renders labels and
// the store persists placements; neither reimplements the packing rules.
package keyboard

import "menubot/model"

// Pack arranges siblings (already sorted by order) into rows. A full-width
// button flushes any pending half row and takes a row of its own; everything
// else pairs up two per row.
func Pack(buttons []model.Button) [][]model.Button {
	var rows [][]model.Button
	var current []model.Button

	for _, b := range buttons {
		if b.IsFullWidth {
			if len(current) > 0 {
				rows = append(rows, current)
				current = nil
			}
			rows = append(rows, []model.Button{b})
			continue
		}
		current = append(current, b)
		if len(current) == 2 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}

	return rows
}

type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Move relocates one button inside the packed rows. Within a 2-wide row,
// up/down split the pair vertically and left/right swap the pair; a button
// alone in its row merges with an adjacent single-button row on up/down.
// Returns false when the move is blocked (nothing changes).
func Move(rows [][]model.Button, id int64, dir Direction) ([][]model.Button, bool) {
	row, col := locate(rows, id)
	if row == -1 {
		return rows, false
	}

	switch dir {
	case Up:
		if len(rows[row]) > 1 {
			self, partner := rows[row][col], rows[row][1-col]
			return replaceRows(rows, row, 1, []model.Button{self}, []model.Button{partner}), true
		}
		if row > 0 && len(rows[row-1]) == 1 {
			merged := []model.Button{rows[row-1][0], rows[row][0]}
			return replaceRows(rows, row-1, 2, merged), true
		}
	case Down:
		if len(rows[row]) > 1 {
			self, partner := rows[row][col], rows[row][1-col]
			return replaceRows(rows, row, 1, []model.Button{partner}, []model.Button{self}), true
		}
		if row < len(rows)-1 && len(rows[row+1]) == 1 {
			merged := []model.Button{rows[row][0], rows[row+1][0]}
			return replaceRows(rows, row, 2, merged), true
		}
	case Left, Right:
		if len(rows[row]) > 1 {
			swapped := []model.Button{rows[row][1], rows[row][0]}
			return replaceRows(rows, row, 1, swapped), true
		}
	}

	return rows, false
}

// Placement is one button's final slot after a layout rewrite.
type Placement struct {
	ID          int64
	Order       int
	IsFullWidth bool
}

// Flatten walks rows top-to-bottom, left-to-right and yields dense order
// values. Full-width is recomputed from the final row width, so a layout
// always round-trips through Pack unchanged.
func Flatten(rows [][]model.Button) []Placement {
	var placements []Placement
	order := 0
	for _, row := range rows {
		for _, b := range row {
			placements = append(placements, Placement{
				ID:          b.ID,
				Order:       order,
				IsFullWidth: len(row) == 1,
			})
			order++
		}
	}
	return placements
}

func locate(rows [][]model.Button, id int64) (int, int) {
	for r, row := range rows {
		for c, b := range row {
			if b.ID == id {
				return r, c
			}
		}
	}
	return -1, -1
}

// replaceRows returns a copy of rows with n rows starting at index at
// replaced by the given replacement rows.
func replaceRows(rows [][]model.Button, at, n int, replacement ...[]model.Button) [][]model.Button {
	out := make([][]model.Button, 0, len(rows)-n+len(replacement))
	out = append(out, rows[:at]...)
	out = append(out, replacement...)
	out = append(out, rows[at+n:]...)
	return out
}
