package keyboard

import (
	"testing"

	"menubot/model"
)

func btn(id int64, full bool) model.Button {
	return model.Button{ID: id, IsFullWidth: full}
}

func rowIDs(rows [][]model.Button) [][]int64 {
	out := make([][]int64, 0, len(rows))
	for _, row := range rows {
		ids := make([]int64, 0, len(row))
		for _, b := range row {
			ids = append(ids, b.ID)
		}
		out = append(out, ids)
	}
	return out
}

func sameLayout(got [][]model.Button, want [][]int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if len(got[i]) != len(want[i]) {
			return false
		}
		for j := range got[i] {
			if got[i][j].ID != want[i][j] {
				return false
			}
		}
	}
	return true
}

func TestPack(t *testing.T) {
	tests := []struct {
		name    string
		buttons []model.Button
		want    [][]int64
	}{
		{"empty", nil, nil},
		{"single", []model.Button{btn(1, false)}, [][]int64{{1}}},
		{"pair", []model.Button{btn(1, false), btn(2, false)}, [][]int64{{1, 2}}},
		{"odd tail", []model.Button{btn(1, false), btn(2, false), btn(3, false)}, [][]int64{{1, 2}, {3}}},
		{"full width alone", []model.Button{btn(1, true)}, [][]int64{{1}}},
		{
			"full width flushes half row",
			[]model.Button{btn(1, false), btn(2, true), btn(3, false), btn(4, false)},
			[][]int64{{1}, {2}, {3, 4}},
		},
	}
	for _, tt := range tests {
		got := Pack(tt.buttons)
		if !sameLayout(got, tt.want) {
			t.Fatalf("%s: Pack = %v; want %v", tt.name, rowIDs(got), tt.want)
		}
	}
}

func TestMove(t *testing.T) {
	base := func() [][]model.Button {
		return Pack([]model.Button{btn(1, false), btn(2, false), btn(3, true)})
	}

	tests := []struct {
		name  string
		id    int64
		dir   Direction
		want  [][]int64
		moved bool
	}{
		{"left swaps pair", 2, Left, [][]int64{{2, 1}, {3}}, true},
		{"right swaps pair", 1, Right, [][]int64{{2, 1}, {3}}, true},
		{"up splits pair", 2, Up, [][]int64{{2}, {1}, {3}}, true},
		{"down splits pair", 1, Down, [][]int64{{2}, {1}, {3}}, true},
		{"down from bottom single blocked", 3, Down, nil, false},
		{"horizontal on single blocked", 3, Left, nil, false},
		{"unknown id blocked", 99, Up, nil, false},
	}
	for _, tt := range tests {
		got, moved := Move(base(), tt.id, tt.dir)
		if moved != tt.moved {
			t.Fatalf("%s: moved = %v; want %v", tt.name, moved, tt.moved)
		}
		if moved && !sameLayout(got, tt.want) {
			t.Fatalf("%s: Move = %v; want %v", tt.name, rowIDs(got), tt.want)
		}
	}
}

func TestMoveMergesAdjacentSingles(t *testing.T) {
	rows := [][]model.Button{{btn(1, true)}, {btn(2, true)}}

	got, moved := Move(rows, 2, Up)
	if !moved {
		t.Fatal("expected merge to happen")
	}
	if !sameLayout(got, [][]int64{{1, 2}}) {
		t.Fatalf("Move = %v; want [[1 2]]", rowIDs(got))
	}

	got, moved = Move(rows, 1, Down)
	if !moved {
		t.Fatal("expected merge to happen")
	}
	if !sameLayout(got, [][]int64{{1, 2}}) {
		t.Fatalf("Move = %v; want [[1 2]]", rowIDs(got))
	}
}

func TestFlatten(t *testing.T) {
	rows := [][]model.Button{
		{btn(5, false), btn(7, false)},
		{btn(9, true)},
	}

	placements := Flatten(rows)
	want := []Placement{
		{ID: 5, Order: 0, IsFullWidth: false},
		{ID: 7, Order: 1, IsFullWidth: false},
		{ID: 9, Order: 2, IsFullWidth: true},
	}
	if len(placements) != len(want) {
		t.Fatalf("got %d placements, want %d", len(placements), len(want))
	}
	for i := range want {
		if placements[i] != want[i] {
			t.Fatalf("placement[%d] = %+v; want %+v", i, placements[i], want[i])
		}
	}
}

// A layout must survive Flatten followed by Pack: full-width is recomputed
// from the final row width, not carried over.
func TestPackFlattenRoundTrip(t *testing.T) {
	rows := [][]model.Button{
		{btn(1, false), btn(2, false)},
		{btn(3, false)},
		{btn(4, false), btn(5, false)},
	}

	placements := Flatten(rows)
	buttons := make([]model.Button, 0, len(placements))
	for _, p := range placements {
		buttons = append(buttons, model.Button{ID: p.ID, Order: p.Order, IsFullWidth: p.IsFullWidth})
	}

	repacked := Pack(buttons)
	if !sameLayout(repacked, [][]int64{{1, 2}, {3}, {4, 5}}) {
		t.Fatalf("round trip changed layout: %v", rowIDs(repacked))
	}
}

func TestIsReserved(t *testing.T) {
	if !IsReserved(LabelMainMenu) {
		t.Fatal("main menu caption must be reserved")
	}
	if !IsReserved(LabelFinishBroadcast) {
		t.Fatal("finish broadcast caption must be reserved")
	}
	if IsReserved("قسم عادي") {
		t.Fatal("ordinary name must not be reserved")
	}
}
