package handler

import (
	"io"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"menubot/config"
	"menubot/database"
	"menubot/keyboard"
	"menubot/model"
)

// fakeDB covers the slice of the store the handler tests touch; everything
// else panics through the embedded nil interface.
type fakeDB struct {
	database.IDatabase

	user     *model.User
	buttons  []model.Button
	settings *model.Settings

	hasChildren map[int64]bool
	hasMessages map[int64]bool

	adminIDs []int64

	createdNames  []string
	importedUnits []model.TransferUnit
	clicks        []int64
}

func (f *fakeDB) GetUser(id int64) (*model.User, error) { return f.user, nil }
func (f *fakeDB) TouchLastActive(id int64) error        { return nil }

func (f *fakeDB) GetSettings() (*model.Settings, error) {
	if f.settings != nil {
		return f.settings, nil
	}
	return &model.Settings{ID: 1}, nil
}

func (f *fakeDB) UpdateState(id int64, state model.State, data model.StateData) error {
	f.user.State = state
	f.user.StateData = data
	return nil
}

func (f *fakeDB) UpdateStateData(id int64, data model.StateData) error {
	f.user.StateData = data
	return nil
}

func (f *fakeDB) UpdatePath(id int64, path string) error {
	f.user.CurrentPath = path
	return nil
}

func (f *fakeDB) ButtonsByParent(parentID *int64) ([]model.Button, error) {
	return f.buttons, nil
}

func (f *fakeDB) ButtonByLabel(parentID *int64, text string) (*model.Button, error) {
	for i := range f.buttons {
		if f.buttons[i].Text == text {
			return &f.buttons[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDB) CreateButtons(parentID *int64, names []string) (*model.CreateSummary, error) {
	f.createdNames = append(f.createdNames, names...)
	return &model.CreateSummary{Added: len(names)}, nil
}

func (f *fakeDB) ImportButtons(parentID *int64, units []model.TransferUnit) error {
	f.importedUnits = append(f.importedUnits, units...)
	return nil
}

func (f *fakeDB) HasChildren(id int64) (bool, error) { return f.hasChildren[id], nil }
func (f *fakeDB) HasMessages(id int64) (bool, error) { return f.hasMessages[id], nil }

func (f *fakeDB) AdminIDs() ([]int64, error) { return f.adminIDs, nil }

func (f *fakeDB) MessagesByButton(buttonID int64) ([]model.Message, error) { return nil, nil }

func (f *fakeDB) LogButtonClick(buttonID, userID int64) error {
	f.clicks = append(f.clicks, buttonID)
	return nil
}

// fakeTelegram records every outbound call.
type fakeTelegram struct {
	sent   []tgbotapi.Chattable
	nextID int
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	return tgbotapi.Chat{ID: config.ChatID, FirstName: "مستخدم"}, nil
}

func (f *fakeTelegram) CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	return tgbotapi.MessageID{MessageID: 1}, nil
}

func (f *fakeTelegram) lastText(t *testing.T) string {
	t.Helper()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if msg, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return msg.Text
		}
	}
	t.Fatal("no text message was sent")
	return ""
}

func newTestHandler(db *fakeDB) (*Handler, *fakeTelegram) {
	bot := &fakeTelegram{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	conf := &config.Config{
		Telegram: &config.Telegram{SuperAdminID: 999},
		Jobs:     &config.Jobs{Endpoint: "http://localhost:9"},
	}

	return NewHandler(db, bot, logger, conf), bot
}

func inboundText(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		Text:      text,
		From:      &tgbotapi.User{ID: 1, FirstName: "مستخدم"},
		Chat:      &tgbotapi.Chat{ID: 1},
	}
}

func testUser(state model.State) *model.User {
	return &model.User{ID: 1, ChatID: 1, CurrentPath: model.PathRoot, State: state}
}

func TestHandleMessageBannedUser(t *testing.T) {
	user := testUser(model.StateNormal)
	user.Banned = true
	db := &fakeDB{user: user}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("أهلاً")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if got := bot.lastText(t); got != "🚫 أنت محظور من استخدام هذا البوت." {
		t.Fatalf("unexpected reply: %q", got)
	}
	if len(db.clicks) != 0 {
		t.Fatal("banned user must not produce clicks")
	}
}

func TestStateNewButtonNames(t *testing.T) {
	user := testUser(model.StateAwaitingNewButtonName)
	user.IsAdmin = true
	db := &fakeDB{user: user}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("قسم أول\n\nقسم ثاني\n")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(db.createdNames) != 2 || db.createdNames[0] != "قسم أول" || db.createdNames[1] != "قسم ثاني" {
		t.Fatalf("created names = %v", db.createdNames)
	}
	if user.State != model.StateEditingButtons {
		t.Fatalf("state = %s; want EDITING_BUTTONS", user.State)
	}
	if got := bot.lastText(t); !strings.Contains(got, "تم إضافة 2 زر") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestNavigateAdminOnlyBlocked(t *testing.T) {
	user := testUser(model.StateNormal)
	db := &fakeDB{
		user:    user,
		buttons: []model.Button{{ID: 4, Text: "للمشرفين", AdminOnly: true}},
	}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("للمشرفين")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if got := bot.lastText(t); got != "🚫 عذراً، هذا القسم مخصص للمشرفين فقط." {
		t.Fatalf("unexpected reply: %q", got)
	}
	if len(db.clicks) != 0 {
		t.Fatal("blocked click must not be logged")
	}
}

func TestNavigateEntersSection(t *testing.T) {
	user := testUser(model.StateNormal)
	db := &fakeDB{
		user:        user,
		buttons:     []model.Button{{ID: 4, Text: "الأقسام"}},
		hasChildren: map[int64]bool{4: true},
	}
	h, _ := newTestHandler(db)

	if err := h.HandleMessage(inboundText("الأقسام")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if user.CurrentPath != "root/4" {
		t.Fatalf("path = %q; want root/4", user.CurrentPath)
	}
	if len(db.clicks) != 1 || db.clicks[0] != 4 {
		t.Fatalf("clicks = %v", db.clicks)
	}
}

func TestSelectButtonsToggle(t *testing.T) {
	user := testUser(model.StateSelectingButtons)
	user.IsAdmin = true
	user.StateData = model.StateData{Selection: &model.Selection{Action: "move"}}
	db := &fakeDB{
		user:    user,
		buttons: []model.Button{{ID: 7, Text: "قسم"}},
	}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("قسم")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if sel := user.StateData.Selection; sel == nil || !sel.ButtonSelected(7) {
		t.Fatalf("button 7 not selected: %+v", user.StateData.Selection)
	}
	if got := bot.lastText(t); !strings.Contains(got, "تم تحديد الزر") {
		t.Fatalf("unexpected reply: %q", got)
	}

	// Tapping the now-prefixed caption deselects.
	if err := h.HandleMessage(inboundText(keyboard.SelectedPrefix + "قسم")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if user.StateData.Selection.ButtonSelected(7) {
		t.Fatal("button 7 still selected after second tap")
	}
}

func TestDynamicTransferFlow(t *testing.T) {
	user := testUser(model.StateDynamicTransfer)
	user.IsAdmin = true
	user.StateData = model.StateData{Transfer: &model.Transfer{Step: model.StepAwaitingButtonSource}}
	db := &fakeDB{user: user}
	h, _ := newTestHandler(db)

	forwardFrom := func(sourceID int64, text string) *tgbotapi.Message {
		msg := inboundText(text)
		msg.ForwardFromChat = &tgbotapi.Chat{ID: sourceID}
		return msg
	}

	// Register the two sources.
	if err := h.HandleMessage(forwardFrom(-100, "any")); err != nil {
		t.Fatalf("button source: %v", err)
	}
	if err := h.HandleMessage(forwardFrom(-200, "any")); err != nil {
		t.Fatalf("content source: %v", err)
	}

	tr := user.StateData.Transfer
	if tr.ButtonSourceID != -100 || tr.ContentSourceID != -200 {
		t.Fatalf("sources = %d,%d", tr.ButtonSourceID, tr.ContentSourceID)
	}

	// One button with two content messages, then a second button.
	if err := h.HandleMessage(forwardFrom(-100, "زر أول")); err != nil {
		t.Fatalf("first button: %v", err)
	}
	if err := h.HandleMessage(forwardFrom(-200, "محتوى 1")); err != nil {
		t.Fatalf("content: %v", err)
	}
	if err := h.HandleMessage(forwardFrom(-200, "محتوى 2")); err != nil {
		t.Fatalf("content: %v", err)
	}
	if err := h.HandleMessage(forwardFrom(-100, "زر ثاني")); err != nil {
		t.Fatalf("second button: %v", err)
	}

	tr = user.StateData.Transfer
	if len(tr.Completed) != 1 || tr.Completed[0].Name != "زر أول" || len(tr.Completed[0].Content) != 2 {
		t.Fatalf("completed units = %+v", tr.Completed)
	}
	if tr.Current == nil || tr.Current.Name != "زر ثاني" {
		t.Fatalf("current unit = %+v", tr.Current)
	}

	// Finish flushes the open unit and imports both.
	if err := h.HandleMessage(inboundText(keyboard.LabelFinishTransfer)); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(db.importedUnits) != 2 {
		t.Fatalf("imported %d units; want 2", len(db.importedUnits))
	}
	if user.State != model.StateEditingButtons {
		t.Fatalf("state = %s; want EDITING_BUTTONS", user.State)
	}
}

func TestBuildKeyboardWizardOverrides(t *testing.T) {
	db := &fakeDB{}
	h, _ := newTestHandler(db)

	tests := []struct {
		state model.State
		admin bool
		want  string
	}{
		{model.StateAwaitingBroadcastMessages, true, keyboard.LabelFinishBroadcast},
		{model.StateAwaitingAlertMessages, true, keyboard.LabelFinishAlert},
		{model.StateAwaitingBulkMessages, true, keyboard.LabelFinishBulk},
		{model.StateAwaitingBatchNumber, false, keyboard.LabelCancelOperation},
		{model.StateContactingAdmin, false, keyboard.LabelCancelOperation},
	}
	for _, tt := range tests {
		user := testUser(tt.state)
		user.IsAdmin = tt.admin
		db.user = user

		rows, err := h.buildKeyboard(user)
		if err != nil {
			t.Fatalf("%s: buildKeyboard: %v", tt.state, err)
		}
		if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0] != tt.want {
			t.Fatalf("%s: rows = %v; want [[%s]]", tt.state, rows, tt.want)
		}
	}
}

func TestBuildKeyboardSupervision(t *testing.T) {
	user := testUser(model.StateNormal)
	user.IsAdmin = true
	user.CurrentPath = model.PathSupervision
	db := &fakeDB{user: user}
	h, _ := newTestHandler(db)

	rows, err := h.buildKeyboard(user)
	if err != nil {
		t.Fatalf("buildKeyboard: %v", err)
	}

	want := [][]string{
		{keyboard.LabelStats, keyboard.LabelBroadcast},
		{keyboard.LabelAlert, keyboard.LabelEditWelcome},
		{keyboard.LabelEditAdmins, keyboard.LabelBannedList},
		{keyboard.LabelBack, keyboard.LabelMainMenu},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Fatalf("rows[%d][%d] = %q; want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
}

func TestBuildKeyboardAdminRootControls(t *testing.T) {
	user := testUser(model.StateNormal)
	user.IsAdmin = true
	db := &fakeDB{
		user:    user,
		buttons: []model.Button{{ID: 1, Text: "أ"}, {ID: 2, Text: "ب"}},
	}
	h, _ := newTestHandler(db)

	rows, err := h.buildKeyboard(user)
	if err != nil {
		t.Fatalf("buildKeyboard: %v", err)
	}

	last := rows[len(rows)-1]
	if len(last) != 2 || last[0] != keyboard.LabelContactAdmin || last[1] != keyboard.LabelSupervision {
		t.Fatalf("final row = %v", last)
	}

	toggles := rows[len(rows)-2]
	if toggles[0] != keyboard.LabelEditButtons || toggles[1] != keyboard.LabelEditContent {
		t.Fatalf("toggle row = %v", toggles)
	}

	if rows[0][0] != "أ" || rows[0][1] != "ب" {
		t.Fatalf("tree row = %v", rows[0])
	}
}

func TestBuildKeyboardHidesAdminOnlyButtons(t *testing.T) {
	user := testUser(model.StateNormal)
	db := &fakeDB{
		user: user,
		buttons: []model.Button{
			{ID: 1, Text: "عام"},
			{ID: 2, Text: "خاص", AdminOnly: true},
		},
	}
	h, _ := newTestHandler(db)

	rows, err := h.buildKeyboard(user)
	if err != nil {
		t.Fatalf("buildKeyboard: %v", err)
	}

	for _, row := range rows {
		for _, label := range row {
			if label == "خاص" {
				t.Fatal("admin-only button leaked to plain user")
			}
		}
	}
}

func TestRouteLabelMainMenuKeepsEditMode(t *testing.T) {
	user := testUser(model.StateEditingButtons)
	user.IsAdmin = true
	user.CurrentPath = "root/4/9"
	db := &fakeDB{user: user}
	h, _ := newTestHandler(db)

	if err := h.HandleMessage(inboundText(keyboard.LabelMainMenu)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if user.CurrentPath != model.PathRoot {
		t.Fatalf("path = %q; want root", user.CurrentPath)
	}
	if user.State != model.StateEditingButtons {
		t.Fatalf("state = %s; edit mode must survive the jump", user.State)
	}
}

func TestContactFlowBatchNumber(t *testing.T) {
	user := testUser(model.StateAwaitingBatchNumber)
	user.StateData = model.StateData{Contact: &model.Contact{}}
	db := &fakeDB{user: user}
	h, bot := newTestHandler(db)

	// Arabic-Indic digits are accepted.
	if err := h.HandleMessage(inboundText("٤٢")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if user.State != model.StateContactingAdmin {
		t.Fatalf("state = %s; want CONTACTING_ADMIN", user.State)
	}
	if user.StateData.Contact == nil || user.StateData.Contact.BatchNumber != "42" {
		t.Fatalf("contact = %+v", user.StateData.Contact)
	}
	if got := bot.lastText(t); !strings.Contains(got, "تم حفظ رقم الدفعة") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestContactFlowRejectsNonNumericBatch(t *testing.T) {
	user := testUser(model.StateAwaitingBatchNumber)
	user.StateData = model.StateData{Contact: &model.Contact{}}
	db := &fakeDB{user: user}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("غير رقمي")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if user.State != model.StateAwaitingBatchNumber {
		t.Fatalf("state = %s; must stay in AWAITING_BATCH_NUMBER", user.State)
	}
	if got := bot.lastText(t); !strings.Contains(got, "أرقام فقط") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestAdminReplyIsNumberedByAdminOrder(t *testing.T) {
	admin := testUser(model.StateAwaitingAdminReply)
	admin.ID = 7
	admin.IsAdmin = true
	admin.StateData = model.StateData{Contact: &model.Contact{TargetUserID: 55}}
	db := &fakeDB{user: admin, adminIDs: []int64{3, 7, 20}}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("إليك الجواب")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	var header *tgbotapi.MessageConfig
	for i := range bot.sent {
		if msg, ok := bot.sent[i].(tgbotapi.MessageConfig); ok && msg.ChatID == 55 {
			header = &msg
			break
		}
	}
	if header == nil {
		t.Fatal("no header was sent to the user")
	}
	if header.Text != "✉️ رسالة جديدة من الأدمن رقم 2" {
		t.Fatalf("unexpected header: %q", header.Text)
	}
	markup, ok := header.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("header markup = %T; want inline keyboard", header.ReplyMarkup)
	}
	button := markup.InlineKeyboard[0][0]
	if button.Text != "✍️ الرد على الأدمن رقم 2" {
		t.Fatalf("unexpected reply button: %q", button.Text)
	}
	if button.CallbackData == nil || *button.CallbackData != "user:reply:7" {
		t.Fatalf("unexpected callback data: %v", button.CallbackData)
	}
}

func TestAdminReplyUnknownAdminFallsBack(t *testing.T) {
	admin := testUser(model.StateAwaitingAdminReply)
	admin.ID = 7
	admin.IsAdmin = true
	admin.StateData = model.StateData{Contact: &model.Contact{TargetUserID: 55}}
	db := &fakeDB{user: admin, adminIDs: []int64{3, 20}}
	h, bot := newTestHandler(db)

	if err := h.HandleMessage(inboundText("إليك الجواب")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	for i := range bot.sent {
		if msg, ok := bot.sent[i].(tgbotapi.MessageConfig); ok && msg.ChatID == 55 {
			if msg.Text != "✉️ رسالة جديدة من الأدمن رقم غير محدد" {
				t.Fatalf("unexpected header: %q", msg.Text)
			}
			return
		}
	}
	t.Fatal("no header was sent to the user")
}

func TestHandleCallbackWithoutSourceMessage(t *testing.T) {
	db := &fakeDB{user: testUser(model.StateNormal)}
	h, _ := newTestHandler(db)

	query := &tgbotapi.CallbackQuery{
		ID:   "q1",
		From: &tgbotapi.User{ID: 1},
		Data: "btn:rename:5",
	}

	if err := h.HandleCallback(query); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
}
