package handler

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// HandleCallback dispatches the inline-button presses. Data is encoded as
// "family:action:id"; the id segment is optional.
func (h *Handler) HandleCallback(query *tgbotapi.CallbackQuery) error {
	// Inline-mode callbacks carry no source message; nothing here sends those,
	// but a stray press must not take the update loop down.
	if query.Message == nil {
		h.Logger.WithField("data", query.Data).Warn("callback without source message")
		return h.answer(query, "")
	}

	user, err := h.DB.GetUser(query.From.ID)
	if err != nil {
		return h.answer(query, "المستخدم غير موجود.")
	}

	parts := strings.SplitN(query.Data, ":", 3)
	if len(parts) < 2 {
		return h.answer(query, "")
	}
	family, action := parts[0], parts[1]

	var targetID int64
	if len(parts) == 3 {
		targetID, _ = strconv.ParseInt(parts[2], 10, 64)
	}

	if family == "user" && action == "reply" {
		data := model.StateData{Contact: &model.Contact{TargetAdminID: targetID}}
		if err := h.setState(user, model.StateReplyingToAdmin, data); err != nil {
			return err
		}
		if err := h.send(query.Message.Chat.ID, "أرسل الآن ردك للمشرف المحدد:"); err != nil {
			return err
		}
		return h.answer(query, "")
	}

	if !user.IsAdmin {
		return h.answerAlert(query, "غير مصرح لك.")
	}

	switch family {
	case "alert":
		return h.alertCallback(user, query, action)
	case "admin":
		return h.adminCallback(user, query, action, targetID)
	case "btn":
		return h.buttonCallback(user, query, action, targetID)
	case "msg":
		return h.messageCallback(user, query, action, targetID)
	}

	return h.answer(query, "")
}

func (h *Handler) alertCallback(user *model.User, query *tgbotapi.CallbackQuery, action string) error {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	switch action {
	case "set":
		data := model.StateData{Collect: &model.Collection{}}
		if err := h.setState(user, model.StateAwaitingAlertMessages, data); err != nil {
			return err
		}
		if err := h.editText(chatID, messageID,
			"📝 أرسل الآن أو وجّه الرسائل التي تريد استخدامها كتنبيه. عند الانتهاء، اضغط على زر \"✅ إنهاء إضافة رسائل التنبيه\"."); err != nil {
			h.Logger.WithError(err).Warn("cannot edit alert menu")
		}
		if err := h.replyWithKeyboard(user, chatID, "تم تفعيل وضع إضافة رسائل التنبيه."); err != nil {
			return err
		}
		return h.answer(query, "")

	case "delete":
		if err := h.DB.ClearAlert(); err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot clear alert"))
		}
		if err := h.editText(chatID, messageID,
			"✅ تم حذف التنبيه. الآن ستبدأ عملية إلغاء التثبيت في الخلفية."); err != nil {
			h.Logger.WithError(err).Warn("cannot edit alert menu")
		}
		return h.startUnpinAllJob(user, query)

	case "unpin_all":
		if err := h.editText(chatID, messageID, "⏳ جارٍ بدء مهمة إلغاء التثبيت..."); err != nil {
			h.Logger.WithError(err).Warn("cannot edit alert menu")
		}
		return h.startUnpinAllJob(user, query)
	}

	return h.answer(query, "")
}

// startUnpinAllJob queues the chat-by-chat unpin sweep for the external
// worker; doing it inline would stall the update loop on big user counts.
func (h *Handler) startUnpinAllJob(user *model.User, query *tgbotapi.CallbackQuery) error {
	jobID, err := h.DB.InsertBackgroundJob("unpin_all", struct{}{}, user.ID)
	if err != nil {
		h.Logger.WithError(err).Error("cannot insert unpin job")
		return h.answerAlert(query, "❌ حدث خطأ فادح أثناء محاولة بدء مهمة إلغاء التثبيت.")
	}
	if err := tool.DispatchJob(h.Config.Jobs.Endpoint, jobID); err != nil {
		h.Logger.WithError(err).WithField("job_id", jobID).Error("cannot dispatch unpin job")
		return h.answerAlert(query, "❌ حدث خطأ فادح أثناء محاولة بدء مهمة إلغاء التثبيت.")
	}

	return h.answerAlert(query, "✅ تم بدء عملية إلغاء التثبيت في الخلفية. سيصلك تقرير برسالة جديدة عند الانتهاء.")
}

func (h *Handler) adminCallback(user *model.User, query *tgbotapi.CallbackQuery, action string, targetID int64) error {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	switch action {
	case "reply":
		data := model.StateData{Contact: &model.Contact{TargetUserID: targetID}}
		if err := h.setState(user, model.StateAwaitingAdminReply, data); err != nil {
			return err
		}
		if err := h.sendHTML(chatID, fmt.Sprintf("أرسل الآن ردك للمستخدم <code>%d</code>:", targetID)); err != nil {
			return err
		}
		return h.answer(query, "")

	case "ban":
		if targetID == h.Config.Telegram.SuperAdminID {
			return h.answerAlert(query, "🚫 لا يمكن حظر الأدمن الرئيسي.")
		}
		if err := h.DB.SetBanned(targetID, true); err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot ban user"))
		}
		if err := h.editHTML(chatID, messageID, fmt.Sprintf("🚫 تم حظر المستخدم <code>%d</code> بنجاح.", targetID)); err != nil {
			h.Logger.WithError(err).Warn("cannot edit ban message")
		}
		if err := h.send(targetID, "🚫 لقد تم حظرك من استخدام هذا البوت."); err != nil {
			h.Logger.WithError(err).WithField("user_id", targetID).Warn("cannot notify banned user")
		}
		return h.answer(query, "")

	case "unban":
		if err := h.DB.SetBanned(targetID, false); err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot unban user"))
		}
		if err := h.editHTML(chatID, messageID, fmt.Sprintf("✅ تم فك حظر المستخدم <code>%d</code>.", targetID)); err != nil {
			h.Logger.WithError(err).Warn("cannot edit unban message")
		}
		if err := h.send(targetID, "✅ تم فك الحظر عنك. يمكنك الآن استخدام البوت مجددًا."); err != nil {
			h.Logger.WithError(err).WithField("user_id", targetID).Warn("cannot notify unbanned user")
		}
		return h.answer(query, "")

	case "add", "remove":
		if user.ID != h.Config.Telegram.SuperAdminID {
			return h.answerAlert(query, "🚫 للمشرف الرئيسي فقط.")
		}
		next := model.StateAwaitingAdminIDToAdd
		prompt := "أرسل ID المشرف الجديد:"
		if action == "remove" {
			next = model.StateAwaitingAdminIDToRemove
			prompt = "أرسل ID المشرف للحذف:"
		}
		if err := h.setState(user, next, model.StateData{}); err != nil {
			return err
		}
		if err := h.editText(chatID, messageID, prompt); err != nil {
			h.Logger.WithError(err).Warn("cannot edit admin menu")
		}
		return h.answer(query, "")
	}

	return h.answer(query, "")
}

func (h *Handler) buttonCallback(user *model.User, query *tgbotapi.CallbackQuery, action string, buttonID int64) error {
	chatID := query.Message.Chat.ID

	button, err := h.DB.GetButton(buttonID)
	if err != nil {
		return h.answer(query, "الزر غير موجود.")
	}

	switch action {
	case "rename":
		data := model.StateData{Target: &model.MessageTarget{ButtonID: button.ID, ButtonName: button.Text}}
		if err := h.setState(user, model.StateAwaitingRename, data); err != nil {
			return err
		}
		if err := h.editText(chatID, query.Message.MessageID, "أدخل الاسم الجديد:"); err != nil {
			h.Logger.WithError(err).Warn("cannot edit button controls")
		}
		return h.answer(query, "")

	case "delete":
		stats, err := h.DB.SubtreeStats(button.ID)
		if err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get subtree stats"))
		}
		data := model.StateData{Target: &model.MessageTarget{ButtonID: button.ID, ButtonName: button.Text}}
		if err := h.setState(user, model.StateAwaitingDeleteConfirm, data); err != nil {
			return err
		}
		warning := tgbotapi.NewMessage(chatID, fmt.Sprintf(
			"️⚠️ تحذير خطير ⚠️\n\nأنت على وشك حذف الزر \"%s\" وكل ما بداخله (%d زر فرعي و %d رسالة) بشكل نهائي.\n\nللتأكيد النهائي، اكتب كلمة \"%s\" وأرسلها.",
			button.Text, stats.Buttons, stats.Messages, keyboard.ConfirmWord))
		warning.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
		if _, err := h.Telegram.Send(warning); err != nil {
			return errors.Wrap(err, "cannot send message")
		}
		return h.answer(query, "")

	case "adminonly":
		if err := h.DB.SetAdminOnly(button.ID, !button.AdminOnly); err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot toggle admin-only"))
		}
		feedback := "الزر الآن للمشرفين فقط 🔒"
		if button.AdminOnly {
			feedback = "الزر الآن للجميع 👥"
		}
		if err := h.replyWithKeyboard(user, chatID, "تم تحديث لوحة المفاتيح."); err != nil {
			return err
		}
		return h.answer(query, feedback)

	case "stats":
		return h.sendButtonStats(query, button)

	case "up", "down", "left", "right":
		return h.moveButton(user, query, button, keyboard.Direction(action))
	}

	return h.answer(query, "")
}

func (h *Handler) sendButtonStats(query *tgbotapi.CallbackQuery, button *model.Button) error {
	clicks, err := h.DB.ButtonClickStats(button.ID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get click stats"))
	}
	subtree, err := h.DB.SubtreeStats(button.ID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get subtree stats"))
	}

	text := fmt.Sprintf(
		"📊 <b>إحصائيات الزر \"%s\"</b>\n\n"+
			"🖱️ ضغطات اليوم: <code>%d</code>\n"+
			"👤 مستخدمو اليوم: <code>%d</code>\n"+
			"🖱️ إجمالي الضغطات: <code>%d</code>\n\n"+
			"🗂 الأزرار الفرعية (بالعمق): <code>%d</code>\n"+
			"📄 الرسائل (بالعمق): <code>%d</code>",
		button.Text, clicks.DailyClicks, clicks.DailyUsers, clicks.TotalClicks,
		subtree.Buttons, subtree.Messages,
	)

	if err := h.sendHTML(query.Message.Chat.ID, text); err != nil {
		return err
	}
	return h.answer(query, "")
}

// moveButton rewrites the sibling layout after one directional step.
func (h *Handler) moveButton(user *model.User, query *tgbotapi.CallbackQuery, button *model.Button, dir keyboard.Direction) error {
	var parentID *int64
	if button.ParentID.Valid {
		parentID = &button.ParentID.Int64
	}

	siblings, err := h.DB.ButtonsByParent(parentID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list siblings"))
	}

	rows, moved := keyboard.Move(keyboard.Pack(siblings), button.ID, dir)
	if !moved {
		return h.answerAlert(query, "لا يمكن تحريك الزر أكثر.")
	}

	if err := h.DB.ReorderSiblings(keyboard.Flatten(rows)); err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot reorder siblings"))
	}

	if err := h.replyWithKeyboard(user, query.Message.Chat.ID, "✅ تم تحديث ترتيب الأزرار."); err != nil {
		return err
	}
	return h.answer(query, "")
}

func (h *Handler) messageCallback(user *model.User, query *tgbotapi.CallbackQuery, action string, messageID int64) error {
	chatID := query.Message.Chat.ID

	message, err := h.DB.GetMessage(messageID)
	if err != nil {
		return h.answer(query, "الرسالة غير موجودة.")
	}

	switch action {
	case "delete":
		if err := h.DB.DeleteMessage(message.ID); err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot delete message"))
		}
		data := model.StateData{MessageViewIDs: user.StateData.MessageViewIDs}
		if err := h.setState(user, model.StateEditingContent, data); err != nil {
			return err
		}
		if err := h.refreshAdminView(user, chatID, message.ButtonID, "🗑️ تم الحذف بنجاح."); err != nil {
			return err
		}
		return h.answer(query, "")

	case "up", "down":
		return h.moveMessage(user, query, message, action)

	case "edit":
		return h.promptMessageEdit(user, query, message, model.StateAwaitingEditedText, "📝 أرسل أو وجّه المحتوى الجديد :")

	case "edit_caption":
		return h.promptMessageEdit(user, query, message, model.StateAwaitingNewCaption, "📝 أرسل أو وجّه رسالة تحتوي على الشرح الجديد:")

	case "replace_file":
		return h.promptMessageEdit(user, query, message, model.StateAwaitingReplacementFile, "🔄 أرسل أو وجّه الملف الجديد:")

	case "addnext":
		targetOrder := message.Order + 1
		data := model.StateData{
			MessageViewIDs: user.StateData.MessageViewIDs,
			Target:         &model.MessageTarget{ButtonID: message.ButtonID, TargetOrder: &targetOrder},
		}
		if err := h.setState(user, model.StateAwaitingNewMessage, data); err != nil {
			return err
		}
		prompt := tgbotapi.NewMessage(chatID, "📝 أرسل أو وجّه الرسالة التالية:")
		prompt.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
		if _, err := h.Telegram.Send(prompt); err != nil {
			return errors.Wrap(err, "cannot send message")
		}
		return h.answer(query, "")
	}

	return h.answer(query, "")
}

func (h *Handler) moveMessage(user *model.User, query *tgbotapi.CallbackQuery, message *model.Message, action string) error {
	siblings, err := h.DB.MessagesByButton(message.ButtonID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list messages"))
	}

	wantOrder := message.Order - 1
	if action == "down" {
		wantOrder = message.Order + 1
	}

	var neighbor *model.Message
	for i := range siblings {
		if siblings[i].Order == wantOrder {
			neighbor = &siblings[i]
			break
		}
	}
	if neighbor == nil {
		return h.answerAlert(query, "لا يمكن تحريك الرسالة أكثر.")
	}

	if err := h.DB.SwapMessages(*message, *neighbor); err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot swap messages"))
	}

	if err := h.refreshAdminView(user, query.Message.Chat.ID, message.ButtonID, "↕️ تم تحديث الترتيب بنجاح."); err != nil {
		return err
	}
	return h.answer(query, "")
}

func (h *Handler) promptMessageEdit(user *model.User, query *tgbotapi.CallbackQuery, message *model.Message, next model.State, prompt string) error {
	data := model.StateData{
		MessageViewIDs: user.StateData.MessageViewIDs,
		Target:         &model.MessageTarget{ButtonID: message.ButtonID, MessageID: message.ID},
	}
	if err := h.setState(user, next, data); err != nil {
		return err
	}

	reply := tgbotapi.NewMessage(query.Message.Chat.ID, prompt)
	reply.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
	if _, err := h.Telegram.Send(reply); err != nil {
		return errors.Wrap(err, "cannot send message")
	}
	return h.answer(query, "")
}

func (h *Handler) editHTML(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := h.Telegram.Send(edit)
	return errors.Wrap(err, "cannot edit message")
}

func (h *Handler) answer(query *tgbotapi.CallbackQuery, text string) error {
	_, err := h.Telegram.Request(tgbotapi.NewCallback(query.ID, text))
	return errors.Wrap(err, "cannot answer callback")
}

func (h *Handler) answerAlert(query *tgbotapi.CallbackQuery, text string) error {
	_, err := h.Telegram.Request(tgbotapi.NewCallbackWithAlert(query.ID, text))
	return errors.Wrap(err, "cannot answer callback")
}
