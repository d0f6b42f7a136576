package handler

import (
	"database/sql"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// stateHandlerFunc handles one inbound message for one conversation state.
// handled=false lets the message fall through to label routing, which is how
// the selection wizards keep tree navigation working underneath them.
type stateHandlerFunc func(h *Handler, user *model.User, msg *tgbotapi.Message) (bool, error)

var stateHandlers = map[model.State]stateHandlerFunc{
	model.StateAwaitingBroadcastMessages: (*Handler).stateCollectBroadcast,
	model.StateAwaitingBroadcast:         (*Handler).stateDirectBroadcast,
	model.StateAwaitingAlertMessages:     (*Handler).stateCollectAlert,
	model.StateAwaitingAlertDuration:     (*Handler).stateAlertDuration,

	model.StateAwaitingBulkMessages:      (*Handler).stateCollectBulk,
	model.StateAwaitingNewMessage:        (*Handler).stateMessageInput,
	model.StateAwaitingEditedText:        (*Handler).stateMessageInput,
	model.StateAwaitingNewCaption:        (*Handler).stateMessageInput,
	model.StateAwaitingReplacementFile:   (*Handler).stateMessageInput,
	model.StateAwaitingWelcomeMessage:    (*Handler).stateWelcomeMessage,

	model.StateAwaitingNewButtonName:     (*Handler).stateNewButtonNames,
	model.StateAwaitingRename:            (*Handler).stateRenameButton,
	model.StateAwaitingDeleteConfirm:     (*Handler).stateDeleteConfirm,
	model.StateAwaitingDefaultNames:      (*Handler).stateDefaultNames,
	model.StateSelectingTargets:          (*Handler).stateSelectTargets,
	model.StateSelectingButtons:          (*Handler).stateSelectButtons,
	model.StateAwaitingDestination:       (*Handler).stateDestination,
	model.StateDynamicTransfer:           (*Handler).stateDynamicTransfer,

	model.StateAwaitingAdminIDToAdd:      (*Handler).stateAdminID,
	model.StateAwaitingAdminIDToRemove:   (*Handler).stateAdminID,
	model.StateAwaitingAddAdminConfirm:   (*Handler).stateAdminConfirm,
	model.StateAwaitingRemAdminConfirm:   (*Handler).stateAdminConfirm,

	model.StateAwaitingBatchNumber:       (*Handler).stateBatchNumber,
	model.StateContactingAdmin:           (*Handler).stateContactingAdmin,
	model.StateReplyingToAdmin:           (*Handler).stateReplyingToAdmin,
	model.StateAwaitingAdminReply:        (*Handler).stateAdminReply,
}

// HandleMessage is the main inbound text/media dispatcher: banned check,
// pending alert delivery, active-state handling, then label routing against
// the current menu level.
func (h *Handler) HandleMessage(msg *tgbotapi.Message) error {
	user, err := h.DB.GetUser(msg.From.ID)
	if err == sql.ErrNoRows {
		return h.Start(msg)
	}
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get user"))
	}

	if user.Banned {
		return h.send(msg.Chat.ID, "🚫 أنت محظور من استخدام هذا البوت.")
	}

	if err := h.DB.TouchLastActive(user.ID); err != nil {
		h.Logger.WithError(err).Error("cannot touch last_active")
	}

	delivered, err := h.maybeDeliverAlert(user, msg.Chat.ID)
	if err != nil {
		h.Logger.WithError(err).Error("cannot deliver alert")
	}
	if delivered {
		return nil
	}

	if fn, ok := stateHandlers[user.State]; ok {
		handled, err := fn(h, user, msg)
		if handled || err != nil {
			return err
		}
	}

	if msg.Text == "" {
		return nil
	}

	return h.routeLabel(user, msg)
}

// maybeDeliverAlert pushes the active alert to a user who has not seen it
// yet. The intro message is pinned so the alert stays visible; interactive
// content is forwarded, everything else is copied without attribution.
func (h *Handler) maybeDeliverAlert(user *model.User, chatID int64) (bool, error) {
	settings, err := h.DB.GetSettings()
	if err != nil {
		return false, errors.Wrap(err, "cannot get settings")
	}
	if !settings.AlertActive(timeNow()) {
		return false, nil
	}
	if user.LastAlertSeenAt.Valid && !user.LastAlertSeenAt.Time.Before(settings.AlertSetAt.Time) {
		return false, nil
	}

	intro, err := h.Telegram.Send(tgbotapi.NewMessage(chatID, "🔔 تنبيه هام من الإدارة 🔔"))
	if err != nil {
		return false, errors.Wrap(err, "cannot send alert intro")
	}

	if _, err := h.Telegram.Request(tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           intro.MessageID,
		DisableNotification: true,
	}); err != nil {
		h.Logger.WithError(err).Warn("cannot pin alert intro")
	}

	for _, item := range settings.AlertMessage {
		if item.RequiresForward {
			_, err = h.Telegram.Send(tgbotapi.NewForward(chatID, item.FromChatID, item.MessageID))
		} else {
			_, err = h.Telegram.CopyMessage(tgbotapi.NewCopyMessage(chatID, item.FromChatID, item.MessageID))
		}
		if err != nil {
			h.Logger.WithError(err).WithField("message_id", item.MessageID).Error("cannot deliver alert item")
		}
	}

	if err := h.DB.MarkAlertSeen(user.ID, intro.MessageID); err != nil {
		return true, errors.Wrap(err, "cannot mark alert as seen")
	}

	return true, nil
}

// routeLabel resolves control captions first, then tree buttons of the
// current level.
func (h *Handler) routeLabel(user *model.User, msg *tgbotapi.Message) error {
	text := msg.Text
	chatID := msg.Chat.ID

	switch text {
	case keyboard.LabelMainMenu:
		if err := h.setPath(user, model.PathRoot); err != nil {
			return err
		}
		if err := h.setState(user, baseState(user.State), model.StateData{}); err != nil {
			return err
		}
		return h.replyWithKeyboard(user, chatID, "القائمة الرئيسية")

	case keyboard.LabelBack:
		if err := h.setPath(user, model.PathPop(user.CurrentPath)); err != nil {
			return err
		}
		return h.replyWithKeyboard(user, chatID, "تم الرجوع.")

	case keyboard.LabelSupervision:
		if !user.IsAdmin {
			break
		}
		if err := h.setPath(user, model.PathSupervision); err != nil {
			return err
		}
		return h.replyWithKeyboard(user, chatID, "قائمة الإشراف")

	case keyboard.LabelContactAdmin:
		return h.startContact(user, chatID)

	case keyboard.LabelCancelOperation, keyboard.LabelCancel, keyboard.LabelCancelMove:
		return h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	if user.IsAdmin {
		if handled, err := h.routeAdminLabel(user, msg); handled || err != nil {
			return err
		}
	}

	if user.CurrentPath == model.PathSupervision {
		return nil
	}

	return h.navigate(user, msg)
}

// routeAdminLabel handles the admin control captions: edit-mode toggles,
// the tree tools and the supervision panel.
func (h *Handler) routeAdminLabel(user *model.User, msg *tgbotapi.Message) (bool, error) {
	text := msg.Text
	chatID := msg.Chat.ID

	switch text {
	case keyboard.LabelEditButtons, keyboard.LabelStopEditButtons:
		next := model.StateEditingButtons
		reply := "تم تفعيل وضع تعديل الأزرار."
		if user.State == model.StateEditingButtons {
			next = model.StateNormal
			reply = "تم إلغاء وضع تعديل الأزرار."
		}
		if err := h.setState(user, next, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, reply)

	case keyboard.LabelEditContent, keyboard.LabelStopEditContent:
		next := model.StateEditingContent
		reply := "تم تفعيل وضع تعديل المحتوى."
		if user.State == model.StateEditingContent {
			next = model.StateNormal
			reply = "تم إلغاء وضع تعديل المحتوى."
		}
		if err := h.setState(user, next, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, reply)

	case keyboard.LabelAddButton:
		if user.State != model.StateEditingButtons {
			return false, nil
		}
		if err := h.setState(user, model.StateAwaitingNewButtonName, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.send(chatID, "أدخل اسم الزر الجديد: يمكنك ادخال اكثر من اسم مفصولين ب enter اي كل اسم في سطر منفرد")

	case keyboard.LabelAddMessage:
		if user.State != model.StateEditingContent {
			return false, nil
		}
		buttonID, ok := model.PathTail(user.CurrentPath)
		if !ok {
			return true, nil
		}
		data := model.StateData{Collect: &model.Collection{ButtonID: buttonID}}
		if err := h.setState(user, model.StateAwaitingBulkMessages, data); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID,
			"📝 وضع إضافة الرسائل المتعددة 📝\n\nأرسل أو وجّه الآن كل الرسائل التي تريد إضافتها. عند الانتهاء، اضغط على زر \"✅ إنهاء الإضافة\".")

	case keyboard.LabelMoveButtons, keyboard.LabelCopyButtons:
		if user.State != model.StateEditingButtons {
			return false, nil
		}
		action := "move"
		reply := "✂️ وضع تحديد الأزرار للنقل\n\nاضغط على الأزرار التي تريد نقلها لتحديدها. عند الانتهاء، اضغط \"✅ تأكيد الاختيار\"."
		if text == keyboard.LabelCopyButtons {
			action = "copy"
			reply = "📥 وضع تحديد الأزرار للنسخ\n\nاضغط على الأزرار التي تريد نسخها لتحديدها. عند الانتهاء، اضغط \"✅ تأكيد الاختيار\"."
		}
		data := model.StateData{Selection: &model.Selection{Action: action}}
		if err := h.setState(user, model.StateSelectingButtons, data); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, reply)

	case keyboard.LabelDynamicTransfer:
		if user.State != model.StateEditingButtons {
			return false, nil
		}
		data := model.StateData{Transfer: &model.Transfer{Step: model.StepAwaitingButtonSource}}
		if err := h.setState(user, model.StateDynamicTransfer, data); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID,
			"📥 وضع النقل الديناميكي\n\nالخطوة 1: قم بإعادة توجيه أي رسالة من (القناة أو الجروب أو البوت) الذي يمثل مصدر الأزرار.")

	case keyboard.LabelDefaultButtons:
		if user.State != model.StateEditingButtons {
			return false, nil
		}
		if err := h.setState(user, model.StateAwaitingDefaultNames, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID,
			"➕ أرسل أسماء الأزرار الافتراضية، كل اسم في سطر منفرد. ثم اضغط زر التأكيد في الأسفل.")
	}

	if user.CurrentPath == model.PathSupervision {
		return h.routeSupervisionLabel(user, msg)
	}

	return false, nil
}

// navigate matches the text against the current sibling set and either
// enters the node or renders its content.
func (h *Handler) navigate(user *model.User, msg *tgbotapi.Message) error {
	text := msg.Text
	chatID := msg.Chat.ID

	button, err := h.DB.ButtonByLabel(model.PathParentID(user.CurrentPath), text)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot resolve button"))
	}
	if button == nil {
		return nil
	}

	if button.AdminOnly && !user.IsAdmin {
		return h.send(chatID, "🚫 عذراً، هذا القسم مخصص للمشرفين فقط.")
	}

	if user.State == model.StateEditingButtons && user.IsAdmin {
		return h.editModeButtonClick(user, chatID, button)
	}

	hasChildren, err := h.DB.HasChildren(button.ID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot check children"))
	}
	hasMessages, err := h.DB.HasMessages(button.ID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot check messages"))
	}

	if err := h.DB.LogButtonClick(button.ID, user.ID); err != nil {
		h.Logger.WithError(err).Error("cannot log button click")
	}

	canEnter := hasChildren || (user.IsAdmin &&
		(user.State == model.StateEditingContent || user.State == model.StateAwaitingDestination))

	if canEnter {
		if err := h.setPath(user, model.PathPush(user.CurrentPath, button.ID)); err != nil {
			return err
		}
		if _, err := h.sendButtonMessages(user, chatID, button.ID, user.State == model.StateEditingContent); err != nil {
			return err
		}

		reply := fmt.Sprintf("أنت الآن في قسم: %s", text)
		if user.State == model.StateAwaitingDestination && !hasChildren && !hasMessages {
			action := "النقل"
			if sel := user.StateData.Selection; sel != nil && sel.Action == "copy" {
				action = "النسخ"
			}
			reply = fmt.Sprintf("🧭 تم الدخول إلى القسم الفارغ [%s].\nاضغط \"✅ %s إلى هنا\" لاختياره كوجهة.", text, action)
		} else if user.State == model.StateEditingContent && !hasChildren && !hasMessages {
			reply = "هذا الزر فارغ. يمكنك الآن إضافة رسائل أو أزرار فرعية."
		}
		return h.replyWithKeyboard(user, chatID, reply)
	}

	if hasMessages {
		_, err := h.sendButtonMessages(user, chatID, button.ID, false)
		return err
	}

	return h.send(chatID, "لم يتم إضافة محتوى إلى هذا القسم بعد.")
}

// editModeButtonClick implements the double-click convention of the button
// edit mode: the first click shows the per-button controls, a second click
// on the same button enters it.
func (h *Handler) editModeButtonClick(user *model.User, chatID int64, button *model.Button) error {
	if user.StateData.LastClickedButtonID == button.ID {
		if err := h.setPath(user, model.PathPush(user.CurrentPath, button.ID)); err != nil {
			return err
		}
		if err := h.setStateData(user, model.StateData{}); err != nil {
			return err
		}
		return h.replyWithKeyboard(user, chatID, fmt.Sprintf("تم الدخول إلى \"%s\"", button.Text))
	}

	if err := h.setStateData(user, model.StateData{LastClickedButtonID: button.ID}); err != nil {
		return err
	}

	status := "👥 للجميع"
	if button.AdminOnly {
		status = "🔒 للمشرفين فقط"
	}
	text := fmt.Sprintf(
		"تم اختيار الزر: <b>%s</b>\nالحالة الحالية: <b>%s</b>\n\n(اضغط مرة أخرى للدخول إليه وتعديل محتواه)",
		button.Text, status,
	)

	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup([]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✏️", fmt.Sprintf("btn:rename:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("🗑️", fmt.Sprintf("btn:delete:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("📊", fmt.Sprintf("btn:stats:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("🔒", fmt.Sprintf("btn:adminonly:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("btn:left:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("🔼", fmt.Sprintf("btn:up:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("🔽", fmt.Sprintf("btn:down:%d", button.ID)),
		tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("btn:right:%d", button.ID)),
	})

	_, err := h.Telegram.Send(reply)
	return errors.Wrap(err, "cannot send message")
}

// baseState keeps the edit modes alive across a jump to the main menu and
// resets everything else.
func baseState(state model.State) model.State {
	switch state {
	case model.StateEditingButtons, model.StateEditingContent:
		return state
	default:
		return model.StateNormal
	}
}

func firstNonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
