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

// startContact opens the user-to-admin relay by asking for the batch number
// that identifies the sender to the admins.
func (h *Handler) startContact(user *model.User, chatID int64) error {
	if err := h.setState(user, model.StateAwaitingBatchNumber, model.StateData{Contact: &model.Contact{}}); err != nil {
		return err
	}
	return h.replyWithKeyboard(user, chatID, "أدخل رقم الدفعة الخاص بك")
}

func (h *Handler) stateBatchNumber(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	if msg.Text == keyboard.LabelCancelOperation {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}
	if msg.Text == "" {
		return true, h.send(chatID, "⚠️ يرجى إدخال رد نصي.")
	}

	batch := tool.NormalizeDigits(strings.TrimSpace(msg.Text))
	if _, err := strconv.Atoi(batch); err != nil {
		return true, h.send(chatID, "⚠️ يرجى إدخال أرقام فقط. ما هو رقم دفعتك؟")
	}

	data := model.StateData{Contact: &model.Contact{BatchNumber: batch}}
	if err := h.setState(user, model.StateContactingAdmin, data); err != nil {
		return true, err
	}
	return true, h.replyWithKeyboard(user, chatID, "✅ تم حفظ رقم الدفعة. أرسل الآن رسالتك ليتم توصيلها إلى الإدارة.")
}

// stateContactingAdmin relays the user's message to every admin: a header
// identifying the sender followed by a copy of the message itself.
func (h *Handler) stateContactingAdmin(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	if msg.Text == keyboard.LabelCancelOperation {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	contact := user.StateData.Contact
	batch := "غير محدد"
	if contact != nil && contact.BatchNumber != "" {
		batch = contact.BatchNumber
	}

	adminIDs, err := h.DB.AdminIDs()
	if err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list admins"))
	}

	header := fmt.Sprintf(
		"👤 <b>رسالة جديدة من مستخدم!</b>\n\n<b>الدفعة:</b> <code>%s</code>\n%s",
		batch, senderDetails(msg.From),
	)

	for _, adminID := range adminIDs {
		if err := h.sendRelayHeader(adminID, header, adminReplyControls(user.ID)); err != nil {
			h.Logger.WithError(err).WithField("admin_id", adminID).Error("cannot relay header to admin")
			continue
		}
		if _, err := h.Telegram.CopyMessage(tgbotapi.NewCopyMessage(adminID, chatID, msg.MessageID)); err != nil {
			h.Logger.WithError(err).WithField("admin_id", adminID).Error("cannot relay message to admin")
		}
	}

	return true, h.cancelToBase(user, chatID, "✅ تم إرسال رسالتك إلى الأدمن بنجاح.")
}

// stateReplyingToAdmin relays the user's answer back to the one admin who
// replied to them.
func (h *Handler) stateReplyingToAdmin(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	contact := user.StateData.Contact
	if contact == nil || contact.TargetAdminID == 0 {
		return true, h.cancelToBase(user, chatID, "⚠️ حدث خطأ، لم يتم تحديد المشرف للرد عليه.")
	}

	header := fmt.Sprintf("📝 <b>رد من مستخدم!</b>\n\n%s", senderDetails(msg.From))
	if err := h.sendRelayHeader(contact.TargetAdminID, header, adminReplyControls(user.ID)); err != nil {
		h.Logger.WithError(err).WithField("admin_id", contact.TargetAdminID).Error("cannot relay header to admin")
	}
	if _, err := h.Telegram.CopyMessage(tgbotapi.NewCopyMessage(contact.TargetAdminID, chatID, msg.MessageID)); err != nil {
		h.Logger.WithError(err).WithField("admin_id", contact.TargetAdminID).Error("cannot relay reply to admin")
	}

	return true, h.cancelToBase(user, chatID, "✅ تم إرسال ردك للمشرف بنجاح.")
}

// stateAdminReply delivers the admin's answer to the user, with a reply
// button so the conversation can continue. The admin is identified to the
// user by their position in the admin list, never by identity.
func (h *Handler) stateAdminReply(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	contact := user.StateData.Contact
	if contact == nil || contact.TargetUserID == 0 {
		return true, h.cancelToBase(user, chatID, "⚠️ حدث خطأ: لم يتم العثور على المستخدم المراد الرد عليه.")
	}

	adminIDs, err := h.DB.AdminIDs()
	if err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list admins"))
	}
	number := "غير محدد"
	for n, id := range adminIDs {
		if id == user.ID {
			number = strconv.Itoa(n + 1)
			break
		}
	}

	header := tgbotapi.NewMessage(contact.TargetUserID,
		fmt.Sprintf("✉️ رسالة جديدة من الأدمن رقم %s", number))
	header.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup([]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("✍️ الرد على الأدمن رقم %s", number),
			fmt.Sprintf("user:reply:%d", user.ID)),
	})
	if _, err := h.Telegram.Send(header); err != nil {
		return true, h.cancelToBase(user, chatID, fmt.Sprintf(
			"❌ فشل إرسال الرسالة للمستخدم %d. قد يكون المستخدم قد حظر البوت.", contact.TargetUserID))
	}
	if _, err := h.Telegram.CopyMessage(tgbotapi.NewCopyMessage(contact.TargetUserID, chatID, msg.MessageID)); err != nil {
		return true, h.cancelToBase(user, chatID, fmt.Sprintf(
			"❌ فشل إرسال الرسالة للمستخدم %d. قد يكون المستخدم قد حظر البوت.", contact.TargetUserID))
	}

	return true, h.cancelToBase(user, chatID, "✅ تم إرسال ردك بنجاح.")
}

func (h *Handler) sendRelayHeader(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := h.Telegram.Send(msg)
	return errors.Wrap(err, "cannot send message")
}

func adminReplyControls(userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup([]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✍️ رد", fmt.Sprintf("admin:reply:%d", userID)),
		tgbotapi.NewInlineKeyboardButtonData("🚫 حظر", fmt.Sprintf("admin:ban:%d", userID)),
	})
}

func senderDetails(from *tgbotapi.User) string {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	username := "لا يوجد"
	if from.UserName != "" {
		username = "@" + from.UserName
	}
	return fmt.Sprintf("<b>الاسم:</b> %s\n<b>المعرف:</b> %s\n<b>ID:</b> <code>%d</code>", name, username, from.ID)
}
