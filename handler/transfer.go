package handler

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// stateDynamicTransfer builds buttons with their content out of forwarded
// messages. Two source chats are registered first; afterwards every forward
// is routed by its origin: button-source forwards open a new unit, content-
// source forwards fill the active one.
func (h *Handler) stateDynamicTransfer(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	transfer := user.StateData.Transfer
	if transfer == nil {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	switch msg.Text {
	case keyboard.LabelCancel, keyboard.LabelCancelOperation:
		if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, "👍 تم إلغاء العملية.")

	case keyboard.LabelFinishTransfer:
		return true, h.finishTransfer(user, chatID, transfer)
	}

	switch transfer.Step {
	case model.StepAwaitingButtonSource:
		sourceID := forwardOriginID(msg)
		if sourceID == 0 {
			return true, h.send(chatID, "⚠️ خطأ: يرجى إعادة توجيه رسالة صالحة.")
		}
		transfer.ButtonSourceID = sourceID
		transfer.Step = model.StepAwaitingContentSource
		if err := h.saveTransfer(user, transfer); err != nil {
			return true, err
		}
		return true, h.send(chatID, "✅ تم تحديد مصدر الأزرار.\n\nالخطوة 2: الآن قم بتوجيه رسالة من مصدر المحتوى.")

	case model.StepAwaitingContentSource:
		sourceID := forwardOriginID(msg)
		if sourceID == 0 {
			return true, h.send(chatID, "⚠️ خطأ: يرجى إعادة توجيه رسالة صالحة.")
		}
		transfer.ContentSourceID = sourceID
		transfer.Step = model.StepAwaitingNextButton
		if err := h.saveTransfer(user, transfer); err != nil {
			return true, err
		}
		return true, h.send(chatID, "✅ تم تحديد مصدر المحتوى.\n\n🚀 أنت الآن جاهز!\nابدأ الآن بتوجيه أول رسالة من مصدر الزر لبدء العملية.")
	}

	switch forwardOriginID(msg) {
	case transfer.ButtonSourceID:
		return true, h.transferButtonMessage(user, chatID, transfer, msg)
	case transfer.ContentSourceID:
		return true, h.transferContentMessage(user, chatID, transfer, msg)
	}

	return true, h.send(chatID, "⚠️ خطأ: يرجى إعادة توجيه رسالة صالحة.")
}

// transferButtonMessage closes the active unit, if any, and opens a new one
// named after the forward's text.
func (h *Handler) transferButtonMessage(user *model.User, chatID int64, transfer *model.Transfer, msg *tgbotapi.Message) error {
	name := msg.Text
	if name == "" {
		name = msg.Caption
	}
	if name == "" {
		return h.send(chatID, "⚠️ تم تجاهل رسالة الزر، لا تحتوي على نص أو تعليق.")
	}

	if transfer.Current != nil {
		transfer.Completed = append(transfer.Completed, *transfer.Current)
		if err := h.send(chatID, fmt.Sprintf(
			"🔔 اكتمل بناء الزر السابق! \"%s\" مع %d رسالة.",
			transfer.Current.Name, len(transfer.Current.Content))); err != nil {
			return err
		}
	}

	transfer.Current = &model.TransferUnit{Name: name}
	transfer.Step = model.StepAwaitingContent
	if err := h.saveTransfer(user, transfer); err != nil {
		return err
	}

	return h.send(chatID, fmt.Sprintf("👍 تم استلام الزر \"%s\". الآن قم بتوجيه رسائل المحتوى الخاصة به.", name))
}

func (h *Handler) transferContentMessage(user *model.User, chatID int64, transfer *model.Transfer, msg *tgbotapi.Message) error {
	if transfer.Current == nil {
		return h.send(chatID, "⚠️ خطأ: يجب أن تبدأ بزر أولاً. قم بتوجيه رسالة من مصدر الأزرار.")
	}

	draft, ok := captureDraft(msg)
	if !ok {
		return h.send(chatID, "⚠️ نوع رسالة المحتوى غير مدعوم حاليًا.")
	}

	transfer.Current.Content = append(transfer.Current.Content, draft)
	if err := h.saveTransfer(user, transfer); err != nil {
		return err
	}

	return h.send(chatID, fmt.Sprintf("📥 تمت إضافة المحتوى (%d) للزر النشط.", len(transfer.Current.Content)))
}

// finishTransfer flushes the open unit and imports everything at the current
// level in one transaction.
func (h *Handler) finishTransfer(user *model.User, chatID int64, transfer *model.Transfer) error {
	if transfer.Current != nil {
		transfer.Completed = append(transfer.Completed, *transfer.Current)
		if err := h.send(chatID, fmt.Sprintf(
			"🔔 اكتمل بناء الزر الأخير! \"%s\" مع %d رسالة.",
			transfer.Current.Name, len(transfer.Current.Content))); err != nil {
			return err
		}
		transfer.Current = nil
	}

	if len(transfer.Completed) == 0 {
		if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
			return err
		}
		return h.replyWithKeyboard(user, chatID, "لم يتم بناء أي أزرار مكتملة. تم الخروج من وضع النقل.")
	}

	status, err := h.Telegram.Send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"⏳ جاري إضافة %d زر مع محتوياتها إلى قاعدة البيانات...", len(transfer.Completed))))
	if err != nil {
		return errors.Wrap(err, "cannot send message")
	}

	if err := h.DB.ImportButtons(model.PathParentID(user.CurrentPath), transfer.Completed); err != nil {
		return tool.NewHRError("❌ حدث خطأ أثناء إضافة الأزرار. حاول مرة أخرى.", errors.Wrap(err, "cannot import buttons"))
	}

	if err := h.editText(chatID, status.MessageID,
		fmt.Sprintf("✅ تم إضافة %d زر بنجاح.", len(transfer.Completed))); err != nil {
		h.Logger.WithError(err).Warn("cannot edit transfer status")
	}

	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return err
	}
	return h.replyWithKeyboard(user, chatID, "تم تحديث لوحة المفاتيح.")
}

func (h *Handler) saveTransfer(user *model.User, transfer *model.Transfer) error {
	data := user.StateData
	data.Transfer = transfer
	return h.setStateData(user, data)
}

// forwardOriginID identifies the origin of a forwarded message, whether a
// user, channel or group. Zero means not a usable forward.
func forwardOriginID(msg *tgbotapi.Message) int64 {
	if msg.ForwardFrom != nil {
		return msg.ForwardFrom.ID
	}
	if msg.ForwardFromChat != nil {
		return msg.ForwardFromChat.ID
	}
	return 0
}
