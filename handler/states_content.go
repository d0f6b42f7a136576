package handler

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// stateCollectBulk accumulates inbound messages for the current button until
// the finish caption, then persists the whole batch at once.
func (h *Handler) stateCollectBulk(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	collect := user.StateData.Collect
	if collect == nil {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	if msg.Text == keyboard.LabelFinishBulk {
		if len(collect.Messages) == 0 {
			if err := h.setState(user, model.StateEditingContent, model.StateData{}); err != nil {
				return true, err
			}
			return true, h.replyWithKeyboard(user, chatID, "تم إلغاء العملية حيث لم يتم إضافة أي رسائل.")
		}

		if err := h.DB.AppendMessages(collect.ButtonID, collect.Messages); err != nil {
			return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot append messages"))
		}
		if err := h.setState(user, model.StateEditingContent, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.refreshAdminView(user, chatID, collect.ButtonID,
			fmt.Sprintf("✅ تم إضافة %d رسالة بنجاح.", len(collect.Messages)))
	}

	draft, ok := captureDraft(msg)
	if !ok {
		return true, h.send(chatID, "⚠️ نوع الرسالة غير مدعوم.")
	}

	collect.Messages = append(collect.Messages, draft)
	data := user.StateData
	data.Collect = collect
	if err := h.setStateData(user, data); err != nil {
		return true, err
	}

	return true, h.replyWithKeyboard(user, chatID,
		fmt.Sprintf("👍 تمت إضافة الرسالة (%d). أرسل المزيد أو اضغط \"إنهاء الإضافة\".", len(collect.Messages)))
}

// stateMessageInput serves the single-shot content edit states entered from
// the per-message inline controls.
func (h *Handler) stateMessageInput(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	target := user.StateData.Target
	if target == nil {
		return true, h.cancelToBase(user, chatID, "⚠️ حدث خطأ: لم يتم العثور على الزر. تم إلغاء العملية.")
	}

	switch user.State {
	case model.StateAwaitingEditedText:
		draft, ok := captureDraft(msg)
		if !ok {
			return true, h.send(chatID, "⚠️ نوع الرسالة غير مدعوم.")
		}
		if err := h.DB.UpdateMessage(target.MessageID, draft); err != nil {
			return true, tool.NewHRError("⚠️ حدث خطأ. تم إلغاء التعديل.", errors.Wrap(err, "cannot update message"))
		}
		if err := h.setState(user, model.StateEditingContent, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.refreshAdminView(user, chatID, target.ButtonID, "✅ تم تعديل الرسالة بنجاح.")

	case model.StateAwaitingNewCaption:
		if msg.Text == "" && msg.Caption == "" {
			return true, h.send(chatID, "⚠️ يرجى إرسال نص أو رسالة تحتوي على شرح.")
		}
		caption := msg.Text
		entities := entitiesFromAPI(msg.Entities)
		if caption == "" {
			caption = msg.Caption
			entities = entitiesFromAPI(msg.CaptionEntities)
		}
		if err := h.DB.UpdateCaption(target.MessageID, caption, entities); err != nil {
			return true, tool.NewHRError("⚠️ حدث خطأ. تم إلغاء التعديل.", errors.Wrap(err, "cannot update caption"))
		}
		if err := h.setState(user, model.StateEditingContent, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.refreshAdminView(user, chatID, target.ButtonID, "✅ تم تحديث الشرح بنجاح.")

	case model.StateAwaitingReplacementFile:
		draft, ok := captureDraft(msg)
		if !ok || draft.Type == model.MessageText {
			return true, h.send(chatID, "⚠️ نوع الرسالة غير مدعوم. تم إلغاء العملية.")
		}
		existing, err := h.DB.GetMessage(target.MessageID)
		if err != nil {
			return true, tool.NewHRError("⚠️ حدث خطأ. تم إلغاء التعديل.", errors.Wrap(err, "cannot load message"))
		}
		// Keep the stored caption unless the new file brings its own.
		if draft.Caption == "" {
			draft.Caption = existing.Caption
			draft.Entities = existing.Entities
		}
		if err := h.DB.UpdateMessage(target.MessageID, draft); err != nil {
			return true, tool.NewHRError("⚠️ حدث خطأ. تم إلغاء التعديل.", errors.Wrap(err, "cannot replace file"))
		}
		if err := h.setState(user, model.StateEditingContent, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.refreshAdminView(user, chatID, target.ButtonID, "✅ تم استبدال الملف بنجاح.")

	default: // StateAwaitingNewMessage
		draft, ok := captureDraft(msg)
		if !ok {
			return true, h.send(chatID, "⚠️ نوع الرسالة غير مدعوم.")
		}
		if err := h.DB.InsertMessageAt(target.ButtonID, draft, target.TargetOrder); err != nil {
			if stateErr := h.setState(user, model.StateEditingContent, model.StateData{}); stateErr != nil {
				return true, stateErr
			}
			return true, tool.NewHRError("❌ حدث خطأ أثناء إضافة الرسالة. تم إلغاء العملية.", errors.Wrap(err, "cannot insert message"))
		}
		if err := h.setState(user, model.StateEditingContent, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.refreshAdminView(user, chatID, target.ButtonID, "✅ تم إضافة الرسالة بنجاح.")
	}
}

func (h *Handler) stateWelcomeMessage(user *model.User, msg *tgbotapi.Message) (bool, error) {
	if msg.Text == "" {
		return true, h.send(msg.Chat.ID, "⚠️ يرجى إرسال رسالة نصية فقط.")
	}

	if err := h.DB.SetWelcomeMessage(msg.Text); err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot set welcome message"))
	}
	if err := h.setState(user, model.StateNormal, model.StateData{}); err != nil {
		return true, err
	}
	return true, h.send(msg.Chat.ID, "✅ تم تحديث رسالة الترحيب بنجاح.")
}

// refreshAdminView rebuilds the edit-mode content view: the previous view
// messages are removed, the content is re-sent with fresh controls and the
// keyboard is refreshed with a confirmation.
func (h *Handler) refreshAdminView(user *model.User, chatID int64, buttonID int64, confirmation string) error {
	for _, viewID := range user.StateData.MessageViewIDs {
		if _, err := h.Telegram.Request(tgbotapi.NewDeleteMessage(chatID, viewID)); err != nil {
			h.Logger.WithError(err).WithField("message_id", viewID).Warn("cannot delete view message")
		}
	}

	if _, err := h.sendButtonMessages(user, chatID, buttonID, true); err != nil {
		return err
	}

	return h.replyWithKeyboard(user, chatID, confirmation)
}
