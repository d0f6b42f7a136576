package handler

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// stateCollectBroadcast accumulates the broadcast batch, then queues it as a
// background job for the external worker. Polls cannot be copied later, so
// the bot publishes its own copy right away and stores a reference to it.
func (h *Handler) stateCollectBroadcast(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	collect := user.StateData.Collect
	if collect == nil {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	if msg.Text == keyboard.LabelFinishBroadcast {
		if len(collect.Messages) == 0 {
			return true, h.cancelToBase(user, chatID, "تم إلغاء العملية لعدم إضافة أي رسائل.")
		}

		status, err := h.Telegram.Send(tgbotapi.NewMessage(chatID, "⏳ جارٍ تسجيل حزمة الرسائل وإرسالها للمعالجة..."))
		if err != nil {
			return true, errors.Wrap(err, "cannot send message")
		}

		jobID, err := h.DB.InsertBackgroundJob("broadcast", map[string]interface{}{
			"messages": collect.Messages,
		}, user.ID)
		if err != nil {
			return true, tool.NewHRError("❌ حدث خطأ أثناء تسجيل عملية البث.", errors.Wrap(err, "cannot insert broadcast job"))
		}
		if err := tool.DispatchJob(h.Config.Jobs.Endpoint, jobID); err != nil {
			h.Logger.WithError(err).WithField("job_id", jobID).Error("cannot dispatch broadcast job")
		}

		if err := h.editText(chatID, status.MessageID, fmt.Sprintf(
			"✅ تم بدء عملية بث %d رسالة في الخلفية. سيصلك تقرير عند الانتهاء.", len(collect.Messages))); err != nil {
			h.Logger.WithError(err).Warn("cannot edit broadcast status")
		}

		return true, h.cancelToBase(user, chatID, "تم الرجوع للوضع الطبيعي.")
	}

	var draft model.MessageDraft
	if msg.Poll != nil {
		botPoll, err := h.republishPoll(chatID, msg.Poll)
		if err != nil {
			return true, err
		}
		draft = model.MessageDraft{
			Type:    model.MessagePoll,
			Content: strconv.Itoa(botPoll.MessageID),
			Caption: strconv.FormatInt(chatID, 10),
		}
	} else {
		var ok bool
		draft, ok = captureDraft(msg)
		if !ok {
			return true, h.send(chatID, "⚠️ نوع الرسالة غير مدعوم للبث الجماعي.")
		}
	}

	collect.Messages = append(collect.Messages, draft)
	data := user.StateData
	data.Collect = collect
	if err := h.setStateData(user, data); err != nil {
		return true, err
	}

	return true, h.replyWithKeyboard(user, chatID, fmt.Sprintf(
		"👍 تمت إضافة الرسالة (%d). أرسل المزيد أو اضغط على زر الإنهاء.", len(collect.Messages)))
}

// stateDirectBroadcast is the immediate fan-out path: the single message is
// relayed to every non-banned user right here, without the job queue.
func (h *Handler) stateDirectBroadcast(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	recipients, err := h.DB.RecipientIDs()
	if err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list recipients"))
	}

	status, err := h.Telegram.Send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("⏳ جاري إرسال الرسالة إلى %d مستخدم...", len(recipients))))
	if err != nil {
		return true, errors.Wrap(err, "cannot send message")
	}

	var sent, failed int
	for _, recipientID := range recipients {
		// Polls keep their vote state only when forwarded.
		if msg.Poll != nil {
			_, err = h.Telegram.Send(tgbotapi.NewForward(recipientID, chatID, msg.MessageID))
		} else {
			_, err = h.Telegram.CopyMessage(tgbotapi.NewCopyMessage(recipientID, chatID, msg.MessageID))
		}
		if err != nil {
			failed++
			h.Logger.WithError(err).WithField("user_id", recipientID).Warn("cannot broadcast to user")
			continue
		}
		sent++
	}

	if err := h.editText(chatID, status.MessageID, fmt.Sprintf(
		"✅ تم الإرسال بنجاح إلى %d مستخدم.\n❌ فشل الإرسال إلى %d مستخدم.", sent, failed)); err != nil {
		h.Logger.WithError(err).Warn("cannot edit broadcast status")
	}

	return true, h.cancelToBase(user, chatID, "تم الرجوع للوضع الطبيعي.")
}

// stateCollectAlert gathers the alert content. Non-poll items are later
// copied without attribution; polls are republished under the bot's identity
// and marked for forwarding so votes stay shared.
func (h *Handler) stateCollectAlert(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	collect := user.StateData.Collect
	if collect == nil {
		collect = &model.Collection{}
	}

	if msg.Text == keyboard.LabelFinishAlert {
		if len(collect.AlertItems) == 0 {
			return true, h.cancelToBase(user, chatID, "تم إلغاء العملية لعدم إضافة رسائل.")
		}
		data := model.StateData{Collect: collect}
		if err := h.setState(user, model.StateAwaitingAlertDuration, data); err != nil {
			return true, err
		}
		return true, h.send(chatID, fmt.Sprintf(
			"👍 تم تجميع %d رسالة. الآن أدخل مدة صلاحية التنبيه بالساعات (مثال: 6).", len(collect.AlertItems)))
	}

	var item model.AlertItem
	var reply string
	if msg.Poll != nil {
		botPoll, err := h.republishPoll(chatID, msg.Poll)
		if err != nil {
			return true, err
		}
		item = model.AlertItem{RequiresForward: true, FromChatID: chatID, MessageID: botPoll.MessageID}
		reply = "✅ تم اعتماد نسخة الاستطلاع التي أنشأها البوت (%d). أرسل المزيد أو اضغط \"إنهاء\"."
	} else {
		item = model.AlertItem{FromChatID: msg.Chat.ID, MessageID: msg.MessageID}
		reply = "📥 تم حفظ الرسالة (%d). أرسل المزيد أو اضغط \"إنهاء\"."
	}

	collect.AlertItems = append(collect.AlertItems, item)
	data := user.StateData
	data.Collect = collect
	if err := h.setStateData(user, data); err != nil {
		return true, err
	}

	return true, h.replyWithKeyboard(user, chatID, fmt.Sprintf(reply, len(collect.AlertItems)))
}

func (h *Handler) stateAlertDuration(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	collect := user.StateData.Collect
	if collect == nil || len(collect.AlertItems) == 0 {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	hours, err := strconv.Atoi(tool.NormalizeDigits(msg.Text))
	if err != nil || hours <= 0 {
		return true, h.send(chatID, "⚠️ يرجى إدخال رقم صحيح أكبر من صفر.")
	}

	if err := h.DB.SetAlert(collect.AlertItems, hours); err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot set alert"))
	}

	return true, h.cancelToBase(user, chatID, fmt.Sprintf("✅ تم تفعيل التنبيه بنجاح لمدة %d ساعة.", hours))
}

// stateAdminID validates the submitted id against Telegram and asks for a
// typed confirmation before touching the roster.
func (h *Handler) stateAdminID(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	targetID, err := strconv.ParseInt(tool.NormalizeDigits(msg.Text), 10, 64)
	if err != nil {
		return true, h.send(chatID, "⚠️ يرجى إرسال ID رقمي صحيح.")
	}

	chat, err := h.Telegram.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: targetID},
	})
	if err != nil {
		return true, h.send(chatID, "⚠️ لم يتم العثور على مستخدم بهذا الـ ID.")
	}

	name := chat.FirstName
	if chat.LastName != "" {
		name += " " + chat.LastName
	}

	next := model.StateAwaitingAddAdminConfirm
	question := "هل أنت متأكد من إضافة هذا المستخدم كمشرف؟"
	if user.State == model.StateAwaitingAdminIDToRemove {
		next = model.StateAwaitingRemAdminConfirm
		question = "هل أنت متأكد من حذف هذا المستخدم من المشرفين؟"
	}

	data := model.StateData{Admin: &model.AdminTarget{ID: targetID, Name: name}}
	if err := h.setState(user, next, data); err != nil {
		return true, err
	}

	return true, h.sendHTML(chatID, fmt.Sprintf(
		"👤 المستخدم: %s (<code>%d</code>)\n%s\nأرسل \"%s\" للتأكيد.",
		name, targetID, question, keyboard.ConfirmWord))
}

func (h *Handler) stateAdminConfirm(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	target := user.StateData.Admin

	if msg.Text != keyboard.ConfirmWord || target == nil {
		return true, h.cancelToBase(user, chatID, "تم إلغاء العملية.")
	}

	if user.State == model.StateAwaitingRemAdminConfirm {
		if target.ID == h.Config.Telegram.SuperAdminID {
			return true, h.cancelToBase(user, chatID, "🚫 لا يمكن حذف الأدمن الرئيسي.")
		}
		if err := h.DB.SetAdmin(target.ID, false); err != nil {
			return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot demote admin"))
		}
		return true, h.cancelToBase(user, chatID, fmt.Sprintf("🗑️ تم حذف %s من قائمة المشرفين.", target.Name))
	}

	if err := h.DB.SetAdmin(target.ID, true); err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot promote admin"))
	}
	return true, h.cancelToBase(user, chatID, fmt.Sprintf("✅ تم إضافة %s كمشرف بنجاح.", target.Name))
}

// republishPoll re-creates an inbound poll under the bot's own identity so
// it can be forwarded to others later.
func (h *Handler) republishPoll(chatID int64, poll *tgbotapi.Poll) (tgbotapi.Message, error) {
	options := make([]string, 0, len(poll.Options))
	for _, option := range poll.Options {
		options = append(options, option.Text)
	}

	config := tgbotapi.NewPoll(chatID, poll.Question, options...)
	config.IsAnonymous = poll.IsAnonymous
	config.AllowsMultipleAnswers = poll.AllowsMultipleAnswers
	config.Type = poll.Type

	sent, err := h.Telegram.Send(config)
	return sent, errors.Wrap(err, "cannot republish poll")
}
