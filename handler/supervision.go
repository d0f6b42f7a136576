package handler

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// routeSupervisionLabel handles the supervision panel captions.
func (h *Handler) routeSupervisionLabel(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	switch msg.Text {
	case keyboard.LabelStats:
		return true, h.sendStatsReport(chatID)

	case keyboard.LabelBroadcast:
		data := model.StateData{Collect: &model.Collection{}}
		if err := h.setState(user, model.StateAwaitingBroadcastMessages, data); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID,
			"📝 وضع البث الجماعي 📝\n\nأرسل أو وجّه الآن كل الرسائل التي تريد بثها للمستخدمين (نص، صورة، فيديو، ملف...).\n\nعندما تنتهي، اضغط على زر \"✅ إنهاء الإضافة والبدء\".")

	case keyboard.LabelAlert:
		return true, h.showAlertMenu(chatID)

	case keyboard.LabelEditAdmins:
		if user.ID != h.Config.Telegram.SuperAdminID {
			return true, h.send(chatID, "🚫 هذه الميزة للمشرف الرئيسي فقط.")
		}
		return true, h.showAdminMenu(chatID)

	case keyboard.LabelEditWelcome:
		if err := h.setState(user, model.StateAwaitingWelcomeMessage, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.send(chatID, "أرسل رسالة الترحيب الجديدة:")

	case keyboard.LabelBannedList:
		return true, h.sendBannedList(chatID)
	}

	return false, nil
}

// sendStatsReport renders the general usage report with the daily and
// all-time top-button rankings.
func (h *Handler) sendStatsReport(chatID int64) error {
	stats, err := h.DB.GeneralStats()
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get general stats"))
	}
	topDaily, err := h.DB.TopButtons(true)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get daily top buttons"))
	}
	topAllTime, err := h.DB.TopButtons(false)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get all-time top buttons"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>📊 الإحصائيات العامة:</b>\n\n")
	fmt.Fprintf(&b, "👥 إجمالي المستخدمين: <code>%d</code>\n\n", stats.TotalUsers)
	fmt.Fprintf(&b, "<b>👤 المستخدمون النشطون:</b>\n")
	fmt.Fprintf(&b, "- اليوم (تفاعلوا): <code>%d</code>\n", stats.DailyActiveUsers)
	fmt.Fprintf(&b, "- آخر 3 أيام: <code>%d</code>\n", stats.Active3d)
	fmt.Fprintf(&b, "- آخر 7 أيام: <code>%d</code>\n\n", stats.Active7d)
	fmt.Fprintf(&b, "<b>🚫 المستخدمون غير النشطين:</b>\n")
	fmt.Fprintf(&b, "- أكثر من 3 أيام: <code>%d</code>\n", stats.Inactive3d)
	fmt.Fprintf(&b, "- أكثر من 7 أيام: <code>%d</code>\n\n", stats.Inactive7d)
	fmt.Fprintf(&b, "<b>🗂 محتوى البوت:</b>\n")
	fmt.Fprintf(&b, "- الأزرار: <code>%d</code>\n", stats.TotalButtons)
	fmt.Fprintf(&b, "- الرسائل: <code>%d</code>\n\n", stats.TotalMessages)
	fmt.Fprintf(&b, "<b>🖱️ الضغطات:</b>\n")
	fmt.Fprintf(&b, "- اليوم: <code>%d</code>\n", stats.DailyClicks)
	fmt.Fprintf(&b, "- الكلية: <code>%d</code>\n\n", stats.TotalClicks)

	fmt.Fprintf(&b, "----\n\n%s\n\n", formatTopButtons("🏆 الأكثر استخداماً (اليوم):", topDaily, true))
	fmt.Fprintf(&b, "----\n\n%s", formatTopButtons("🏆 الأكثر استخداماً (الكلي):", topAllTime, false))

	return h.sendHTML(chatID, b.String())
}

func formatTopButtons(title string, rows []model.ButtonUsage, withUsers bool) string {
	if len(rows) == 0 {
		return title + "\nلا توجد بيانات لعرضها."
	}

	var b strings.Builder
	b.WriteString(title)
	for _, row := range rows {
		fmt.Fprintf(&b, "\n\n<b>%s</b>\n- 🖱️ الضغطات: <code>%d</code>", row.Text, row.Clicks)
		if withUsers {
			fmt.Fprintf(&b, "\n- 👤 المستخدمون: <code>%d</code>", row.UniqueUsers)
		}
	}
	return b.String()
}

// showAlertMenu reports the alert status, previews the stored content and
// offers the alert actions.
func (h *Handler) showAlertMenu(chatID int64) error {
	settings, err := h.DB.GetSettings()
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get settings"))
	}

	status := "ℹ️ <b>حالة رسالة التنبيه</b>\n\n"
	if settings.AlertActive(timeNow()) {
		seen, err := h.DB.CountAlertSeenSince(settings.AlertSetAt.Time)
		if err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot count alert views"))
		}
		status += fmt.Sprintf(
			"الحالة: <b>فعّالة</b> ✅\nعدد الرسائل: <code>%d</code>\nعدد من شاهدوا التنبيه: <code>%d</code>\nستنتهي في: <code>%s</code>",
			len(settings.AlertMessage), seen, settings.AlertExpiresAt().Format("2006-01-02 15:04"),
		)
		if err := h.sendHTML(chatID, status); err != nil {
			return err
		}

		if err := h.send(chatID, "--- 🔽 محتوى التنبيه الحالي 🔽 ---"); err != nil {
			return err
		}
		for _, item := range settings.AlertMessage {
			if _, err := h.Telegram.CopyMessage(tgbotapi.NewCopyMessage(chatID, item.FromChatID, item.MessageID)); err != nil {
				h.Logger.WithError(err).WithField("message_id", item.MessageID).Warn("cannot preview alert item")
			}
		}
	} else {
		status += "الحالة: <b>غير فعّالة</b> ❌"
		if err := h.sendHTML(chatID, status); err != nil {
			return err
		}
	}

	menu := tgbotapi.NewMessage(chatID, "اختر الإجراء المطلوب:")
	menu.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("➕ تعيين تنبيه جديد", "alert:set")},
		[]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("🗑️ حذف التنبيه الحالي", "alert:delete")},
		[]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("📌 إلغاء تثبيت التنبيه للجميع", "alert:unpin_all")},
	)
	_, err = h.Telegram.Send(menu)
	return errors.Wrap(err, "cannot send message")
}

func (h *Handler) showAdminMenu(chatID int64) error {
	adminIDs, err := h.DB.AdminIDs()
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list admins"))
	}

	var b strings.Builder
	b.WriteString("<b>المشرفون الحاليون:</b>\n")
	for _, id := range adminIDs {
		fmt.Fprintf(&b, "- %s (<code>%d</code>)\n", h.chatDisplayName(id), id)
	}

	msg := tgbotapi.NewMessage(chatID, b.String())
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup([]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("➕ إضافة مشرف", "admin:add"),
		tgbotapi.NewInlineKeyboardButtonData("➖ حذف مشرف", "admin:remove"),
	})
	_, err = h.Telegram.Send(msg)
	return errors.Wrap(err, "cannot send message")
}

func (h *Handler) sendBannedList(chatID int64) error {
	bannedIDs, err := h.DB.BannedIDs()
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list banned users"))
	}
	if len(bannedIDs) == 0 {
		return h.send(chatID, "✅ لا يوجد مستخدمون محظورون حاليًا.")
	}

	var b strings.Builder
	b.WriteString("<b>🚫 قائمة المستخدمين المحظورين:</b>\n\n")
	for _, id := range bannedIDs {
		name := "مستخدم غير معروف"
		username := "لا يوجد"
		if chat, err := h.Telegram.GetChat(tgbotapi.ChatInfoConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: id},
		}); err == nil {
			if full := strings.TrimSpace(chat.FirstName + " " + chat.LastName); full != "" {
				name = full
			}
			if chat.UserName != "" {
				username = "@" + chat.UserName
			}
		}
		fmt.Fprintf(&b, "👤 <b>الاسم:</b> %s\n<b>المعرف:</b> %s\n🆔 <b>ID:</b> <code>%d</code>\nCMD: <code>/unban %d</code>\n---\n", name, username, id, id)
	}

	return h.sendHTML(chatID, b.String())
}
