package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"menubot/config"
	"menubot/database"
	"menubot/model"
	"menubot/tool"
)

const dbDownMessage = "عذراً، حدث خطأ في قاعدة البيانات. حاول لاحقاً."

// Swappable in tests.
var timeNow = time.Now

// Telegram is the slice of the bot API the handlers use.
type Telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
}

type Handler struct {
	DB       database.IDatabase
	Telegram Telegram
	Logger   logrus.FieldLogger
	Config   *config.Config
}

func NewHandler(db database.IDatabase, bot Telegram, logger logrus.FieldLogger, conf *config.Config) *Handler {
	return &Handler{
		DB:       db,
		Telegram: bot,
		Logger:   logger,
		Config:   conf,
	}
}

func (h *Handler) Start(msg *tgbotapi.Message) error {
	userID := msg.From.ID

	exists, err := h.DB.UserExists(userID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot check user"))
	}

	isAdmin := userID == h.Config.Telegram.SuperAdminID
	if exists {
		stored, err := h.DB.GetUser(userID)
		if err != nil {
			return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get user"))
		}
		isAdmin = isAdmin || stored.IsAdmin
	}

	user, err := h.DB.UpsertUser(&model.User{
		ID:      userID,
		ChatID:  msg.Chat.ID,
		IsAdmin: isAdmin,
	})
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot upsert user"))
	}

	if !exists {
		h.notifyAdminsAboutNewUser(msg.From)
	}

	settings, err := h.DB.GetSettings()
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get settings"))
	}

	welcome := "أهلاً بك في البوت!"
	if settings.WelcomeMessage.Valid && settings.WelcomeMessage.String != "" {
		welcome = settings.WelcomeMessage.String
	}

	return h.replyWithKeyboard(user, msg.Chat.ID, welcome)
}

func (h *Handler) notifyAdminsAboutNewUser(from *tgbotapi.User) {
	adminIDs, err := h.DB.AdminIDs()
	if err != nil {
		h.Logger.WithError(err).Error("cannot list admins for new user notification")
		return
	}
	total, err := h.DB.CountUsers()
	if err != nil {
		h.Logger.WithError(err).Error("cannot count users for new user notification")
		return
	}

	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	username := "لا يوجد"
	if from.UserName != "" {
		username = "@" + from.UserName
	}
	language := from.LanguageCode
	if language == "" {
		language = "غير محدد"
	}

	text := fmt.Sprintf(
		"👤 <b>مستخدم جديد انضم!</b>\n\n"+
			"<b>الاسم:</b> <a href=\"tg://user?id=%d\">%s</a>\n"+
			"<b>المعرف:</b> %s\n"+
			"<b>ID:</b> <code>%d</code>\n"+
			"<b>لغة التلجرام:</b> %s\n\n"+
			"👥 أصبح العدد الكلي للمستخدمين: <b>%d</b>",
		from.ID, name, username, from.ID, language, total,
	)

	for _, adminID := range adminIDs {
		if err := h.sendHTML(adminID, text); err != nil {
			h.Logger.WithError(err).WithField("admin_id", adminID).Error("cannot notify admin about new user")
		}
	}
}

// Ban handles /ban, Unban handles /unban. Both accept either a reply to a
// forwarded user message or a numeric id argument.
func (h *Handler) Ban(msg *tgbotapi.Message) error {
	return h.setBanned(msg, true)
}

func (h *Handler) Unban(msg *tgbotapi.Message) error {
	return h.setBanned(msg, false)
}

func (h *Handler) setBanned(msg *tgbotapi.Message, ban bool) error {
	user, err := h.DB.GetUser(msg.From.ID)
	if err != nil || !user.IsAdmin {
		return nil
	}

	targetID, targetName := h.resolveTarget(msg)
	if targetID == 0 {
		command := "/unban"
		if ban {
			command = "/ban"
		}
		return h.sendHTML(msg.Chat.ID, fmt.Sprintf(
			"⚠️ <b>استخدام غير صحيح.</b>\n\nيمكنك استخدام الأمر بطريقتين:\n"+
				"1️⃣ قم بالرد على رسالة مُعادة توجيهها من المستخدم بالأمر <code>%s</code>.\n"+
				"2️⃣ اكتب الأمر مع ID المستخدم، مثال: <code>%s 123456789</code>.",
			command, command,
		))
	}

	if targetID == h.Config.Telegram.SuperAdminID {
		return h.send(msg.Chat.ID, "🚫 لا يمكن تعديل حالة الأدمن الرئيسي.")
	}

	if err := h.DB.SetBanned(targetID, ban); err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot update banned flag"))
	}

	if ban {
		if err := h.sendHTML(msg.Chat.ID, fmt.Sprintf("🚫 تم حظر المستخدم <b>%s</b> بنجاح.", targetName)); err != nil {
			return err
		}
		if err := h.send(targetID, "🚫 لقد تم حظرك من استخدام هذا البوت."); err != nil {
			h.Logger.WithError(err).WithField("user_id", targetID).Warn("cannot notify banned user")
		}
		return nil
	}

	if err := h.sendHTML(msg.Chat.ID, fmt.Sprintf("✅ تم فك حظر المستخدم <b>%s</b> بنجاح.", targetName)); err != nil {
		return err
	}
	if err := h.send(targetID, "✅ تم فك الحظر عنك. يمكنك الآن استخدام البوت مجددًا."); err != nil {
		h.Logger.WithError(err).WithField("user_id", targetID).Warn("cannot notify unbanned user")
	}
	return nil
}

// Info handles /info: a profile and activity summary for one user.
func (h *Handler) Info(msg *tgbotapi.Message) error {
	admin, err := h.DB.GetUser(msg.From.ID)
	if err != nil || !admin.IsAdmin {
		return nil
	}

	targetID, targetName := h.resolveTarget(msg)
	if targetID == 0 {
		return h.sendHTML(msg.Chat.ID,
			"⚠️ <b>استخدام غير صحيح.</b>\n\nقم بالرد على رسالة مُعادة توجيهها من المستخدم بالأمر <code>/info</code>، "+
				"أو اكتب الأمر مع ID المستخدم، مثال: <code>/info 123456789</code>.")
	}

	target, err := h.DB.GetUser(targetID)
	if err != nil {
		return tool.NewHRError("⚠️ لم يتم العثور على مستخدم بهذا الـ ID.", errors.Wrap(err, "cannot get target user"))
	}

	activity, err := h.DB.UserActivity(targetID)
	if err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot get user activity"))
	}

	status := "نشط ✅"
	if target.Banned {
		status = "محظور 🚫"
	}
	role := "مستخدم"
	if target.IsAdmin {
		role = "مشرف 👑"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 <b>معلومات المستخدم</b>\n\n")
	fmt.Fprintf(&b, "<b>الاسم:</b> <a href=\"tg://user?id=%d\">%s</a>\n", targetID, targetName)
	fmt.Fprintf(&b, "<b>ID:</b> <code>%d</code>\n", targetID)
	fmt.Fprintf(&b, "<b>الحالة:</b> %s\n", status)
	fmt.Fprintf(&b, "<b>الدور:</b> %s\n", role)
	if activity.LastActive.Valid {
		fmt.Fprintf(&b, "<b>آخر نشاط:</b> %s\n", activity.LastActive.Time.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "<b>ضغطات اليوم:</b> %d\n", activity.ClicksToday)

	if len(activity.PerButton) > 0 {
		fmt.Fprintf(&b, "\n<b>🖱️ أكثر الأزرار استخداماً:</b>\n")
		for _, usage := range activity.PerButton {
			fmt.Fprintf(&b, "- %s: %d\n", usage.Text, usage.Clicks)
		}
	}

	return h.sendHTML(msg.Chat.ID, b.String())
}

// resolveTarget extracts the target user of a moderation command, either
// from a replied-to forward or from a numeric argument.
func (h *Handler) resolveTarget(msg *tgbotapi.Message) (int64, string) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.ForwardFrom != nil {
		target := msg.ReplyToMessage.ForwardFrom
		return target.ID, strings.TrimSpace(target.FirstName + " " + target.LastName)
	}

	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return 0, ""
	}
	targetID, err := strconv.ParseInt(tool.NormalizeDigits(arg), 10, 64)
	if err != nil {
		return 0, ""
	}

	return targetID, h.chatDisplayName(targetID)
}

// chatDisplayName resolves a user's display name, falling back to the bare
// id when the chat cannot be fetched.
func (h *Handler) chatDisplayName(id int64) string {
	chat, err := h.Telegram.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return strconv.FormatInt(id, 10)
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name == "" {
		return strconv.FormatInt(id, 10)
	}
	return name
}

func (h *Handler) send(chatID int64, text string) error {
	_, err := h.Telegram.Send(tgbotapi.NewMessage(chatID, text))
	return errors.Wrap(err, "cannot send message")
}

func (h *Handler) sendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := h.Telegram.Send(msg)
	return errors.Wrap(err, "cannot send message")
}

// editText rewrites a previously sent status message in place.
func (h *Handler) editText(chatID int64, messageID int, text string) error {
	_, err := h.Telegram.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return errors.Wrap(err, "cannot edit message")
}

// setState persists a state switch and mirrors it on the in-memory user so
// the keyboard rendered right after reflects it.
func (h *Handler) setState(user *model.User, state model.State, data model.StateData) error {
	if err := h.DB.UpdateState(user.ID, state, data); err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot update state"))
	}
	user.State = state
	user.StateData = data
	return nil
}

func (h *Handler) setStateData(user *model.User, data model.StateData) error {
	if err := h.DB.UpdateStateData(user.ID, data); err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot update state data"))
	}
	user.StateData = data
	return nil
}

func (h *Handler) setPath(user *model.User, path string) error {
	if err := h.DB.UpdatePath(user.ID, path); err != nil {
		return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot update path"))
	}
	user.CurrentPath = path
	return nil
}

// cancelToBase drops any wizard payload and shows the base keyboard again.
func (h *Handler) cancelToBase(user *model.User, chatID int64, text string) error {
	if err := h.setState(user, model.StateNormal, model.StateData{}); err != nil {
		return err
	}
	return h.replyWithKeyboard(user, chatID, text)
}
