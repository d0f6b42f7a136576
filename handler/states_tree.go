package handler

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/database"
	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// stateNewButtonNames creates one sibling per non-empty line of the reply.
func (h *Handler) stateNewButtonNames(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID

	if msg.Text == "" {
		return true, h.send(chatID, "⚠️ يرجى إرسال نص يحتوي على أسماء الأزرار.")
	}

	names := firstNonEmptyLines(msg.Text)
	if len(names) == 0 {
		return true, h.send(chatID, "⚠️ لم يتم العثور على أسماء أزرار صالحة.")
	}

	summary, err := h.DB.CreateButtons(model.PathParentID(user.CurrentPath), names)
	if err != nil {
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot create buttons"))
	}
	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return true, err
	}

	return true, h.replyWithKeyboard(user, chatID, createSummaryText(summary))
}

func createSummaryText(summary *model.CreateSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ تم إضافة %d زر بنجاح.", summary.Added)
	for _, skipped := range summary.Skipped {
		reason := "الاسم مكرر في هذا القسم"
		if skipped.Reason == model.SkipReserved {
			reason = "الاسم محجوز للنظام"
		}
		fmt.Fprintf(&b, "\n⚠️ تم تخطي \"%s\": %s.", skipped.Name, reason)
	}
	return b.String()
}

// stateRenameButton applies the new name to the button picked through the
// inline controls.
func (h *Handler) stateRenameButton(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	target := user.StateData.Target
	if target == nil {
		return true, h.cancelToBase(user, chatID, "⚠️ حدث خطأ: لم يتم العثور على الزر. تم إلغاء العملية.")
	}

	if msg.Text == "" {
		return true, h.send(chatID, "⚠️ يرجى إرسال اسم نصي فقط.")
	}
	name := strings.TrimSpace(msg.Text)
	if name == "" || keyboard.IsReserved(name) {
		return true, h.send(chatID, "⚠️ يرجى إرسال اسم نصي فقط.")
	}

	if err := h.DB.RenameButton(target.ButtonID, name); err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			if stateErr := h.setState(user, model.StateEditingButtons, model.StateData{}); stateErr != nil {
				return true, stateErr
			}
			return true, h.replyWithKeyboard(user, chatID,
				fmt.Sprintf("⚠️ يوجد زر آخر بهذا الاسم \"%s\". تم إلغاء التعديل.", name))
		}
		return true, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot rename button"))
	}

	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return true, err
	}
	return true, h.replyWithKeyboard(user, chatID, fmt.Sprintf("✅ تم تعديل اسم الزر إلى \"%s\".", name))
}

// stateDeleteConfirm runs the deep delete only on the typed confirmation
// word; any other reply aborts.
func (h *Handler) stateDeleteConfirm(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	target := user.StateData.Target

	if msg.Text != keyboard.ConfirmWord || target == nil {
		if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, "👍 تم إلغاء عملية الحذف.")
	}

	status, err := h.Telegram.Send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("⏳ جاري الحذف العميق للقسم \"%s\"...", target.ButtonName)))
	if err != nil {
		return true, errors.Wrap(err, "cannot send message")
	}

	if err := h.DB.DeepDeleteButton(target.ButtonID); err != nil {
		return true, tool.NewHRError("❌ حدث خطأ أثناء الحذف. حاول مرة أخرى.", errors.Wrap(err, "cannot deep delete button"))
	}

	if err := h.editText(chatID, status.MessageID,
		fmt.Sprintf("🗑️ تم الحذف العميق للقسم \"%s\" بنجاح.", target.ButtonName)); err != nil {
		h.Logger.WithError(err).Warn("cannot edit delete status")
	}

	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return true, err
	}
	return true, h.replyWithKeyboard(user, chatID, "تم تحديث لوحة المفاتيح.")
}

// stateDefaultNames collects the name list for the default-buttons fan-out,
// then hands over to target selection on confirmation.
func (h *Handler) stateDefaultNames(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	selection := user.StateData.Selection
	if selection == nil {
		selection = &model.Selection{}
	}

	if msg.Text == keyboard.LabelConfirmDefaultNames {
		if len(selection.DefaultNames) == 0 {
			return true, h.send(chatID, "⚠️ لم تقم بإدخال أي أسماء. أرسل الأسماء أولاً.")
		}
		data := model.StateData{Selection: &model.Selection{DefaultNames: selection.DefaultNames}}
		if err := h.setState(user, model.StateSelectingTargets, data); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID,
			"🎯 الآن تنقّل بين الأقسام واضغط على كل قسم تريد إضافة الأزرار إليه لتحديده، ثم اضغط على زر الإضافة في الأعلى.")
	}

	if msg.Text == "" {
		return true, h.send(chatID, "⚠️ يرجى إرسال نص يحتوي على أسماء الأزرار.")
	}
	names := firstNonEmptyLines(msg.Text)
	if len(names) == 0 {
		return true, h.send(chatID, "⚠️ لم يتم العثور على أسماء أزرار صالحة.")
	}

	selection.DefaultNames = append(selection.DefaultNames, names...)
	data := user.StateData
	data.Selection = selection
	if err := h.setStateData(user, data); err != nil {
		return true, err
	}

	return true, h.replyWithKeyboard(user, chatID,
		fmt.Sprintf("✅ تم استلام %d اسم. اضغط على زر التأكيد في الأسفل للمتابعة.", len(selection.DefaultNames)))
}

// stateSelectButtons is the multi-select overlay of the move/copy wizard.
// Unmatched text falls through so navigation keeps working underneath.
func (h *Handler) stateSelectButtons(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	text := msg.Text
	selection := user.StateData.Selection
	if selection == nil {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	switch text {
	case keyboard.LabelCancel, keyboard.LabelCancelOperation:
		if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, "👍 تم إلغاء العملية.")
	}

	if strings.HasPrefix(text, keyboard.LabelConfirmSelection) {
		if len(selection.Buttons) == 0 {
			return true, h.send(chatID, "⚠️ لم تحدد أي أزرار.")
		}
		data := model.StateData{Selection: selection}
		if err := h.setState(user, model.StateAwaitingDestination, data); err != nil {
			return true, err
		}
		verb := "لنقلها"
		if selection.Action == "copy" {
			verb = "لنسخها"
		}
		return true, h.replyWithKeyboard(user, chatID, fmt.Sprintf(
			"🚙 تم تحديد %d زر.\n\nالآن، اذهب إلى القسم الذي تريد %s إليه ثم اضغط على الزر المناسب.",
			len(selection.Buttons), verb))
	}

	button, err := h.siblingByOverlayLabel(user, text)
	if err != nil {
		return true, err
	}
	if button == nil {
		return false, nil
	}

	selected := selection.ToggleButton(button.Ref())
	data := user.StateData
	data.Selection = selection
	if err := h.setStateData(user, data); err != nil {
		return true, err
	}

	feedback := fmt.Sprintf("✅ تم تحديد الزر: \"%s\"", button.Text)
	if !selected {
		feedback = fmt.Sprintf("❌ تم إلغاء تحديد الزر: \"%s\"", button.Text)
	}
	return true, h.replyWithKeyboard(user, chatID, feedback)
}

// stateSelectTargets is the multi-select overlay of the default-buttons
// wizard: same toggling, different commit.
func (h *Handler) stateSelectTargets(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	text := msg.Text
	selection := user.StateData.Selection
	if selection == nil {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	switch text {
	case keyboard.LabelCancel, keyboard.LabelCancelOperation:
		if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, "👍 تم إلغاء العملية.")
	}

	if strings.HasPrefix(text, keyboard.LabelAddToSelected) {
		return true, h.commitDefaultButtons(user, chatID, selection)
	}

	button, err := h.siblingByOverlayLabel(user, text)
	if err != nil {
		return true, err
	}
	if button == nil {
		return false, nil
	}

	selected := selection.ToggleTarget(button.Ref())
	data := user.StateData
	data.Selection = selection
	if err := h.setStateData(user, data); err != nil {
		return true, err
	}

	feedback := fmt.Sprintf("✅ تم تحديد الزر: \"%s\"", button.Text)
	if !selected {
		feedback = fmt.Sprintf("❌ تم إلغاء تحديد الزر: \"%s\"", button.Text)
	}
	return true, h.replyWithKeyboard(user, chatID, feedback)
}

func (h *Handler) commitDefaultButtons(user *model.User, chatID int64, selection *model.Selection) error {
	if len(selection.Targets) == 0 {
		return h.send(chatID, "⚠️ لم تختر أي قسم لإضافة الأزرار إليه.")
	}

	status, err := h.Telegram.Send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"⏳ جارٍ إضافة %d زر افتراضي إلى %d قسم...",
		len(selection.DefaultNames), len(selection.Targets))))
	if err != nil {
		return errors.Wrap(err, "cannot send message")
	}

	added, err := h.DB.AddDefaultButtons(selection.DefaultNames, selection.Targets)
	if err != nil {
		return tool.NewHRError("❌ حدث خطأ أثناء إضافة الأزرار.", errors.Wrap(err, "cannot add default buttons"))
	}

	if err := h.editText(chatID, status.MessageID,
		fmt.Sprintf("✅ تم إضافة %d زر افتراضي بنجاح.", added)); err != nil {
		h.Logger.WithError(err).Warn("cannot edit default-buttons status")
	}

	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return err
	}
	return h.replyWithKeyboard(user, chatID, "تم تحديث لوحة المفاتيح.")
}

// stateDestination waits for the commit captions of the move/copy wizard;
// everything else falls through so the admin can walk the tree.
func (h *Handler) stateDestination(user *model.User, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	selection := user.StateData.Selection
	if selection == nil {
		return true, h.cancelToBase(user, chatID, "👍 تم إلغاء العملية.")
	}

	switch msg.Text {
	case keyboard.LabelCancel, keyboard.LabelCancelOperation, keyboard.LabelCancelMove:
		if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
			return true, err
		}
		return true, h.replyWithKeyboard(user, chatID, "👍 تم إلغاء العملية.")

	case keyboard.LabelMoveHere:
		return true, h.commitMove(user, chatID, selection)

	case keyboard.LabelCopyHere:
		return true, h.commitCopy(user, chatID, selection)
	}

	return false, nil
}

func (h *Handler) commitMove(user *model.User, chatID int64, selection *model.Selection) error {
	summary, err := h.DB.MoveButtons(selection.Buttons, model.PathParentID(user.CurrentPath))
	if err != nil {
		return tool.NewHRError("❌ حدث خطأ أثناء النقل.", errors.Wrap(err, "cannot move buttons"))
	}

	for _, skipped := range summary.Skipped {
		text := fmt.Sprintf("⚠️ تم تخطي نقل الزر \"%s\" لوجود زر بنفس الاسم في الوجهة.", skipped.Name)
		if skipped.Reason == model.SkipSelfTarget {
			text = fmt.Sprintf("⚠️ تم تخطي نقل الزر \"%s\" لأنه لا يمكن نقل قسم إلى داخل نفسه.", skipped.Name)
		}
		if err := h.send(chatID, text); err != nil {
			return err
		}
	}

	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return err
	}
	return h.replyWithKeyboard(user, chatID, fmt.Sprintf("✅ تم نقل %d أزرار بنجاح.", summary.Moved))
}

func (h *Handler) commitCopy(user *model.User, chatID int64, selection *model.Selection) error {
	status, err := h.Telegram.Send(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"⏳ جاري النسخ العميق لـ %d قسم... هذه العملية قد تستغرق بعض الوقت.", len(selection.Buttons))))
	if err != nil {
		return errors.Wrap(err, "cannot send message")
	}

	destParentID := model.PathParentID(user.CurrentPath)
	copied := 0
	for _, ref := range selection.Buttons {
		// Copying a section into its own subtree would replicate forever.
		if destParentID != nil {
			inside, err := h.DB.IsDescendant(ref.ID, *destParentID)
			if err != nil {
				return tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot check copy destination"))
			}
			if inside {
				if err := h.send(chatID, fmt.Sprintf(
					"⚠️ تم تخطي نسخ الزر \"%s\" لأنه لا يمكن نسخ قسم إلى داخل نفسه.", ref.Text)); err != nil {
					return err
				}
				continue
			}
		}
		if err := h.DB.DeepCopyButton(ref.ID, destParentID); err != nil {
			return tool.NewHRError("❌ حدث خطأ أثناء النسخ.", errors.Wrap(err, "cannot deep copy button"))
		}
		copied++
	}

	if err := h.editText(chatID, status.MessageID,
		fmt.Sprintf("✅ تم النسخ العميق لـ %d قسم بنجاح.", copied)); err != nil {
		h.Logger.WithError(err).Warn("cannot edit copy status")
	}

	if err := h.setState(user, model.StateEditingButtons, model.StateData{}); err != nil {
		return err
	}
	return h.replyWithKeyboard(user, chatID, "تم تحديث لوحة المفاتيح.")
}

// siblingByOverlayLabel resolves a tapped caption at the current level,
// tolerating the selection checkmark prefix.
func (h *Handler) siblingByOverlayLabel(user *model.User, text string) (*model.Button, error) {
	label := strings.TrimPrefix(text, keyboard.SelectedPrefix)
	button, err := h.DB.ButtonByLabel(model.PathParentID(user.CurrentPath), label)
	if err != nil {
		return nil, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot resolve button"))
	}
	return button, nil
}
