package handler

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/keyboard"
	"menubot/model"
	"menubot/tool"
)

// buildKeyboard assembles the reply keyboard for the user's current path and
// state. Wizard states either replace the whole keyboard or prepend their
// confirm row; the supervision panel has a fixed layout; everything else is
// the packed sibling set of the current node plus the control rows.
func (h *Handler) buildKeyboard(user *model.User) ([][]string, error) {
	switch user.State {
	case model.StateAwaitingBroadcastMessages:
		if user.IsAdmin {
			return [][]string{{keyboard.LabelFinishBroadcast}}, nil
		}
	case model.StateAwaitingBatchNumber, model.StateContactingAdmin:
		return [][]string{{keyboard.LabelCancelOperation}}, nil
	case model.StateAwaitingAlertMessages:
		return [][]string{{keyboard.LabelFinishAlert}}, nil
	case model.StateAwaitingDefaultNames:
		if user.IsAdmin {
			return [][]string{{keyboard.LabelConfirmDefaultNames}, {keyboard.LabelCancel}}, nil
		}
	case model.StateDynamicTransfer:
		return [][]string{{keyboard.LabelFinishTransfer, keyboard.LabelCancelOperation}}, nil
	case model.StateAwaitingBulkMessages:
		return [][]string{{keyboard.LabelFinishBulk}}, nil
	}

	var rows [][]string

	if user.IsAdmin {
		selection := user.StateData.Selection
		switch user.State {
		case model.StateSelectingTargets:
			count := 0
			if selection != nil {
				count = len(selection.Targets)
			}
			rows = append(rows, []string{
				fmt.Sprintf("%s (%d) قسم المحدد", keyboard.LabelAddToSelected, count),
				keyboard.LabelCancel,
			})
		case model.StateSelectingButtons:
			count := 0
			if selection != nil {
				count = len(selection.Buttons)
			}
			rows = append(rows, []string{
				fmt.Sprintf("%s (%d)", keyboard.LabelConfirmSelection, count),
				keyboard.LabelCancel,
			})
		case model.StateAwaitingDestination:
			action := keyboard.LabelMoveHere
			if selection != nil && selection.Action == "copy" {
				action = keyboard.LabelCopyHere
			}
			rows = append(rows, []string{action, keyboard.LabelCancel})
		}
	}

	if user.CurrentPath == model.PathSupervision {
		return [][]string{
			{keyboard.LabelStats, keyboard.LabelBroadcast},
			{keyboard.LabelAlert, keyboard.LabelEditWelcome},
			{keyboard.LabelEditAdmins, keyboard.LabelBannedList},
			{keyboard.LabelBack, keyboard.LabelMainMenu},
		}, nil
	}

	buttons, err := h.DB.ButtonsByParent(model.PathParentID(user.CurrentPath))
	if err != nil {
		return nil, errors.Wrap(err, "cannot list buttons")
	}

	var visible []model.Button
	for _, b := range buttons {
		if b.AdminOnly && !user.IsAdmin {
			continue
		}
		visible = append(visible, b)
	}

	for _, row := range keyboard.Pack(visible) {
		var labels []string
		for _, b := range row {
			labels = append(labels, h.buttonLabel(user, b))
		}
		rows = append(rows, labels)
	}

	if user.IsAdmin {
		if user.State == model.StateEditingButtons {
			rows = append(rows,
				[]string{keyboard.LabelAddButton},
				[]string{keyboard.LabelDynamicTransfer, keyboard.LabelDefaultButtons},
				[]string{keyboard.LabelMoveButtons, keyboard.LabelCopyButtons},
			)
		}
		if user.State == model.StateEditingContent &&
			user.CurrentPath != model.PathRoot && user.CurrentPath != model.PathSupervision {
			rows = append(rows, []string{keyboard.LabelAddMessage})
		}
	}

	if user.CurrentPath != model.PathRoot {
		rows = append(rows, []string{keyboard.LabelBack, keyboard.LabelMainMenu})
	}

	if user.IsAdmin {
		editContent := keyboard.LabelEditContent
		if user.State == model.StateEditingContent {
			editContent = keyboard.LabelStopEditContent
		}
		editButtons := keyboard.LabelEditButtons
		if user.State == model.StateEditingButtons {
			editButtons = keyboard.LabelStopEditButtons
		}
		rows = append(rows, []string{editButtons, editContent})
	}

	finalRow := []string{keyboard.LabelContactAdmin}
	if user.IsAdmin && user.CurrentPath == model.PathRoot {
		finalRow = append(finalRow, keyboard.LabelSupervision)
	}
	rows = append(rows, finalRow)

	return rows, nil
}

func (h *Handler) buttonLabel(user *model.User, b model.Button) string {
	selection := user.StateData.Selection
	if selection == nil {
		return b.Text
	}
	if user.State == model.StateSelectingButtons && selection.ButtonSelected(b.ID) {
		return keyboard.SelectedPrefix + b.Text
	}
	if user.State == model.StateSelectingTargets && selection.TargetSelected(b.ID) {
		return keyboard.SelectedPrefix + b.Text
	}
	return b.Text
}

func (h *Handler) replyMarkup(user *model.User) (tgbotapi.ReplyKeyboardMarkup, error) {
	rows, err := h.buildKeyboard(user)
	if err != nil {
		return tgbotapi.ReplyKeyboardMarkup{}, err
	}

	var markup [][]tgbotapi.KeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.KeyboardButton
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		markup = append(markup, buttons)
	}

	return tgbotapi.ReplyKeyboardMarkup{
		Keyboard:       markup,
		ResizeKeyboard: true,
	}, nil
}

func (h *Handler) replyWithKeyboard(user *model.User, chatID int64, text string) error {
	markup, err := h.replyMarkup(user)
	if err != nil {
		return tool.NewHRError(dbDownMessage, err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup

	_, err = h.Telegram.Send(msg)
	return errors.Wrap(err, "cannot send message")
}
