package handler

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"menubot/model"
	"menubot/tool"
)

// sendButtonMessages renders a button's content into the chat, in stored
// order. Spans captured from forwarded messages win over the hand-typed
// markup conversion. In edit mode every message carries its inline control
// row and the sent message ids are tracked so the view can be refreshed.
func (h *Handler) sendButtonMessages(user *model.User, chatID int64, buttonID int64, editMode bool) (int, error) {
	messages, err := h.DB.MessagesByButton(buttonID)
	if err != nil {
		return 0, tool.NewHRError(dbDownMessage, errors.Wrap(err, "cannot list messages"))
	}

	var viewIDs []int
	for _, message := range messages {
		var markup *tgbotapi.InlineKeyboardMarkup
		if editMode {
			m := messageControls(message)
			markup = &m
		}

		sent, err := h.Telegram.Send(messageConfig(chatID, message, markup))
		if err != nil {
			// One broken message must not hide the rest of the content.
			h.Logger.WithError(err).WithFields(map[string]interface{}{
				"message_id": message.ID,
				"type":       message.Type,
			}).Error("cannot send button message")
			continue
		}
		viewIDs = append(viewIDs, sent.MessageID)
	}

	if editMode {
		data := user.StateData
		data.MessageViewIDs = viewIDs
		if err := h.setStateData(user, data); err != nil {
			return len(messages), err
		}
	}

	return len(messages), nil
}

// messageConfig builds the send config for one stored message.
func messageConfig(chatID int64, message model.Message, markup *tgbotapi.InlineKeyboardMarkup) tgbotapi.Chattable {
	if message.Type == model.MessageText {
		msg := tgbotapi.NewMessage(chatID, message.Content)
		if len(message.Entities) > 0 {
			msg.Entities = entitiesToAPI(message.Entities)
		} else {
			msg.Text = tool.MarkdownToHTML(message.Content)
			msg.ParseMode = tgbotapi.ModeHTML
		}
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg
	}

	caption := message.Caption
	parseMode := ""
	var captionEntities []tgbotapi.MessageEntity
	if len(message.Entities) > 0 {
		captionEntities = entitiesToAPI(message.Entities)
	} else {
		caption = tool.MarkdownToHTML(message.Caption)
		parseMode = tgbotapi.ModeHTML
	}

	file := tgbotapi.FileID(message.Content)
	switch message.Type {
	case model.MessagePhoto:
		msg := tgbotapi.NewPhoto(chatID, file)
		msg.Caption = caption
		msg.ParseMode = parseMode
		msg.CaptionEntities = captionEntities
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg
	case model.MessageVideo:
		msg := tgbotapi.NewVideo(chatID, file)
		msg.Caption = caption
		msg.ParseMode = parseMode
		msg.CaptionEntities = captionEntities
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg
	case model.MessageAudio:
		msg := tgbotapi.NewAudio(chatID, file)
		msg.Caption = caption
		msg.ParseMode = parseMode
		msg.CaptionEntities = captionEntities
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg
	case model.MessageVoice:
		msg := tgbotapi.NewVoice(chatID, file)
		msg.Caption = caption
		msg.ParseMode = parseMode
		msg.CaptionEntities = captionEntities
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg
	default:
		msg := tgbotapi.NewDocument(chatID, file)
		msg.Caption = caption
		msg.ParseMode = parseMode
		msg.CaptionEntities = captionEntities
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg
	}
}

// messageControls is the per-message inline control row shown in content
// edit mode. Text messages get in-place editing; file messages get caption
// editing and file replacement instead.
func messageControls(message model.Message) tgbotapi.InlineKeyboardMarkup {
	id := message.ID
	base := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🔼", fmt.Sprintf("msg:up:%d", id)),
		tgbotapi.NewInlineKeyboardButtonData("🔽", fmt.Sprintf("msg:down:%d", id)),
		tgbotapi.NewInlineKeyboardButtonData("🗑️", fmt.Sprintf("msg:delete:%d", id)),
		tgbotapi.NewInlineKeyboardButtonData("➕", fmt.Sprintf("msg:addnext:%d", id)),
	}

	if message.Type == model.MessageText {
		base = append(base, tgbotapi.NewInlineKeyboardButtonData("✏️", fmt.Sprintf("msg:edit:%d", id)))
		return tgbotapi.NewInlineKeyboardMarkup(base)
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		base,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("📝 تعديل الشرح", fmt.Sprintf("msg:edit_caption:%d", id)),
			tgbotapi.NewInlineKeyboardButtonData("🔄 استبدال الملف", fmt.Sprintf("msg:replace_file:%d", id)),
		},
	)
}

// captureDraft converts an inbound message into a storable draft. Returns
// false for unsupported message types.
func captureDraft(msg *tgbotapi.Message) (model.MessageDraft, bool) {
	switch {
	case msg.Text != "":
		return model.MessageDraft{
			Type:     model.MessageText,
			Content:  msg.Text,
			Entities: entitiesFromAPI(msg.Entities),
		}, true
	case len(msg.Photo) > 0:
		// Largest size is last.
		return model.MessageDraft{
			Type:     model.MessagePhoto,
			Content:  msg.Photo[len(msg.Photo)-1].FileID,
			Caption:  msg.Caption,
			Entities: entitiesFromAPI(msg.CaptionEntities),
		}, true
	case msg.Video != nil:
		return model.MessageDraft{
			Type:     model.MessageVideo,
			Content:  msg.Video.FileID,
			Caption:  msg.Caption,
			Entities: entitiesFromAPI(msg.CaptionEntities),
		}, true
	case msg.Document != nil:
		return model.MessageDraft{
			Type:     model.MessageDocument,
			Content:  msg.Document.FileID,
			Caption:  msg.Caption,
			Entities: entitiesFromAPI(msg.CaptionEntities),
		}, true
	case msg.Audio != nil:
		return model.MessageDraft{
			Type:     model.MessageAudio,
			Content:  msg.Audio.FileID,
			Caption:  msg.Caption,
			Entities: entitiesFromAPI(msg.CaptionEntities),
		}, true
	case msg.Voice != nil:
		return model.MessageDraft{
			Type:     model.MessageVoice,
			Content:  msg.Voice.FileID,
			Caption:  msg.Caption,
			Entities: entitiesFromAPI(msg.CaptionEntities),
		}, true
	}

	return model.MessageDraft{}, false
}

// sendDraft delivers a captured draft to a chat, used by the broadcast run.
func (h *Handler) sendDraft(chatID int64, draft model.MessageDraft) error {
	_, err := h.Telegram.Send(messageConfig(chatID, model.Message{
		Type:     draft.Type,
		Content:  draft.Content,
		Caption:  draft.Caption,
		Entities: draft.Entities,
	}, nil))
	return err
}

func entitiesFromAPI(entities []tgbotapi.MessageEntity) model.Entities {
	if len(entities) == 0 {
		return nil
	}

	out := make(model.Entities, 0, len(entities))
	for _, e := range entities {
		entity := model.Entity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		}
		if e.User != nil {
			if raw, err := json.Marshal(e.User); err == nil {
				entity.User = raw
			}
		}
		out = append(out, entity)
	}
	return out
}

func entitiesToAPI(entities model.Entities) []tgbotapi.MessageEntity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		entity := tgbotapi.MessageEntity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		}
		if len(e.User) > 0 {
			var user tgbotapi.User
			if err := json.Unmarshal(e.User, &user); err == nil {
				entity.User = &user
			}
		}
		out = append(out, entity)
	}
	return out
}
