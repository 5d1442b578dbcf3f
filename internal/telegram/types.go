// Package telegram implements the Bot API client used by the listener:
// getUpdates long polling, message sending with length-aware splitting,
// reactions, callback answers, and attachment retrieval.
package telegram

import "encoding/json"

// Update is a single entry from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound or outbound chat message.
type Message struct {
	MessageID       int64      `json:"message_id"`
	MessageThreadID int64      `json:"message_thread_id,omitempty"`
	Chat            Chat       `json:"chat"`
	From            *User      `json:"from,omitempty"`
	Text            string     `json:"text,omitempty"`
	Caption         string     `json:"caption,omitempty"`
	Document        *Document  `json:"document,omitempty"`
	Photo           []PhotoSize `json:"photo,omitempty"`
	Voice           *Voice     `json:"voice,omitempty"`
	Audio           *Audio     `json:"audio,omitempty"`
	Video           *Video     `json:"video,omitempty"`
	Sticker         *Sticker   `json:"sticker,omitempty"`
}

// Chat identifies the chat a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User is the sender of a message or callback.
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username,omitempty"`
}

// Document is a generic file attachment.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// PhotoSize is one size variant of a photo. The API sends several; the
// last entry is the largest.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Voice is a voice note.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Audio is an audio file.
type Audio struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Video is a video file.
type Video struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Sticker is a sticker message. Stickers are not downloadable attachments
// here; they are treated as unsupported content.
type Sticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji,omitempty"`
}

// CallbackQuery is a button press on an inline keyboard.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// File is the getFile result: the server-side path used to build the
// download URL, plus the size for the pre-download cap check.
type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// WebhookInfo is the getWebhookInfo result. A non-empty URL means a webhook
// is registered and getUpdates will return nothing.
type WebhookInfo struct {
	URL                string `json:"url"`
	PendingUpdateCount int    `json:"pending_update_count"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
	MaxConnections     int    `json:"max_connections,omitempty"`
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboardMarkup is the reply_markup payload for option keyboards.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Response is the generic Bot API envelope.
type Response struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// ThreadIDString formats the message thread id the way session configs
// store it. A message outside any topic has no thread id and maps to the
// empty string.
func (m *Message) ThreadIDString() string {
	if m.MessageThreadID == 0 {
		return ""
	}
	return formatInt64(m.MessageThreadID)
}

// ChatIDString formats the chat id for routing lookups.
func (m *Message) ChatIDString() string {
	return formatInt64(m.Chat.ID)
}

// LargestPhoto returns the highest-resolution variant, or nil if the
// message has no photo.
func (m *Message) LargestPhoto() *PhotoSize {
	if len(m.Photo) == 0 {
		return nil
	}
	return &m.Photo[len(m.Photo)-1]
}
