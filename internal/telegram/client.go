package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/telemux/telemux/internal/errors"
)

const (
	// defaultBaseURL is the production Bot API endpoint. Tests point the
	// client at an httptest server instead.
	defaultBaseURL = "https://api.telegram.org"

	// maxMessageBytes is the split threshold for outbound text. The API
	// limit is 4096; splitting at 4000 leaves headroom for entities.
	maxMessageBytes = 4000

	// pollTimeoutBuffer is added to the HTTP deadline on top of the
	// long-poll timeout so the server can answer an empty poll.
	pollTimeoutBuffer = 10 * time.Second
)

// Client is a Bot API client bound to one bot token.
//
// Outbound calls share a rate limiter so bursts of session output do not
// trip the API's flood control. getUpdates is not limited: long polls are
// self-pacing.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the given bot token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
		// Telegram allows roughly 30 messages per second overall;
		// stay well under it.
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call posts a form-encoded request to one API method and decodes the
// standard envelope. A transport failure maps to transport.request_failed,
// an ok=false envelope to transport.api_error.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*Response, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errors.RequestFailed(method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.roundTrip(req, method)
}

// roundTrip executes a prepared API request and decodes the standard
// envelope.
func (c *Client) roundTrip(req *http.Request, method string) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.RequestFailed(method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.RequestFailed(method, err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.RequestFailed(method, fmt.Errorf("malformed response: %w", err))
	}
	if !out.OK {
		return nil, errors.APIError(method, out.Description)
	}
	return &out, nil
}

// GetUpdates long-polls for updates past the given offset. timeout is the
// server-side hold in seconds; the HTTP deadline is timeout plus a buffer.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second+pollTimeoutBuffer)
	defer cancel()

	params := url.Values{
		"timeout":         {strconv.Itoa(timeout)},
		"allowed_updates": {`["message","callback_query"]`},
	}
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	resp, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, errors.RequestFailed("getUpdates", fmt.Errorf("malformed result: %w", err))
	}
	return updates, nil
}

// SendMessage sends plain text to a chat, splitting messages that exceed
// the API length limit. Chunks are sent in order; a failed chunk aborts
// the rest.
func (c *Client) SendMessage(ctx context.Context, chatID, threadID, text string) error {
	return c.send(ctx, chatID, threadID, text, "", nil)
}

// SendMessageHTML sends HTML-formatted text. The caller is responsible
// for escaping user-supplied content.
func (c *Client) SendMessageHTML(ctx context.Context, chatID, threadID, text string) error {
	return c.send(ctx, chatID, threadID, text, "HTML", nil)
}

// SendMessageWithKeyboard sends text with an inline keyboard attached.
// The text is not split: option keyboards only make sense on the message
// carrying the options, which is already bounded by context extraction.
func (c *Client) SendMessageWithKeyboard(ctx context.Context, chatID, threadID, text string, markup *InlineKeyboardMarkup) error {
	return c.send(ctx, chatID, threadID, text, "", markup)
}

func (c *Client) send(ctx context.Context, chatID, threadID, text, parseMode string, markup *InlineKeyboardMarkup) error {
	chunks := SplitMessage(text, maxMessageBytes)

	for i, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.RequestFailed("sendMessage", err)
		}

		params := url.Values{
			"chat_id": {chatID},
			"text":    {chunk},
		}
		if threadID != "" {
			params.Set("message_thread_id", threadID)
		}
		if parseMode != "" {
			params.Set("parse_mode", parseMode)
		}
		// The keyboard goes on the last chunk only.
		if markup != nil && i == len(chunks)-1 {
			raw, err := json.Marshal(markup)
			if err != nil {
				return errors.Internal("marshal keyboard", err)
			}
			params.Set("reply_markup", string(raw))
		}

		if _, err := c.call(ctx, "sendMessage", params); err != nil {
			return err
		}
	}
	return nil
}

// SendDocument uploads content as a document message. Documents are not
// size-split, so callers use this for payloads too large for text sends,
// such as deep terminal captures.
func (c *Client) SendDocument(ctx context.Context, chatID, threadID, filename, caption string, content io.Reader) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.RequestFailed("sendDocument", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return errors.RequestFailed("sendDocument", err)
	}
	if threadID != "" {
		if err := mw.WriteField("message_thread_id", threadID); err != nil {
			return errors.RequestFailed("sendDocument", err)
		}
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return errors.RequestFailed("sendDocument", err)
		}
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return errors.RequestFailed("sendDocument", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return errors.RequestFailed("sendDocument", err)
	}
	if err := mw.Close(); err != nil {
		return errors.RequestFailed("sendDocument", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return errors.RequestFailed("sendDocument", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	_, err = c.roundTrip(req, "sendDocument")
	return err
}

// SetReaction places an emoji reaction on a message. Callers treat this as
// best effort: reaction failures never abort update handling.
func (c *Client) SetReaction(ctx context.Context, chatID string, messageID int64, emoji string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.RequestFailed("setMessageReaction", err)
	}

	reaction, err := json.Marshal([]map[string]string{{"type": "emoji", "emoji": emoji}})
	if err != nil {
		return errors.Internal("marshal reaction", err)
	}

	params := url.Values{
		"chat_id":    {chatID},
		"message_id": {strconv.FormatInt(messageID, 10)},
		"reaction":   {string(reaction)},
	}
	_, err = c.call(ctx, "setMessageReaction", params)
	return err
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing a spinner. text, if non-empty, is shown as a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.RequestFailed("answerCallbackQuery", err)
	}

	params := url.Values{"callback_query_id": {callbackID}}
	if text != "" {
		params.Set("text", text)
	}
	_, err := c.call(ctx, "answerCallbackQuery", params)
	return err
}

// GetFile resolves a file id to its server-side path and size.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	resp, err := c.call(ctx, "getFile", url.Values{"file_id": {fileID}})
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(resp.Result, &f); err != nil {
		return nil, errors.RequestFailed("getFile", fmt.Errorf("malformed result: %w", err))
	}
	if f.FilePath == "" {
		return nil, errors.DownloadFailed(fileID, fmt.Errorf("getFile returned no file_path"))
	}
	return &f, nil
}

// DownloadFile streams the file at the given server-side path into dst,
// enforcing maxBytes. Exceeding the cap mid-stream aborts with
// download.too_large; the caller discards the partial output.
func (c *Client) DownloadFile(ctx context.Context, filePath string, dst io.Writer, maxBytes int64) (int64, error) {
	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, errors.DownloadFailed(filePath, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.DownloadFailed(filePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.DownloadFailed(filePath, fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	if resp.ContentLength > maxBytes {
		return 0, errors.TooLarge(resp.ContentLength, maxBytes)
	}

	n, err := io.Copy(dst, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return n, errors.DownloadFailed(filePath, err)
	}
	if n > maxBytes {
		return n, errors.TooLarge(n, maxBytes)
	}
	return n, nil
}

// GetWebhookInfo reports the bot's webhook registration state.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	resp, err := c.call(ctx, "getWebhookInfo", url.Values{})
	if err != nil {
		return nil, err
	}

	var info WebhookInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return nil, errors.RequestFailed("getWebhookInfo", fmt.Errorf("malformed result: %w", err))
	}
	return &info, nil
}

// DeleteWebhook removes the bot's webhook registration. Pending updates
// are kept so nothing sent while the webhook was active is lost.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", url.Values{"drop_pending_updates": {"false"}})
	return err
}

// EnsurePolling verifies that long polling can work: if a webhook is
// registered it is deleted once, and a second conflict is a hard error.
func (c *Client) EnsurePolling(ctx context.Context) error {
	info, err := c.GetWebhookInfo(ctx)
	if err != nil {
		return err
	}
	if info.URL == "" {
		return nil
	}

	if err := c.DeleteWebhook(ctx); err != nil {
		return err
	}

	info, err = c.GetWebhookInfo(ctx)
	if err != nil {
		return err
	}
	if info.URL != "" {
		return errors.WebhookConflict(info.URL)
	}
	return nil
}

// SplitMessage splits text into chunks no longer than maxLen bytes,
// preferring to break on a newline, then a space, in the back half of the
// chunk. Pathological input with no break points is split mid-run.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		splitAt := maxLen
		if idx := strings.LastIndex(remaining[:maxLen], "\n"); idx > maxLen/2 {
			splitAt = idx + 1
		} else if idx := strings.LastIndex(remaining[:maxLen], " "); idx > maxLen/2 {
			splitAt = idx + 1
		}
		chunks = append(chunks, strings.TrimRight(remaining[:splitAt], " \n"))
		remaining = remaining[splitAt:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}
