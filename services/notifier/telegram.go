package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sjsage522/teetimeworker/logger"
	apperrors "sjsage522/teetimeworker/pkg/errors"
)

const (
	// DefaultTelegramAPIURL is the public Bot API endpoint
	DefaultTelegramAPIURL = "https://api.telegram.org"
	// maxMessageLength is the Bot API limit for one text message
	maxMessageLength = 4096
	timeout          = 10 * time.Second
)

// TelegramNotifier sends messages through the Telegram Bot API
type TelegramNotifier struct {
	botToken   string
	chatID     string
	apiURL     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewTelegramNotifier creates a Telegram notifier. Credentials are checked on Send
// so a missing token only skips the notification.
func NewTelegramNotifier(botToken, chatID, apiURL string) *TelegramNotifier {
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}
	return &TelegramNotifier{
		botToken: strings.TrimSpace(botToken),
		chatID:   strings.TrimSpace(chatID),
		apiURL:   strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.ForNotifier("telegram"),
	}
}

// GetType returns "telegram"
func (t *TelegramNotifier) GetType() string {
	return "telegram"
}

// Validate checks the bot credentials
func (t *TelegramNotifier) Validate() error {
	if t.botToken == "" {
		return apperrors.NewConfiguration("TELEGRAM_BOT_TOKEN is required", nil)
	}
	if !strings.Contains(t.botToken, ":") {
		return apperrors.NewConfiguration("TELEGRAM_BOT_TOKEN must look like <bot id>:<secret>", nil)
	}
	if t.chatID == "" {
		return apperrors.NewConfiguration("TELEGRAM_CHAT_ID is required", nil)
	}
	return nil
}

// Send delivers text as HTML, split into several messages when it exceeds the API limit
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return apperrors.NewNotify("telegram", "message text is required", nil)
	}

	chunks := splitMessage(text, maxMessageLength)
	for i, chunk := range chunks {
		if err := t.sendMessage(ctx, chunk); err != nil {
			return apperrors.NewNotify("telegram", fmt.Sprintf("message %d/%d", i+1, len(chunks)), err)
		}
	}

	t.log.Info().Int("messages", len(chunks)).Msg("텔레그램 메시지 전송 성공")
	return nil
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)

	payload := map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token
		return fmt.Errorf("sending request: %w", redact(err, t.botToken))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &result) == nil && result.Description != "" {
			return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}

	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}

// splitMessage breaks text on line boundaries into chunks of at most limit runes
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLen := len([]rune(line))
		if currentLen+lineLen > limit {
			flush()
		}
		for lineLen > limit {
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
			lineLen = len([]rune(line))
		}
		current.WriteString(line)
		currentLen += lineLen
	}
	flush()

	return chunks
}
