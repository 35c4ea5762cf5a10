// Package telegram sends run notifications through the Telegram Bot API: a summary when a run
// ends and an alert when acquisition fails. Messages use MarkdownV2 and are retried with a
// linear backoff.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/kbmeter/internal/models"
)

// sender is the part of the bot API the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendSummary reports a finished run.
func (c *Client) SendSummary(s models.RunSummary) error {
	return c.send(formatSummary(s))
}

// SendError reports an acquisition failure.
func (c *Client) SendError(err error) error {
	return c.send(formatError(err, time.Now()))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// Send with retry
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatSummary formats a finished run into a Telegram message
func formatSummary(s models.RunSummary) string {
	var b strings.Builder

	b.WriteString("🔬 *k\\_B run finished*\n\n")
	fmt.Fprintf(&b, "📅 Started: %s\n", escapeMarkdownV2(s.Run.StartedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "⏱ Duration: %s\n", escapeMarkdownV2(formatDuration(s.Elapsed)))
	fmt.Fprintf(&b, "📏 Path: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f m", s.Run.Distance)))
	fmt.Fprintf(&b, "🧪 Model: %s\n", escapeMarkdownV2(s.Run.Model.String()))
	fmt.Fprintf(&b, "🔢 Samples: %d accepted, %d rejected\n\n", s.Summary.Count, s.Rejected)

	if s.Summary.Count == 0 {
		b.WriteString("No samples were accepted\\.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Mean k\\_B: *%s* × 10⁻²³ J/K\n",
		escapeMarkdownV2(fmt.Sprintf("%.5f ± %.5f", s.Summary.Mean, s.Summary.StdError)))
	fmt.Fprintf(&b, "Band: %s\n",
		escapeMarkdownV2(fmt.Sprintf("[%.5f, %.5f]", s.Summary.Low, s.Summary.High)))
	if s.Reference != 0 {
		fmt.Fprintf(&b, "Reference: %s \\(%s\\)\n",
			escapeMarkdownV2(fmt.Sprintf("%.5f", s.Reference)),
			escapeMarkdownV2(fmt.Sprintf("%+.2f%%", s.Deviation()*100)))
	}
	if s.CSVPath != "" {
		fmt.Fprintf(&b, "\n💾 `%s`\n", escapeCode(s.CSVPath))
	}
	return b.String()
}

// formatError formats an acquisition failure into a Telegram message
func formatError(err error, at time.Time) string {
	return fmt.Sprintf("⚠️ *Acquisition stopped*\n\n📅 %s\n%s\n\nCollected data is kept until the run is stopped\\.",
		escapeMarkdownV2(at.Format("2006-01-02 15:04:05")),
		escapeMarkdownV2(err.Error()))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside a MarkdownV2 code span.
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, int(d.Minutes())%60)
	}
	if mins := int(d.Minutes()); mins > 0 {
		return fmt.Sprintf("%dm%ds", mins, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
