// Package telegram sends forecast run summaries through the Telegram Bot API.
// Messages use MarkdownV2 and delivery is retried with a linear backoff.
package telegram

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/salesforecast/internal/forecast"
)

// maxListed caps how many products a run summary lists.
const maxListed = 10

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
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

// SendRun sends a summary of a committed forecast run.
func (c *Client) SendRun(project string, batch *forecast.BatchResult, at time.Time) error {
	return c.send(formatRun(project, batch, at))
}

// SendError reports a failed run.
func (c *Client) SendError(err error) error {
	return c.send(formatError(err))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// rating grades an overall MAPE the way the sales team reads it.
func rating(mape float64) string {
	switch {
	case mape < 15:
		return "excellent"
	case mape < 25:
		return "good"
	default:
		return "poor"
	}
}

func formatRun(project string, batch *forecast.BatchResult, at time.Time) string {
	var b strings.Builder

	title := "Forecast run"
	if project != "" {
		title = "Forecast: " + project
	}
	fmt.Fprintf(&b, "📊 *%s*\n\n", escapeMarkdownV2(title))
	fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(at.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "α %s\n", escapeMarkdownV2(strconv.FormatFloat(batch.Alpha, 'g', -1, 64)))
	fmt.Fprintf(&b, "🎯 MAPE: *%s* \\(%s\\)\n\n",
		escapeMarkdownV2(fmt.Sprintf("%.2f%%", batch.OverallMAPE)), rating(batch.OverallMAPE))

	results := make([]*forecast.Result, 0, len(batch.Results))
	for _, r := range batch.Results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].NextPeriodForecast != results[j].NextPeriodForecast {
			return results[i].NextPeriodForecast > results[j].NextPeriodForecast
		}
		return results[i].EntityKey < results[j].EntityKey
	})

	if len(results) == 0 {
		b.WriteString("No products matched\\.\n")
		return b.String()
	}

	for i, r := range results {
		if i == maxListed {
			fmt.Fprintf(&b, "\\.\\.\\. and %d more\n", len(results)-maxListed)
			break
		}
		mape := "n/a"
		if !math.IsNaN(r.MAPE) && !math.IsInf(r.MAPE, 0) {
			mape = fmt.Sprintf("%.2f%%", r.MAPE)
		}
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdownV2(r.EntityKey))
		fmt.Fprintf(&b, "   ➡️ Next: *%s*   MAPE: %s\n",
			escapeMarkdownV2(strconv.FormatFloat(math.Round(r.NextPeriodForecast), 'f', 0, 64)),
			escapeMarkdownV2(mape))
	}

	return b.String()
}

func formatError(err error) string {
	return fmt.Sprintf("⚠️ *Forecast run failed*\n\n%s\n", escapeMarkdownV2(err.Error()))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
