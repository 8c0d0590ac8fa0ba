package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/notifyr/internal/gateway"
	"github.com/user/notifyr/internal/types"
)

const maxTelegramMessage = 4096

// telegramPackage is the package id stamped on payloads from this adapter;
// the normalizer's platform table resolves it to PlatformTelegram.
const telegramPackage = "org.telegram.messenger"

// Adapter bridges Telegram to the gateway: long-polled updates become raw
// payloads, and it serves as the reply transport for telegram conversations.
type Adapter struct {
	bot          *tgbotapi.BotAPI
	gateway      *gateway.Gateway
	selfSentinel string
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway, selfSentinel string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:          bot,
		gateway:      gw,
		selfSentinel: selfSentinel,
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(msg *tgbotapi.Message) {
	sender := senderName(msg)
	// Messages authored by the bot's own account are the local user's side
	// of the conversation.
	if msg.From != nil && msg.From.ID == a.bot.Self.ID {
		sender = a.selfSentinel
	}

	payload := &types.RawPayload{
		PackageID:    telegramPackage,
		Title:        chatTitle(msg),
		Body:         msg.Text,
		Sender:       sender,
		ThreadKey:    string(threadKey(msg.Chat.ID)),
		Timestamp:    msg.Time(),
		ReplyCapable: true,
		Extras: map[string]string{
			"chat_id":    strconv.FormatInt(msg.Chat.ID, 10),
			"message_id": strconv.Itoa(msg.MessageID),
		},
	}

	if _, err := a.gateway.Ingest(payload); err != nil {
		slog.Warn("telegram ingest failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

// Dispatch implements types.Transport, sending the reply back into the chat
// the message came from.
func (a *Adapter) Dispatch(ctx context.Context, msg *types.Message, text string) types.Outcome {
	chatID, err := chatIDFromThread(msg.ConversationID)
	if err != nil {
		return types.Outcome{Kind: types.OutcomePermanent, Reason: err.Error()}
	}

	for _, part := range splitMessage(text) {
		out := tgbotapi.NewMessage(chatID, part)
		if _, err := a.bot.Send(out); err != nil {
			return classify(err)
		}
		if ctx.Err() != nil {
			return types.Outcome{Kind: types.OutcomeTransient, Reason: ctx.Err().Error()}
		}
	}
	return types.Outcome{Kind: types.OutcomeSuccess}
}

// classify maps bot API errors onto the outcome kinds the retry policy
// understands. Throttling and network trouble are transient; everything the
// API rejects outright (bad chat, revoked permissions) is permanent.
func classify(err error) types.Outcome {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 || apiErr.Code == 429 || apiErr.Code >= 500 {
			return types.Outcome{Kind: types.OutcomeTransient, Reason: apiErr.Message}
		}
		return types.Outcome{Kind: types.OutcomePermanent, Reason: apiErr.Message}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") {
		return types.Outcome{Kind: types.OutcomeTransient, Reason: err.Error()}
	}
	return types.Outcome{Kind: types.OutcomePermanent, Reason: err.Error()}
}

func senderName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.UserName
	}
	return name
}

func chatTitle(msg *tgbotapi.Message) string {
	if msg.Chat.Title != "" {
		return msg.Chat.Title
	}
	return senderName(msg)
}

func threadKey(chatID int64) types.ThreadKey {
	return types.NewThreadKey("telegram", strconv.FormatInt(chatID, 10))
}

func chatIDFromThread(key types.ThreadKey) (int64, error) {
	raw, ok := strings.CutPrefix(string(key), "telegram:")
	if !ok {
		return 0, fmt.Errorf("thread key %q is not a telegram thread", key)
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chat id from %q: %w", key, err)
	}
	return chatID, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
