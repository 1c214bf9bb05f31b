package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
)

// Operations is the operator surface the console drives.
type Operations interface {
	Void(ctx context.Context, jobID string) error
	Resend(ctx context.Context, suggestionID string) (model.DeliveryOutcome, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*model.GenerationJob, error)
}

const consoleHelp = `Commands:
/deadletters [n] - list dead-lettered jobs
/void <job-id> - cancel an unfinished job
/resend <suggestion-id> - deliver an undelivered suggestion again
/help`

// OperatorConsole answers operator commands sent to the alert bot. Only the
// configured alert chats are served.
type OperatorConsole struct {
	bot           *tgbotapi.BotAPI
	ops           Operations
	allowed       map[int64]struct{}
	updateWorkers int
	log           *zerolog.Logger
}

func NewOperatorConsole(alerts *AlertBot, ops Operations, updateWorkers int, logger *zerolog.Logger) *OperatorConsole {
	if updateWorkers <= 0 {
		updateWorkers = 2
	}
	allowed := make(map[int64]struct{}, len(alerts.chatIDs))
	for _, id := range alerts.chatIDs {
		allowed[id] = struct{}{}
	}
	l := logger.With().Str("component", "operator_console").Logger()
	return &OperatorConsole{bot: alerts.bot, ops: ops, allowed: allowed, updateWorkers: updateWorkers, log: &l}
}

// Run long-polls Telegram and handles updates concurrently until ctx is done.
func (c *OperatorConsole) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	var wg sync.WaitGroup
	work := make(chan tgbotapi.Update, 100)
	for i := 0; i < c.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for update := range work {
				if err := c.handleUpdate(ctx, update); err != nil {
					c.log.Error().Err(err).Int("worker", workerID).Msg("handling update failed")
				}
			}
		}(i + 1)
	}

	c.log.Info().Int("workers", c.updateWorkers).Msg("operator console polling")
dispatch:
	for {
		select {
		case update := <-updates:
			select {
			case work <- update:
			case <-ctx.Done():
				break dispatch
			}
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	c.bot.StopReceivingUpdates()
	wg.Wait()
	return ctx.Err()
}

func (c *OperatorConsole) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}
	chatID := update.Message.Chat.ID
	if !c.isAllowed(chatID) {
		c.log.Warn().Int64("chat_id", chatID).Msg("ignoring command from unknown chat")
		return nil
	}
	reply := c.Handle(ctx, update.Message.Text)
	if reply == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, truncate(reply, maxMessageLen))
	msg.DisableWebPagePreview = true
	_, err := c.bot.Send(msg)
	return err
}

func (c *OperatorConsole) isAllowed(chatID int64) bool {
	_, ok := c.allowed[chatID]
	return ok
}

// Handle runs one command line and returns the reply text. Non-commands get
// no reply.
func (c *OperatorConsole) Handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	// "/void@my_bot" in group chats
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch cmd {
	case "/start", "/help":
		return consoleHelp
	case "/deadletters":
		limit := 10
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return "Usage: /deadletters [n]"
			}
			limit = n
		}
		jobs, err := c.ops.ListDeadLetters(ctx, limit)
		if err != nil {
			return c.failure("list dead letters", err)
		}
		if len(jobs) == 0 {
			return "No dead-lettered jobs."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d dead-lettered job(s):\n", len(jobs))
		for _, j := range jobs {
			fmt.Fprintf(&b, "- %s tenant=%s user=%s attempts=%d: %s\n", j.ID, j.TenantID, j.UserID, j.Attempts, j.LastError)
		}
		return strings.TrimRight(b.String(), "\n")
	case "/void":
		if len(args) != 1 {
			return "Usage: /void <job-id>"
		}
		if err := c.ops.Void(ctx, args[0]); err != nil {
			return c.failure("void "+args[0], err)
		}
		return "Voided job " + args[0]
	case "/resend":
		if len(args) != 1 {
			return "Usage: /resend <suggestion-id>"
		}
		out, err := c.ops.Resend(ctx, args[0])
		if err != nil {
			return c.failure("resend "+args[0], err)
		}
		return fmt.Sprintf("Delivered %s via %s after %d attempt(s)", args[0], out.Channel, out.Attempts)
	default:
		return "Unknown command. Send /help for the list of commands."
	}
}

func (c *OperatorConsole) failure(what string, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Not found: " + what
	case domain.IsValidation(err), errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrVoided):
		return fmt.Sprintf("Cannot %s: %v", what, err)
	}
	c.log.Error().Err(err).Str("command", what).Msg("operator command failed")
	return fmt.Sprintf("Failed to %s, see logs.", what)
}
