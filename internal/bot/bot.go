// Package bot turns chat messages into ledger operations.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"careerquest/internal/ledger"
	"careerquest/internal/notify"
	"careerquest/internal/ratelimit"
	"careerquest/internal/session"
	"careerquest/internal/telegram"
)

// Ledger is what the conversation needs from the ledger service.
type Ledger interface {
	RegisterStudent(ctx context.Context, in ledger.NewStudent) (bool, error)
	GetStudent(ctx context.Context, id int64) (ledger.Student, error)
	UpdateStudentProfile(ctx context.Context, id int64, course, faculty *string) error
	GetBalance(ctx context.Context, id int64) (int, error)
	GrantPoints(ctx context.Context, studentID int64, codeText string) (ledger.Redemption, error)
	SpendPoints(ctx context.Context, studentID int64, codeText string) (ledger.Redemption, error)
	GetRating(ctx context.Context, requesterID int64, limit *int) ([]ledger.RatingEntry, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	AddAdmin(ctx context.Context, userID int64) error
	AddEvent(ctx context.Context, name string) (ledger.Event, error)
	ListEvents(ctx context.Context) ([]ledger.Event, error)
	DeleteEvent(ctx context.Context, id int64) (int64, error)
	AddCodeToEvent(ctx context.Context, eventID int64, codeText string, points int, isIncome bool) (ledger.Code, error)
	GenerateCode(ctx context.Context, eventID int64, points int, isIncome bool) (ledger.Code, error)
	DeleteCode(ctx context.Context, codeText string) error
	SetCodeActive(ctx context.Context, codeText string, active bool) error
	ListCodeUsage(ctx context.Context, eventID *int64) ([]ledger.CodeUsage, error)
}

// Messenger sends chat replies.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup any) error
}

// Poller fetches incoming updates.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Broadcaster queues a notification for every student.
type Broadcaster interface {
	Enqueue(ctx context.Context, requestedBy int64, text string) (notify.Job, error)
}

// TokenIssuer signs organizer API tokens.
type TokenIssuer func(userID int64) (token string, expires time.Time, err error)

// Conversation steps kept in the session store.
const (
	stepRegName    = "reg_name"
	stepRegCourse  = "reg_course"
	stepRegFaculty = "reg_faculty"
	stepGrantCode  = "grant_code"
	stepSpendCode  = "spend_code"
	stepAddAdmin   = "add_admin"
	stepNotifyText = "notify_text"
)

type Bot struct {
	ledger     Ledger
	out        Messenger
	sessions   session.Store
	throttle   *ratelimit.Throttle
	broadcasts Broadcaster
	issueToken TokenIssuer
	log        *slog.Logger
}

// Option customizes a Bot.
type Option func(*Bot)

// WithThrottle limits how often one user is served.
func WithThrottle(t *ratelimit.Throttle) Option { return func(b *Bot) { b.throttle = t } }

// WithTokenIssuer enables the /token command.
func WithTokenIssuer(fn TokenIssuer) Option { return func(b *Bot) { b.issueToken = fn } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bot) { b.log = l } }

func New(l Ledger, out Messenger, sessions session.Store, broadcasts Broadcaster, opts ...Option) *Bot {
	b := &Bot{
		ledger:     l,
		out:        out,
		sessions:   sessions,
		broadcasts: broadcasts,
		throttle:   ratelimit.NewThrottle(0),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context, p Poller, pollTimeout time.Duration) error {
	var offset int64
	backoff := time.Second
	b.log.Info("bot polling started")
	for {
		updates, err := p.GetUpdates(ctx, offset, pollTimeout)
		if ctx.Err() != nil {
			b.log.Info("bot polling stopped")
			return nil
		}
		if err != nil {
			b.log.Warn("get updates failed", "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		for _, u := range updates {
			offset = int64(u.UpdateID) + 1
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate processes one update. Errors are reported to the user and
// logged; they never stop the loop.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return
	}
	if !b.throttle.Allow(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, msgTooFast, nil)
		return
	}
	if err := b.handle(ctx, msg); err != nil {
		b.fail(ctx, msg, err)
	}
}

func (b *Bot) handle(ctx context.Context, msg *telegram.Message) error {
	text := strings.TrimSpace(msg.Text)
	uid := msg.From.ID

	if text == btnHome || text == "/home" {
		if err := b.sessions.Clear(ctx, uid); err != nil {
			return err
		}
		return b.home(ctx, msg)
	}

	cmd, args := splitCommand(text)
	if cmd != "" {
		// a new command abandons any half-finished prompt
		if err := b.sessions.Clear(ctx, uid); err != nil {
			return err
		}
		return b.command(ctx, msg, cmd, args)
	}

	st, err := b.sessions.Get(ctx, uid)
	if err != nil {
		return err
	}
	if st.Step != "" {
		return b.continueStep(ctx, msg, st, text)
	}

	switch text {
	case btnGetPoints:
		return b.askCode(ctx, msg, true)
	case btnSpendPoints:
		return b.askCode(ctx, msg, false)
	case btnRating:
		return b.top(ctx, msg, "")
	case btnEvents:
		return b.adminOnly(ctx, msg, "", b.listEvents)
	case btnCodes:
		return b.adminOnly(ctx, msg, "", b.listCodes)
	case btnNotify:
		return b.adminOnly(ctx, msg, "", b.notify)
	}
	b.reply(ctx, msg.Chat.ID, msgUnknown, nil)
	return nil
}

func (b *Bot) command(ctx context.Context, msg *telegram.Message, cmd, args string) error {
	switch cmd {
	case "start":
		return b.start(ctx, msg)
	case "code":
		return b.askCode(ctx, msg, true)
	case "spend":
		return b.askCode(ctx, msg, false)
	case "top":
		return b.top(ctx, msg, "")
	case "help":
		return b.help(ctx, msg)
	case "add_admin":
		return b.adminOnly(ctx, msg, args, b.addAdmin)
	case "notify":
		return b.adminOnly(ctx, msg, args, b.notify)
	case "add_event":
		return b.adminOnly(ctx, msg, args, b.addEvent)
	case "events":
		return b.adminOnly(ctx, msg, args, b.listEvents)
	case "delete_event":
		return b.adminOnly(ctx, msg, args, b.deleteEvent)
	case "add_code":
		return b.adminOnly(ctx, msg, args, b.addCode)
	case "gen_code":
		return b.adminOnly(ctx, msg, args, b.genCode)
	case "delete_code":
		return b.adminOnly(ctx, msg, args, b.deleteCode)
	case "codes":
		return b.adminOnly(ctx, msg, args, b.listCodes)
	case "toggle_code":
		return b.adminOnly(ctx, msg, args, b.toggleCode)
	case "top_all":
		return b.adminOnly(ctx, msg, args, b.top)
	case "token":
		return b.adminOnly(ctx, msg, args, b.token)
	}
	b.reply(ctx, msg.Chat.ID, msgUnknown, nil)
	return nil
}

func (b *Bot) continueStep(ctx context.Context, msg *telegram.Message, st session.State, text string) error {
	switch st.Step {
	case stepRegName, stepRegCourse, stepRegFaculty:
		return b.continueRegistration(ctx, msg, st, text)
	case stepGrantCode:
		return b.redeem(ctx, msg, text, true)
	case stepSpendCode:
		return b.redeem(ctx, msg, text, false)
	case stepAddAdmin:
		return b.adminOnly(ctx, msg, text, b.addAdmin)
	case stepNotifyText:
		return b.adminOnly(ctx, msg, text, b.notify)
	}
	b.log.Warn("unknown session step", "user_id", msg.From.ID, "step", st.Step)
	return b.sessions.Clear(ctx, msg.From.ID)
}

type adminHandler func(ctx context.Context, msg *telegram.Message, args string) error

func (b *Bot) adminOnly(ctx context.Context, msg *telegram.Message, args string, h adminHandler) error {
	ok, err := b.ledger.IsAdmin(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(ctx, msg.Chat.ID, msgNoRights, nil)
		return nil
	}
	return h(ctx, msg, args)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup any) {
	if err := b.out.SendMessage(ctx, chatID, text, markup); err != nil {
		b.log.Warn("reply failed", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) fail(ctx context.Context, msg *telegram.Message, err error) {
	switch {
	case errors.Is(err, ledger.ErrForbidden):
		b.reply(ctx, msg.Chat.ID, msgNoRights, nil)
	case errors.Is(err, ledger.ErrNotFound):
		b.reply(ctx, msg.Chat.ID, msgNotFound, nil)
	default:
		b.log.Error("message handling failed", "user_id", msg.From.ID, "text", msg.Text, "err", err)
		b.reply(ctx, msg.Chat.ID, msgFailure, nil)
	}
}

// splitCommand parses "/cmd@botname args". Non-commands yield an empty cmd.
func splitCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}
