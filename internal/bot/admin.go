package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"careerquest/internal/ledger"
	"careerquest/internal/notify"
	"careerquest/internal/session"
	"careerquest/internal/telegram"
)

func (b *Bot) addAdmin(ctx context.Context, msg *telegram.Message, args string) error {
	if args == "" {
		if err := b.sessions.Put(ctx, msg.From.ID, session.State{Step: stepAddAdmin}); err != nil {
			return err
		}
		b.reply(ctx, msg.Chat.ID, msgAskAdminID, backMenu())
		return nil
	}
	id, ok := parseID(args)
	if !ok {
		if err := b.sessions.Put(ctx, msg.From.ID, session.State{Step: stepAddAdmin}); err != nil {
			return err
		}
		b.reply(ctx, msg.Chat.ID, msgBadAdminID, backMenu())
		return nil
	}
	if err := b.ledger.AddAdmin(ctx, id); err != nil {
		return err
	}
	if err := b.sessions.Clear(ctx, msg.From.ID); err != nil {
		return err
	}
	b.log.Info("admin added via chat", "by", msg.From.ID, "user_id", id)
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgAdminAdded, id), mainMenu(true))
	return nil
}

func (b *Bot) notify(ctx context.Context, msg *telegram.Message, args string) error {
	if args == "" {
		if err := b.sessions.Put(ctx, msg.From.ID, session.State{Step: stepNotifyText}); err != nil {
			return err
		}
		b.reply(ctx, msg.Chat.ID, msgAskNotification, backMenu())
		return nil
	}
	job, err := b.broadcasts.Enqueue(ctx, msg.From.ID, args)
	if errors.Is(err, notify.ErrEmptyText) {
		b.reply(ctx, msg.Chat.ID, msgAskNotification, backMenu())
		return nil
	}
	if err != nil {
		return err
	}
	if err := b.sessions.Clear(ctx, msg.From.ID); err != nil {
		return err
	}
	b.log.Info("broadcast queued", "by", msg.From.ID, "job_id", job.ID)
	b.reply(ctx, msg.Chat.ID, msgNotifyQueued, mainMenu(true))
	return nil
}

func (b *Bot) addEvent(ctx context.Context, msg *telegram.Message, args string) error {
	if args == "" {
		b.reply(ctx, msg.Chat.ID, msgUsageAddEvent, nil)
		return nil
	}
	evt, err := b.ledger.AddEvent(ctx, args)
	if errors.Is(err, ledger.ErrDuplicate) {
		b.reply(ctx, msg.Chat.ID, msgDuplicateEvent, nil)
		return nil
	}
	if errors.Is(err, ledger.ErrInvalid) {
		b.reply(ctx, msg.Chat.ID, msgLongEventName, nil)
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgEventAdded, evt.Name, evt.ID), nil)
	return nil
}

func (b *Bot) listEvents(ctx context.Context, msg *telegram.Message, _ string) error {
	events, err := b.ledger.ListEvents(ctx)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, eventsText(events), nil)
	return nil
}

func (b *Bot) deleteEvent(ctx context.Context, msg *telegram.Message, args string) error {
	id, ok := parseID(args)
	if !ok {
		b.reply(ctx, msg.Chat.ID, msgUsageDeleteEvent, nil)
		return nil
	}
	removed, err := b.ledger.DeleteEvent(ctx, id)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgEventDeleted, id, removed), nil)
	return nil
}

func (b *Bot) addCode(ctx context.Context, msg *telegram.Message, args string) error {
	f := strings.Fields(args)
	if len(f) != 4 {
		b.reply(ctx, msg.Chat.ID, msgUsageAddCode, nil)
		return nil
	}
	eventID, ok1 := parseID(f[0])
	points, ok2 := parsePoints(f[2])
	income, ok3 := parseDirection(f[3])
	if !ok1 || !ok2 || !ok3 {
		b.reply(ctx, msg.Chat.ID, msgUsageAddCode, nil)
		return nil
	}
	code, err := b.ledger.AddCodeToEvent(ctx, eventID, f[1], points, income)
	switch {
	case errors.Is(err, ledger.ErrDuplicate):
		b.reply(ctx, msg.Chat.ID, msgDuplicateCode, nil)
		return nil
	case errors.Is(err, ledger.ErrInvalid):
		b.reply(ctx, msg.Chat.ID, msgUsageAddCode, nil)
		return nil
	case err != nil:
		return err
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgCodeAdded, code.Text, code.EventID, code.Points, direction(code.IsIncome)), nil)
	return nil
}

func (b *Bot) genCode(ctx context.Context, msg *telegram.Message, args string) error {
	f := strings.Fields(args)
	if len(f) != 3 {
		b.reply(ctx, msg.Chat.ID, msgUsageGenCode, nil)
		return nil
	}
	eventID, ok1 := parseID(f[0])
	points, ok2 := parsePoints(f[1])
	income, ok3 := parseDirection(f[2])
	if !ok1 || !ok2 || !ok3 {
		b.reply(ctx, msg.Chat.ID, msgUsageGenCode, nil)
		return nil
	}
	code, err := b.ledger.GenerateCode(ctx, eventID, points, income)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgCodeAdded, code.Text, code.EventID, code.Points, direction(code.IsIncome)), nil)
	return nil
}

func (b *Bot) deleteCode(ctx context.Context, msg *telegram.Message, args string) error {
	code := ledger.NormalizeCode(args)
	if code == "" || strings.ContainsAny(code, " \t") {
		b.reply(ctx, msg.Chat.ID, msgUsageDeleteCode, nil)
		return nil
	}
	if err := b.ledger.DeleteCode(ctx, code); err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgCodeDeleted, code), nil)
	return nil
}

func (b *Bot) toggleCode(ctx context.Context, msg *telegram.Message, args string) error {
	f := strings.Fields(args)
	if len(f) != 2 {
		b.reply(ctx, msg.Chat.ID, msgUsageToggleCode, nil)
		return nil
	}
	var active bool
	switch strings.ToLower(f[1]) {
	case "on":
		active = true
	case "off":
	default:
		b.reply(ctx, msg.Chat.ID, msgUsageToggleCode, nil)
		return nil
	}
	code := ledger.NormalizeCode(f[0])
	if err := b.ledger.SetCodeActive(ctx, code, active); err != nil {
		return err
	}
	state := "выключен"
	if active {
		state = "активен"
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgCodeToggled, code, state), nil)
	return nil
}

func (b *Bot) listCodes(ctx context.Context, msg *telegram.Message, args string) error {
	var eventID *int64
	if args != "" {
		id, ok := parseID(args)
		if !ok {
			b.reply(ctx, msg.Chat.ID, "Использование: /codes [id мероприятия]", nil)
			return nil
		}
		eventID = &id
	}
	codes, err := b.ledger.ListCodeUsage(ctx, eventID)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, codesText(codes), nil)
	return nil
}

func (b *Bot) token(ctx context.Context, msg *telegram.Message, _ string) error {
	if b.issueToken == nil {
		b.reply(ctx, msg.Chat.ID, msgUnknown, nil)
		return nil
	}
	tok, exp, err := b.issueToken(msg.From.ID)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgTokenIssued, exp.Format("02.01.2006 15:04"), tok), nil)
	return nil
}

// parseID accepts digits only.
func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parsePoints(s string) (int, bool) {
	id, ok := parseID(s)
	if !ok || id > 1_000_000 {
		return 0, false
	}
	return int(id), true
}

func parseDirection(s string) (income bool, ok bool) {
	switch strings.ToLower(s) {
	case "in", "income", "+":
		return true, true
	case "out", "spend", "-":
		return false, true
	}
	return false, false
}
