package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"careerquest/internal/ledger"
	"careerquest/internal/session"
	"careerquest/internal/telegram"
)

func (b *Bot) start(ctx context.Context, msg *telegram.Message) error {
	_, err := b.ledger.GetStudent(ctx, msg.From.ID)
	if err == nil {
		return b.home(ctx, msg)
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	if err := b.sessions.Put(ctx, msg.From.ID, session.State{Step: stepRegName}); err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, msgWelcome, telegram.RemoveKeyboard())
	return nil
}

func (b *Bot) continueRegistration(ctx context.Context, msg *telegram.Message, st session.State, text string) error {
	uid := msg.From.ID
	switch st.Step {
	case stepRegName:
		if text == "" {
			b.reply(ctx, msg.Chat.ID, msgEmptyName, nil)
			return nil
		}
		if utf8.RuneCountInString(text) > ledger.MaxNameLength {
			b.reply(ctx, msg.Chat.ID, msgLongName, nil)
			return nil
		}
		st.Set("name", text)
		st.Step = stepRegCourse
		if err := b.sessions.Put(ctx, uid, st); err != nil {
			return err
		}
		b.reply(ctx, msg.Chat.ID, msgAskCourse, choiceKeyboard(courses))
		return nil

	case stepRegCourse:
		if !contains(courses, text) {
			b.reply(ctx, msg.Chat.ID, msgBadCourse, choiceKeyboard(courses))
			return nil
		}
		st.Set("course", text)
		st.Step = stepRegFaculty
		if err := b.sessions.Put(ctx, uid, st); err != nil {
			return err
		}
		b.reply(ctx, msg.Chat.ID, msgAskFaculty, choiceKeyboard(faculties))
		return nil
	}

	if !contains(faculties, text) {
		b.reply(ctx, msg.Chat.ID, msgBadFaculty, choiceKeyboard(faculties))
		return nil
	}
	name, course, faculty := st.Data["name"], st.Data["course"], text
	in := ledger.NewStudent{ID: uid, Name: name, Course: &course, Faculty: &faculty}
	if msg.From.UserName != "" {
		username := msg.From.UserName
		in.Username = &username
	}
	created, err := b.ledger.RegisterStudent(ctx, in)
	if err != nil {
		return err
	}
	if !created {
		// a second pass through registration only refreshes the profile
		if err := b.ledger.UpdateStudentProfile(ctx, uid, &course, &faculty); err != nil {
			return err
		}
	}
	if err := b.sessions.Clear(ctx, uid); err != nil {
		return err
	}
	admin, err := b.ledger.IsAdmin(ctx, uid)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, registeredText(name, course, faculty), mainMenu(admin))
	return nil
}

func (b *Bot) home(ctx context.Context, msg *telegram.Message) error {
	balance, err := b.ledger.GetBalance(ctx, msg.From.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		b.reply(ctx, msg.Chat.ID, msgNotRegistered, nil)
		return nil
	}
	if err != nil {
		return err
	}
	admin, err := b.ledger.IsAdmin(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, homeText(balance), mainMenu(admin))
	return nil
}

func (b *Bot) askCode(ctx context.Context, msg *telegram.Message, income bool) error {
	balance, err := b.ledger.GetBalance(ctx, msg.From.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		b.reply(ctx, msg.Chat.ID, msgNotRegistered, nil)
		return nil
	}
	if err != nil {
		return err
	}
	step, text := stepGrantCode, msgAskGrantCode
	if !income {
		step, text = stepSpendCode, fmt.Sprintf(msgAskSpendCode, balance)
	}
	if err := b.sessions.Put(ctx, msg.From.ID, session.State{Step: step}); err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, text, backMenu())
	return nil
}

func (b *Bot) redeem(ctx context.Context, msg *telegram.Message, text string, income bool) error {
	if ledger.NormalizeCode(text) == "" {
		b.reply(ctx, msg.Chat.ID, msgEmptyCode, backMenu())
		return nil
	}
	uid := msg.From.ID
	var (
		res ledger.Redemption
		err error
	)
	if income {
		res, err = b.ledger.GrantPoints(ctx, uid, text)
	} else {
		res, err = b.ledger.SpendPoints(ctx, uid, text)
	}
	if err != nil {
		return err
	}
	if err := b.sessions.Clear(ctx, uid); err != nil {
		return err
	}
	admin, err := b.ledger.IsAdmin(ctx, uid)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, redemptionText(res, income), mainMenu(admin))
	return nil
}

// top serves /top, the rating button and /top_all [n].
func (b *Bot) top(ctx context.Context, msg *telegram.Message, args string) error {
	var limit *int
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			b.reply(ctx, msg.Chat.ID, "Использование: /top_all [количество]", nil)
			return nil
		}
		limit = &n
	}
	entries, err := b.ledger.GetRating(ctx, msg.From.ID, limit)
	if err != nil {
		return err
	}
	b.reply(ctx, msg.Chat.ID, ratingText(entries), backMenu())
	return nil
}

func (b *Bot) help(ctx context.Context, msg *telegram.Message) error {
	admin, err := b.ledger.IsAdmin(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	text := helpStudent
	if admin {
		text += "\n\n" + helpAdmin
	}
	b.reply(ctx, msg.Chat.ID, text, mainMenu(admin))
	return nil
}
