package bot

import (
	"fmt"
	"strings"

	"careerquest/internal/ledger"
	"careerquest/internal/telegram"
)

// Reply keyboard buttons.
const (
	btnGetPoints   = "💎 Получить баллы"
	btnSpendPoints = "💸 Потратить баллы"
	btnRating      = "🏆 Рейтинг"
	btnHome        = "⬅️ На главную"
	btnNotify      = "📢 Уведомление"
	btnCodes       = "📜 Активные коды"
	btnEvents      = "🎯 Мероприятия"
)

var courses = []string{
	"1 курс", "2 курс", "3 курс", "4 курс", "5 курс",
	"Магистратура", "Аспирантура", "Выпускник",
}

var faculties = []string{
	"ИИР", "ФЕН", "ФФ", "ИМПЗ", "ФИТ", "ММФ",
	"ГИ", "ФИЯ", "ИФП", "ГГФ", "ЭФ", "ПИШ",
}

const (
	msgWelcome          = "Привет! Добро пожаловать в Карьерный квест! 👋\n\nЧтобы начать, нужно зарегистрироваться. Пожалуйста, введи свое ФИО."
	msgAskCourse        = "Отлично, теперь выбери свой курс:"
	msgAskFaculty       = "Теперь выбери факультет:"
	msgBadCourse        = "Пожалуйста, выбери курс из предложенных вариантов."
	msgBadFaculty       = "Пожалуйста, выбери факультет из предложенных вариантов."
	msgEmptyName        = "ФИО не может быть пустым. Введи свое ФИО."
	msgNotRegistered    = "Сначала зарегистрируйся: отправь /start."
	msgLongName         = "ФИО слишком длинное, максимум 100 символов. Введи его короче."
	msgAskGrantCode     = "🎉 Получить баллы\n\nПосещай мероприятия и выполняй задания от работодателей, чтобы зарабатывать баллы!\n\n🔢 Введи уникальный код ниже:"
	msgAskSpendCode     = "🎁 Потратить баллы\n\nОбменивай баллы на мерч от работодателей на стендовых сессиях.\n\n💰 Твой баланс: %d баллов\n\n🔢 Введи уникальный код ниже:"
	msgEmptyCode        = "Код не может быть пустым. Введи код или вернись на главную."
	msgTooFast          = "❌ Слишком часто! Подождите немного."
	msgNoRights         = "❌ У вас нет прав для выполнения этой команды."
	msgFailure          = "⚠️ Что-то пошло не так. Попробуй ещё раз чуть позже."
	msgUnknown          = "❌ Неизвестная команда. Используйте меню или команду /help."
	msgAskAdminID       = "Введите ID пользователя, которого хотите добавить в администраторы:"
	msgBadAdminID       = "❌ Некорректный ID. Попробуйте ещё раз."
	msgAdminAdded       = "✅ Пользователь %d теперь администратор."
	msgAskNotification  = "Введите текст уведомления:"
	msgNotifyQueued     = "✅ Уведомление поставлено в очередь и будет отправлено всем студентам."
	msgNotFound         = "❌ Не найдено."
	msgDuplicateCode    = "❌ Такой код уже существует."
	msgDuplicateEvent   = "❌ Мероприятие с таким названием уже существует."
	msgLongEventName    = "❌ Название мероприятия длиннее 100 символов."
	msgNoEvents         = "Мероприятий пока нет."
	msgNoCodes          = "Кодов пока нет."
	msgEventAdded       = "✅ Мероприятие «%s» создано (ID %d)."
	msgEventDeleted     = "✅ Мероприятие %d удалено, кодов удалено: %d."
	msgCodeAdded        = "✅ Код %s привязан к мероприятию %d: %d баллов (%s)."
	msgCodeDeleted      = "✅ Код %s удалён."
	msgCodeToggled      = "✅ Код %s теперь %s."
	msgTokenIssued      = "🔑 Токен для API (действует до %s):\n\n%s"
	msgUsageAddEvent    = "Использование: /add_event <название>"
	msgUsageDeleteEvent = "Использование: /delete_event <id>"
	msgUsageAddCode     = "Использование: /add_code <id мероприятия> <код> <баллы> <in|out>"
	msgUsageGenCode     = "Использование: /gen_code <id мероприятия> <баллы> <in|out>"
	msgUsageDeleteCode  = "Использование: /delete_code <код>"
	msgUsageToggleCode  = "Использование: /toggle_code <код> <on|off>"
)

const helpStudent = "📚 Справка:\n\n" +
	"/start — регистрация\n" +
	"/home — главное меню и баланс\n" +
	"/code — ввести код для получения баллов\n" +
	"/spend — ввести код для списания баллов\n" +
	"/top — рейтинг\n\n" +
	"Используйте клавиатуру для быстрого доступа к функциям бота."

const helpAdmin = "🛠 Админская справка:\n\n" +
	"/add_admin [id] — добавить администратора\n" +
	"/notify [текст] — уведомление всем студентам\n" +
	"/add_event <название> — создать мероприятие\n" +
	"/events — список мероприятий\n" +
	"/delete_event <id> — удалить мероприятие вместе с кодами\n" +
	"/add_code <id> <код> <баллы> <in|out> — привязать код\n" +
	"/gen_code <id> <баллы> <in|out> — сгенерировать код\n" +
	"/delete_code <код> — удалить код\n" +
	"/toggle_code <код> <on|off> — включить или выключить код\n" +
	"/codes [id] — коды и число использований\n" +
	"/top_all [n] — полный рейтинг\n" +
	"/token — токен для организаторского API"

// CommandMenu lists the commands registered with setMyCommands at startup.
func CommandMenu() []telegram.BotCommand {
	return append([]telegram.BotCommand(nil), commandMenu...)
}

var commandMenu = []telegram.BotCommand{
	{Command: "start", Description: "Регистрация"},
	{Command: "home", Description: "Главное меню"},
	{Command: "code", Description: "Получить баллы"},
	{Command: "spend", Description: "Потратить баллы"},
	{Command: "top", Description: "Рейтинг"},
	{Command: "help", Description: "Справка"},
}

func mainMenu(admin bool) telegram.ReplyKeyboardMarkup {
	if admin {
		return telegram.Keyboard(
			[]string{btnGetPoints, btnSpendPoints},
			[]string{btnRating, btnEvents},
			[]string{btnCodes, btnNotify},
		)
	}
	return telegram.Keyboard(
		[]string{btnGetPoints, btnSpendPoints},
		[]string{btnRating},
	)
}

func backMenu() telegram.ReplyKeyboardMarkup {
	return telegram.Keyboard([]string{btnHome})
}

func choiceKeyboard(options []string) telegram.ReplyKeyboardMarkup {
	var rows [][]string
	for i := 0; i < len(options); i += 2 {
		end := i + 2
		if end > len(options) {
			end = len(options)
		}
		rows = append(rows, options[i:end])
	}
	kb := telegram.Keyboard(rows...)
	kb.OneTimeKeyboard = true
	return kb
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func homeText(balance int) string {
	return fmt.Sprintf("Привет, это Карьерный квест 👋\n\n🏅 Твой баланс: %d баллов\n\n"+
		"Получай баллы за участие в Днях карьеры и обменивай их на мерч от компаний! 🚀", balance)
}

func registeredText(name, course, faculty string) string {
	return fmt.Sprintf("Регистрация завершена! 🎉\n\nФИО: %s\nКурс: %s\nФакультет: %s\n\n"+
		"Теперь ты можешь участвовать в Карьерном квесте! 🚀", name, course, faculty)
}

// redemptionText renders the result of a grant or spend.
func redemptionText(r ledger.Redemption, income bool) string {
	switch r.Outcome {
	case ledger.OutcomeAccepted:
		if income {
			return fmt.Sprintf("✅ Код принят! Вам начислено %d баллов.\nВаш баланс: %d баллов.", r.Points, r.Balance)
		}
		return fmt.Sprintf("✅ Код принят! Списано %d баллов.\nВаш новый баланс: %d баллов.", r.Points, r.Balance)
	case ledger.OutcomeNotRegistered:
		return msgNotRegistered
	case ledger.OutcomeAlreadyUsed:
		return "❌ Этот код уже использован."
	case ledger.OutcomeInsufficientBalance:
		return "❌ Недостаточно баллов для обмена."
	case ledger.OutcomeCodeInactive:
		return "❌ Этот код больше не действует."
	default:
		return "❌ Ошибка! Код неверен или уже использован."
	}
}

func ratingText(entries []ledger.RatingEntry) string {
	var b strings.Builder
	b.WriteString("🔥 Топ студентов\n\n")
	if len(entries) == 0 {
		b.WriteString("Пока никто не набрал баллов.")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s - %d баллов\n", e.Position, e.Name, e.Balance)
	}
	return strings.TrimRight(b.String(), "\n")
}

func eventsText(events []ledger.Event) string {
	if len(events) == 0 {
		return msgNoEvents
	}
	var b strings.Builder
	b.WriteString("🎯 Мероприятия:\n\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%d. %s\n", e.ID, e.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func codesText(codes []ledger.CodeUsage) string {
	if len(codes) == 0 {
		return msgNoCodes
	}
	var b strings.Builder
	b.WriteString("📜 Коды:\n\n")
	for _, c := range codes {
		status := "активен"
		if !c.Active {
			status = "выключен"
		}
		fmt.Fprintf(&b, "%s | %s | %d баллов (%s) | %s | использований: %d\n",
			c.Code, c.EventName, c.Points, direction(c.IsIncome), status, c.UsageCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func direction(income bool) string {
	if income {
		return "начисление"
	}
	return "списание"
}
