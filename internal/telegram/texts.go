package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Reply keyboard labels double as commands.
const (
	btnFreeCourse = "🧘 Free course"
	btnMyStatus   = "📋 My status"
)

const (
	welcomeText = "👋 Hi! This is your yoga companion.\n\n" +
		"Your free two-week course opens in a moment. Lessons arrive right here in the chat."
	alreadyStartedText = "You already have a course. Here is where you stand:"
	adminOnlyText      = "This command is for administrators."
	errorText          = "Something went wrong. Please try again later."
	helpText           = "Use the menu below: " + btnFreeCourse + " to start, " + btnMyStatus + " to check your course."

	ackStarted       = "Enjoy the course! 🧘"
	ackAlreadyActive = "Your course is already running."
	ackStartFirst    = "Please send /start first."
	ackThanks        = "Thank you for the feedback!"
	ackAnswered      = "You have already answered."
	ackExtended      = "One more day unlocked ✨"
	ackNoExtension   = "The extra day is not available."
)

// mainMenuKeyboard is the persistent reply keyboard.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnFreeCourse),
			tgbotapi.NewKeyboardButton(btnMyStatus),
		),
	)
}
