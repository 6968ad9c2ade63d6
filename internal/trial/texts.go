package trial

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
)

// Callback data carried by inline buttons.
const (
	CallbackFeedbackYes = "course_feedback_yes"
	CallbackFeedbackNo  = "course_feedback_no"
	CallbackExtend      = "try_one_more_day"
	CallbackStartNow    = "start_now"
)

// Links are the external destinations offered to users.
type Links struct {
	ChatURL     string
	DiscountURL string
	CoachURL    string
}

const (
	courseIntroText = "🧘 Your free course has started!\n\n" +
		"You have access to the lessons for the next two weeks. Practice at your own pace, " +
		"the videos are below."
	reminderFmt = "🌿 A gentle reminder: %d %s left in your free course.\n\n" +
		"Roll out the mat and give yourself twenty minutes today."
	feedbackPromptText = "🙏 Your free course has ended.\n\nDid you enjoy the practice?"
	positiveOfferText  = "💛 Thank you! We are glad the course helped.\n\n" +
		"Join the community chat or grab the discount for the full program."
	extensionOfferText = "😌 Thanks for being honest.\n\n" +
		"Maybe you just did not have enough time? We can open the lessons for one more day."
	extensionGrantedText = "✨ The lessons are open for one more day. Enjoy!"
	closingText          = "🌸 Your extra day is over. If you want to keep practicing, " +
		"a coach is happy to help you pick a program."
	pendingStartText = "⏳ Your free course is on its way. It will open shortly, " +
		"or press the button to start right now."
	notRegisteredText = "You have not started the free course yet. Send /start to begin."
)

// Texts renders notices into outbound messages.
type Texts struct {
	links Links
}

func NewTexts(links Links) Texts {
	return Texts{links: links}
}

// Render builds the message for a lifecycle notice.
func (t Texts) Render(n lifecycle.Notice, daysLeft int) domain.Message {
	switch n {
	case lifecycle.NoticeCourseIntro:
		return domain.Message{Text: courseIntroText}
	case lifecycle.NoticeReminder:
		return domain.Message{Text: fmt.Sprintf(reminderFmt, daysLeft, plural(daysLeft, "day", "days"))}
	case lifecycle.NoticeFeedbackPrompt:
		return domain.Message{
			Text: feedbackPromptText,
			Buttons: [][]domain.Button{{
				{Text: "👍 Yes", Data: CallbackFeedbackYes},
				{Text: "👎 Not really", Data: CallbackFeedbackNo},
			}},
		}
	case lifecycle.NoticePositiveOffer:
		return domain.Message{Text: positiveOfferText, Buttons: t.linkRows(
			domain.Button{Text: "💬 Community chat", URL: t.links.ChatURL},
			domain.Button{Text: "🎁 Get the discount", URL: t.links.DiscountURL},
		)}
	case lifecycle.NoticeExtensionOffer:
		return domain.Message{
			Text:    extensionOfferText,
			Buttons: [][]domain.Button{{{Text: "🕯 Try one more day", Data: CallbackExtend}}},
		}
	case lifecycle.NoticeExtensionGranted:
		return domain.Message{Text: extensionGrantedText}
	case lifecycle.NoticeClosing:
		return domain.Message{Text: closingText, Buttons: t.linkRows(
			domain.Button{Text: "🧑‍🏫 Talk to a coach", URL: t.links.CoachURL},
		)}
	}
	return domain.Message{}
}

// Content builds the message for one catalog item.
func (t Texts) Content(item domain.ContentItem) domain.Message {
	msg := domain.Message{Text: item.Caption, PhotoID: item.PhotoID}
	if item.URL != "" {
		msg.Buttons = [][]domain.Button{{{Text: "▶️ Watch", URL: item.URL}}}
	}
	return msg
}

// Status describes where the user stands. u may be nil for unknown users.
func (t Texts) Status(u *domain.User, now time.Time) domain.Message {
	if u == nil {
		return domain.Message{Text: notRegisteredText}
	}
	switch u.Status {
	case domain.StatusNew, domain.StatusTrialExpired:
		if u.PendingStartAt != nil {
			return domain.Message{
				Text:    pendingStartText,
				Buttons: [][]domain.Button{{{Text: "🚀 Start now", Data: CallbackStartNow}}},
			}
		}
		if u.Status == domain.StatusNew {
			return domain.Message{Text: notRegisteredText}
		}
		return domain.Message{Text: "🧾 Your free course has ended. Send /start to take it again."}
	case domain.StatusTrialActive:
		days, ok := u.DaysLeft(now)
		if !ok || days <= 0 {
			return domain.Message{Text: "🧾 Your free course ends today."}
		}
		return domain.Message{Text: fmt.Sprintf("🧾 Your free course is active: %d %s left.", days, plural(days, "day", "days"))}
	case domain.StatusOpen, domain.StatusActive:
		return domain.Message{Text: "🧾 You have full access. Namaste!"}
	case domain.StatusAdmin:
		return domain.Message{Text: "🧾 You are an administrator. Use /admin for stats."}
	}
	return domain.Message{Text: notRegisteredText}
}

// Stats renders the admin overview.
func (t Texts) Stats(st Stats) domain.Message {
	var b strings.Builder
	b.WriteString("📊 Users by status:\n")
	total := 0
	for _, s := range domain.Statuses() {
		n := st.ByStatus[s]
		total += n
		fmt.Fprintf(&b, "• %s: %d\n", s, n)
	}
	fmt.Fprintf(&b, "Total: %d\n", total)

	kinds := make([]string, 0, len(st.LastRuns))
	for k := range st.LastRuns {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	if len(kinds) > 0 {
		b.WriteString("\n🛠 Last sweeps:\n")
	}
	for _, k := range kinds {
		r := st.LastRuns[domain.RunKind(k)]
		fmt.Fprintf(&b, "• %s at %s: %d scanned, %d applied, %d failed\n",
			k, r.FinishedAt.Format(time.RFC3339), r.Scanned, r.Applied, r.Failed)
	}
	return domain.Message{Text: b.String()}
}

func (t Texts) linkRows(buttons ...domain.Button) [][]domain.Button {
	var rows [][]domain.Button
	for _, b := range buttons {
		if b.URL == "" {
			continue
		}
		rows = append(rows, []domain.Button{b})
	}
	return rows
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
