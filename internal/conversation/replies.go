package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/booklinehq/bookline-platform/internal/scheduling"
)

// Reply text builders. Everything here is plain text for SMS rendering.

// FormatOptionList renders offered slots as "<index>) <label>" lines plus the
// instruction line the selection matcher expects replies against.
func FormatOptionList(options []scheduling.SlotOption, intro string) string {
	var sb strings.Builder
	if intro != "" {
		sb.WriteString(intro)
		sb.WriteString("\n\n")
	}
	for _, o := range options {
		sb.WriteString(fmt.Sprintf("%d) %s\n", o.Index, o.Label))
	}
	sb.WriteString("\nReply 1-3 to pick a time, or 4 for more options.")
	return sb.String()
}

func optionsIntro(batch int) string {
	if batch > 1 {
		return "Here are some more times that work:"
	}
	return "No problem! Here are the next available times:"
}

func expiryNotice() string {
	return "Those time options have expired. A team member will follow up shortly to get you rescheduled."
}

func noMoreSlotsNotice() string {
	return "I couldn't find any more open times right now. A team member will reach out shortly to help you find a time that works."
}

func noAvailabilityNotice() string {
	return "I couldn't find any open times to offer right now. A team member will follow up shortly to get you rescheduled."
}

func bookingGoneNotice() string {
	return "I couldn't find that appointment anymore. Please reply R to start a new reschedule request."
}

func invalidSelectionNotice(optionCount int) string {
	return fmt.Sprintf("Please reply with a number between 1 and %d to pick a time, or 4 to see more options.", optionCount)
}

func noActiveOptionsNotice() string {
	return "There's no active list of time options right now. Reply R and I'll find some times for you."
}

func rescheduleConfirmation(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("You're all set! Your appointment has been moved to %s. Reply R if you need to change it again.",
		scheduling.FormatSlotLabel(start, loc))
}

func confirmationReply(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("Thanks for confirming! We'll see you %s.", scheduling.FormatSlotLabel(start, loc))
}

func alreadyConfirmedReply(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("You're already confirmed for %s. See you then!", scheduling.FormatSlotLabel(start, loc))
}

func noBookingReply() string {
	return "I couldn't find an upcoming appointment for you. Could you share the name or time it was booked under?"
}

func handoffReply() string {
	return "Got it - a team member will reach out to you shortly."
}

func guidedBookingReply() string {
	return "Happy to help! Reply C to confirm your upcoming appointment, or R to see available times to reschedule."
}

func fallbackReply() string {
	return "Thanks for your message! Reply C to confirm your appointment, R to reschedule, or tell me a bit more about what you need."
}
