package reminders

import (
	"fmt"
	"time"
)

// MessageTemplate renders a type-specific reminder message with the
// appointment time localized to the business's timezone.
func MessageTemplate(t Type, businessName string, start time.Time, loc *time.Location) string {
	if businessName == "" {
		businessName = "our team"
	}
	local := start.In(loc)

	switch t {
	case Type24Hour:
		return fmt.Sprintf(
			"Hi! Quick reminder from %s: your appointment is tomorrow, %s. Reply C to confirm or R to reschedule.",
			businessName, local.Format("Mon, Jan 2 at 3:04 PM"),
		)
	case Type2Hour:
		return fmt.Sprintf(
			"Reminder from %s: your appointment is today at %s. See you soon! Reply R if you need to reschedule.",
			businessName, local.Format("3:04 PM"),
		)
	default:
		return fmt.Sprintf(
			"Reminder from %s: you have an appointment on %s.",
			businessName, local.Format("Mon, Jan 2 at 3:04 PM"),
		)
	}
}
