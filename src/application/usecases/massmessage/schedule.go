package massmessage

import (
	"errors"
	"strings"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
)

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduledFor reads an RFC3339 instant, or a wall-clock datetime in the
// given IANA timezone (UTC when empty). The instant must be after now.
func ParseScheduledFor(value, timezone string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, domainErrors.NewAppError(errors.New("scheduled time is required"), domainErrors.SchedulingError)
	}

	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, domainErrors.NewAppError(errors.New("unknown timezone "+timezone), domainErrors.ValidationError)
		}
		location = loc
	}

	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		parsed := false
		for _, layout := range localLayouts {
			if at, err = time.ParseInLocation(layout, value, location); err == nil {
				parsed = true
				break
			}
		}
		if !parsed {
			return time.Time{}, domainErrors.NewAppError(errors.New("scheduled time is not a valid datetime"), domainErrors.ValidationError)
		}
	}

	if !at.After(now) {
		return time.Time{}, domainErrors.NewAppErrorWithType(domainErrors.SchedulingError)
	}
	return at.UTC(), nil
}
