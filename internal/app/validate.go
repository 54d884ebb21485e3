package app

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	must := func(tag string, re *regexp.Regexp) {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	must("hhmm", clockPattern)
	must("slug", slugPattern)
	must("rgbcolor", colorPattern)
	return v
}

// messages maps "field.tag" to the user-facing message for that failure.
type messages map[string]string

// check validates s and returns the first failing field as a
// *ValidationError.
func check(s any, msgs messages) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", "invalid data")
	}
	fe := verrs[0]
	if msg, ok := msgs[fe.Field()+"."+fe.Tag()]; ok {
		return &ValidationError{Field: fe.Field(), Message: msg}
	}
	return invalid(fe.Field(), "%s is invalid", fe.Field())
}

// BookingInput is what a guest submits to book a slot.
type BookingInput struct {
	EventTypeID   string `json:"event_type_id" validate:"required"`
	GuestName     string `json:"guest_name" validate:"min=2"`
	GuestEmail    string `json:"guest_email" validate:"required,email"`
	GuestTimezone string `json:"guest_timezone" validate:"required,timezone"`
	GuestNotes    string `json:"guest_notes" validate:"max=500"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"time" validate:"required,hhmm"`
}

var bookingMessages = messages{
	"event_type_id.required":  "event type is required",
	"guest_name.min":          "name must be at least 2 characters",
	"guest_email.required":    "email is required",
	"guest_email.email":       "invalid email",
	"guest_timezone.required": "timezone is required",
	"guest_timezone.timezone": "invalid timezone",
	"guest_notes.max":         "notes must be at most 500 characters",
	"date.required":           "date is required",
	"date.datetime":           "date must be YYYY-MM-DD",
	"time.required":           "time is required",
	"time.hhmm":               "time must be HH:MM (24h)",
}

type EventTypeInput struct {
	Title        string `json:"title" validate:"min=2"`
	Slug         string `json:"slug" validate:"min=2,max=30,slug"`
	Description  string `json:"description" validate:"max=500"`
	Duration     int    `json:"duration" validate:"min=5,max=480"`
	Color        string `json:"color" validate:"rgbcolor"`
	BufferBefore int    `json:"buffer_before" validate:"min=0,max=60"`
	BufferAfter  int    `json:"buffer_after" validate:"min=0,max=60"`
}

var eventTypeMessages = messages{
	"title.min":         "title must be at least 2 characters",
	"slug.min":          "slug must be at least 2 characters",
	"slug.max":          "slug must be at most 30 characters",
	"slug.slug":         "slug may only contain lowercase letters, numbers and hyphens",
	"description.max":   "description must be at most 500 characters",
	"duration.min":      "duration must be at least 5 minutes",
	"duration.max":      "duration must be at most 8 hours",
	"color.rgbcolor":    "invalid color",
	"buffer_before.min": "buffer before must be between 0 and 60 minutes",
	"buffer_before.max": "buffer before must be between 0 and 60 minutes",
	"buffer_after.min":  "buffer after must be between 0 and 60 minutes",
	"buffer_after.max":  "buffer after must be between 0 and 60 minutes",
}

type ProfileInput struct {
	Name        string `json:"name" validate:"min=2"`
	Email       string `json:"email" validate:"omitempty,email"`
	Slug        string `json:"slug" validate:"min=3,max=30,slug"`
	Bio         string `json:"bio" validate:"max=500"`
	Timezone    string `json:"timezone" validate:"required,timezone"`
	BusyFeedURL string `json:"busy_feed_url" validate:"omitempty,url"`
}

var profileMessages = messages{
	"name.min":          "name must be at least 2 characters",
	"email.email":       "invalid email",
	"slug.min":          "slug must be at least 3 characters",
	"slug.max":          "slug must be at most 30 characters",
	"slug.slug":         "slug may only contain lowercase letters, numbers and hyphens",
	"bio.max":           "bio must be at most 500 characters",
	"timezone.required": "select a timezone",
	"timezone.timezone": "invalid timezone",
	"busy_feed_url.url": "busy feed must be a URL",
}

type AvailabilityInput struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	IsEnabled bool   `json:"is_enabled"`
}

var availabilityMessages = messages{
	"day_of_week.min":     "day of week must be between 0 and 6",
	"day_of_week.max":     "day of week must be between 0 and 6",
	"start_time.required": "start time is required",
	"start_time.hhmm":     "start time must be HH:MM (24h)",
	"end_time.required":   "end time is required",
	"end_time.hhmm":       "end time must be HH:MM (24h)",
}
