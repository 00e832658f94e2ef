// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New()
	})
	return structValidator
}

// ValidateSettings validates the entire Settings struct. Field ranges come
// from struct tags; rules spanning several fields are checked here.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := getValidator().Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				ve.Errors = append(ve.Errors, describeFieldError(fe))
			}
		} else {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateCaptureSettings(&settings.Capture); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDetectionSettings(&settings.Detection); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSessionSettings(&settings.Session); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no dsn is configured")
	}

	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		ve.Errors = append(ve.Errors, "telemetry is enabled but no listen address is configured")
	}

	if settings.Server.Enabled && settings.Server.Listen == "" {
		ve.Errors = append(ve.Errors, "server is enabled but no listen address is configured")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Settings."))
	if fe.Param() != "" {
		return fmt.Sprintf("%s must satisfy %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s must satisfy %s (got %v)", key, fe.Tag(), fe.Value())
}

func validateCaptureSettings(settings *CaptureSettings) error {
	if settings.Source == "file" && settings.Input == "" {
		return fmt.Errorf("capture source is file but no input file is configured")
	}
	if settings.SampleRate > 0 && settings.FrameMs > 0 && settings.FrameSize() == 0 {
		return fmt.Errorf("capture frame of %dms at %d Hz holds no samples", settings.FrameMs, settings.SampleRate)
	}
	return nil
}

func validateDetectionSettings(settings *DetectionSettings) error {
	var errs []string

	if settings.MinDuration < 0 {
		errs = append(errs, "minduration must not be negative")
	}
	if settings.HangTime <= 0 {
		errs = append(errs, "hangtime must be positive")
	}
	if settings.PreRoll < 0 {
		errs = append(errs, "preroll must not be negative")
	}
	if settings.MaxDuration < 0 {
		errs = append(errs, "maxduration must not be negative")
	}
	if settings.MinDuration > 0 && settings.MinDuration <= settings.HangTime {
		errs = append(errs, "minduration must exceed hangtime, or be 0 to keep every event")
	}
	if settings.MaxDuration > 0 && settings.MaxDuration < settings.MinDuration {
		errs = append(errs, "maxduration must be at least minduration")
	}

	if len(errs) > 0 {
		return fmt.Errorf("detection settings errors: %v", errs)
	}
	return nil
}

func validateSessionSettings(settings *SessionSettings) error {
	var errs []string

	if settings.StartDelay < 0 {
		errs = append(errs, "startdelay must not be negative")
	}
	if settings.CheckpointInterval != 0 && settings.CheckpointInterval < time.Second {
		errs = append(errs, "checkpointinterval must be 0 or at least 1s")
	}
	if settings.AutoStop != "" {
		if _, _, err := ParseClock(settings.AutoStop); err != nil {
			errs = append(errs, fmt.Sprintf("autostop: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("session settings errors: %v", errs)
	}
	return nil
}

func validateOutputSettings(settings *OutputSettings) error {
	switch {
	case settings.SQLite.Enabled && settings.MySQL.Enabled:
		return fmt.Errorf("only one of output.sqlite and output.mysql can be enabled")
	case !settings.SQLite.Enabled && !settings.MySQL.Enabled:
		return fmt.Errorf("one of output.sqlite or output.mysql must be enabled")
	case settings.SQLite.Enabled && settings.SQLite.Path == "":
		return fmt.Errorf("output.sqlite.path must be set")
	case settings.MySQL.Enabled && (settings.MySQL.Host == "" || settings.MySQL.Database == ""):
		return fmt.Errorf("output.mysql requires host and database")
	}
	return nil
}
