package controllers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/booking"
	"github.com/closerdesk/closerdesk/internal/pkg/calendar"
	"github.com/closerdesk/closerdesk/internal/pkg/database"
	"github.com/closerdesk/closerdesk/internal/pkg/hcaptcha"
	"github.com/closerdesk/closerdesk/internal/pkg/importer"
	"github.com/closerdesk/closerdesk/internal/pkg/intake"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
	"github.com/closerdesk/closerdesk/internal/pkg/scheduling"
	"github.com/closerdesk/closerdesk/internal/pkg/statistics"
	"github.com/closerdesk/closerdesk/internal/pkg/webhook"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	status int
	code   string
}

// domainErrors maps sentinel errors to HTTP status and a stable error code.
var domainErrors = []struct {
	err error
	errorMapping
}{
	{gorm.ErrRecordNotFound, errorMapping{fiber.StatusNotFound, "not_found"}},
	{booking.ErrNotFound, errorMapping{fiber.StatusNotFound, "not_found"}},
	{booking.ErrLeadNotFound, errorMapping{fiber.StatusNotFound, "lead_not_found"}},
	{booking.ErrCloserNotFound, errorMapping{fiber.StatusNotFound, "closer_not_found"}},
	{intake.ErrLeadNotFound, errorMapping{fiber.StatusNotFound, "lead_not_found"}},
	{intake.ErrEventNotFound, errorMapping{fiber.StatusNotFound, "event_not_found"}},
	{ledger.ErrNotFound, errorMapping{fiber.StatusNotFound, "not_found"}},
	{ledger.ErrStudentNotFound, errorMapping{fiber.StatusNotFound, "student_not_found"}},
	{ledger.ErrProgramNotFound, errorMapping{fiber.StatusNotFound, "program_not_found"}},
	{statistics.ErrCloserNotFound, errorMapping{fiber.StatusNotFound, "closer_not_found"}},
	{webhook.ErrIntegrationNotFound, errorMapping{fiber.StatusNotFound, "integration_not_found"}},
	{auth.ErrUserNotFound, errorMapping{fiber.StatusNotFound, "user_not_found"}},
	{calendar.ErrNotLinked, errorMapping{fiber.StatusNotFound, "calendar_not_linked"}},

	{booking.ErrSlotTaken, errorMapping{fiber.StatusConflict, "slot_taken"}},
	{intake.ErrSlotUnavailable, errorMapping{fiber.StatusConflict, "slot_unavailable"}},
	{intake.ErrEmailInUse, errorMapping{fiber.StatusConflict, "email_in_use"}},
	{ledger.ErrProgramInUse, errorMapping{fiber.StatusConflict, "program_in_use"}},
	{booking.ErrInvalidTransition, errorMapping{fiber.StatusConflict, "invalid_transition"}},
	{auth.ErrNotImpersonating, errorMapping{fiber.StatusConflict, "not_impersonating"}},

	{ledger.ErrInsufficientAmount, errorMapping{fiber.StatusUnprocessableEntity, "insufficient_amount"}},
	{ledger.ErrRenewalNotAllowed, errorMapping{fiber.StatusUnprocessableEntity, "renewal_not_allowed"}},
	{ledger.ErrInvalidPayment, errorMapping{fiber.StatusUnprocessableEntity, "invalid_payment"}},
	{ledger.ErrInvalidEnrollment, errorMapping{fiber.StatusUnprocessableEntity, "invalid_enrollment"}},
	{booking.ErrInvalidStatus, errorMapping{fiber.StatusUnprocessableEntity, "invalid_status"}},
	{intake.ErrUnknownQuestion, errorMapping{fiber.StatusUnprocessableEntity, "unknown_question"}},
	{intake.ErrMissingAnswer, errorMapping{fiber.StatusUnprocessableEntity, "missing_answer"}},
	{intake.ErrInvalidAnswer, errorMapping{fiber.StatusUnprocessableEntity, "invalid_answer"}},
	{intake.ErrInvalidTimezone, errorMapping{fiber.StatusUnprocessableEntity, "invalid_timezone"}},
	{statistics.ErrInvalidRange, errorMapping{fiber.StatusUnprocessableEntity, "invalid_range"}},
	{scheduling.ErrInvalidRange, errorMapping{fiber.StatusUnprocessableEntity, "invalid_range"}},
	{scheduling.ErrRangeTooWide, errorMapping{fiber.StatusUnprocessableEntity, "range_too_wide"}},
	{importer.ErrUnsupportedFile, errorMapping{fiber.StatusUnprocessableEntity, "unsupported_file"}},
	{importer.ErrEmptyFile, errorMapping{fiber.StatusUnprocessableEntity, "empty_file"}},
	{importer.ErrUnknownKind, errorMapping{fiber.StatusUnprocessableEntity, "unknown_kind"}},
	{importer.ErrMissingFields, errorMapping{fiber.StatusUnprocessableEntity, "missing_fields"}},
	{importer.ErrInvalidResolution, errorMapping{fiber.StatusUnprocessableEntity, "invalid_resolution"}},
	{errQuestionScope, errorMapping{fiber.StatusUnprocessableEntity, "invalid_scope"}},
	{errUnknownRelated, errorMapping{fiber.StatusUnprocessableEntity, "unknown_reference"}},

	{auth.ErrInvalidCredentials, errorMapping{fiber.StatusUnauthorized, "invalid_credentials"}},
	{auth.ErrInvalidToken, errorMapping{fiber.StatusUnauthorized, "unauthorized"}},
	{auth.ErrTokenRevoked, errorMapping{fiber.StatusUnauthorized, "unauthorized"}},
	{auth.ErrInactive, errorMapping{fiber.StatusForbidden, "inactive"}},
	{auth.ErrNotStaff, errorMapping{fiber.StatusForbidden, "forbidden"}},
	{auth.ErrForbidden, errorMapping{fiber.StatusForbidden, "forbidden"}},
	{hcaptcha.ErrMissingToken, errorMapping{fiber.StatusForbidden, "captcha_required"}},
	{hcaptcha.ErrRejected, errorMapping{fiber.StatusForbidden, "captcha_failed"}},

	{calendar.ErrNotConfigured, errorMapping{fiber.StatusServiceUnavailable, "calendar_not_configured"}},
}

// respondError writes the JSON error for err. Unknown errors are logged and hidden.
func respondError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return validationFailed(c, verrs)
	}
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return jsonError(c, ferr.Code, "bad_request", ferr.Message)
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return jsonError(c, m.status, m.code, err.Error())
		}
	}
	if database.IsDuplicateKey(err) {
		return jsonError(c, fiber.StatusConflict, "duplicate", "a record with the same unique value already exists")
	}
	if database.IsForeignKeyViolation(err) {
		return jsonError(c, fiber.StatusConflict, "in_use", "the record is still referenced")
	}
	log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Something went wrong")
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return jsonError(c, fiber.StatusBadRequest, "bad_request", message)
}

func validationFailed(c *fiber.Ctx, verrs validator.ValidationErrors) error {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonFieldName(fe)] = fe.Tag()
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "validation_failed",
		"message": "Invalid input",
		"fields":  fields,
	})
}

// jsonFieldName drops the root struct from the namespace, "saleRequest.payment_type"
// becomes "payment_type".
func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

// bindJSON parses the body into dst and runs its validate tags.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	return validate.Struct(dst)
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// queryUint returns nil for an absent parameter.
func queryUint(c *fiber.Ctx, name string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	id := uint(v)
	return &id, nil
}

// parseTimeParam accepts RFC3339 or a YYYY-MM-DD date (midnight UTC).
func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

// queryRange reads [from, to) from the query. A date-only "to" is inclusive, so it
// is moved to the following midnight. Missing bounds fall back to the defaults.
func queryRange(c *fiber.Ctx, fromKey, toKey string, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from, to := defFrom, defTo
	if raw := c.Query(fromKey); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "invalid "+fromKey)
		}
		from = t
	}
	if raw := c.Query(toKey); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "invalid "+toKey)
		}
		if len(strings.TrimSpace(raw)) == len("2006-01-02") {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	return from, to, nil
}

// monthRange is the current UTC calendar month.
func monthRange(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func pagination(c *fiber.Ctx) (int, int) {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
