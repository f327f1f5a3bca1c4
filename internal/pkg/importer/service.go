// Package importer loads leads and sales from CSV or XLSX spreadsheets in two steps:
// Validate reports what would fail, Execute writes the rows one by one.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/intake"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
)

var (
	ErrMissingFields     = errors.New("required columns are missing")
	ErrInvalidResolution = errors.New("invalid resolution")
)

const (
	ActionMap    = "map"
	ActionCreate = "create"
	ActionSkip   = "skip"
)

const (
	previewRows     = 10
	maxStoredErrors = 200
)

// LeadImporter upserts a lead from a row; *intake.Service implements it.
type LeadImporter interface {
	ImportLead(ctx context.Context, in intake.LeadInput, closerID, eventID *uint) (*intake.Result, error)
}

// SaleRegistrar records a sale; *ledger.Service implements it.
type SaleRegistrar interface {
	RegisterSale(ctx context.Context, in ledger.SaleInput) (*ledger.SaleResult, error)
}

// Archiver keeps a copy of the uploaded file for a batch.
type Archiver interface {
	Archive(ctx context.Context, batch *models.ImportBatch, u Upload) error
}

type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Report is the outcome of Validate.
type Report struct {
	Kind          string              `json:"kind"`
	Headers       []string            `json:"headers"`
	Fields        []Field             `json:"fields"`
	TotalRows     int                 `json:"total_rows"`
	MissingFields []string            `json:"missing_fields"`
	RowErrors     []RowError          `json:"row_errors"`
	Unresolved    map[string][]string `json:"unresolved"`
	Preview       []map[string]string `json:"preview"`
}

// Valid reports whether Execute would run without structural problems.
func (r *Report) Valid() bool {
	return len(r.MissingFields) == 0 && len(r.Unresolved) == 0 && len(r.RowErrors) == 0
}

// Resolution tells Execute what to do with an unmatched reference value.
type Resolution struct {
	Action string `json:"action" validate:"oneof=map create skip"`
	ID     uint   `json:"id"`
}

// Resolutions is keyed by reference kind, then by the lower-cased value.
type Resolutions map[string]map[string]Resolution

func (r Resolutions) lookup(ref, value string) (Resolution, bool) {
	byValue, ok := r[ref]
	if !ok {
		return Resolution{}, false
	}
	res, ok := byValue[refKey(value)]
	return res, ok
}

type ValidateInput struct {
	Upload  Upload
	Kind    string
	Mapping Mapping
}

type ExecuteInput struct {
	Upload      Upload
	Kind        string
	Mapping     Mapping
	Resolutions Resolutions
	CreatedBy   uint
}

type ExecuteResult struct {
	Batch   models.ImportBatch `json:"batch"`
	Skipped int                `json:"skipped_rows"`
	Errors  []RowError         `json:"errors"`
}

type Option func(*Service)

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archiver = a } }

type Service struct {
	repo     Repository
	leads    LeadImporter
	sales    SaleRegistrar
	archiver Archiver
	now      func() time.Time
}

func NewService(repo Repository, leads LeadImporter, sales SaleRegistrar, opts ...Option) *Service {
	s := &Service{repo: repo, leads: leads, sales: sales, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromDB(db *gorm.DB, leads LeadImporter, sales SaleRegistrar, opts ...Option) *Service {
	return NewService(NewRepository(db), leads, sales, opts...)
}

// Validate parses the upload and checks it without writing anything.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (*Report, error) {
	fields, err := Fields(in.Kind)
	if err != nil {
		return nil, err
	}
	table, err := ReadTable(in.Upload)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Kind:          in.Kind,
		Headers:       table.Headers,
		Fields:        fields,
		TotalRows:     len(table.Rows),
		MissingFields: missingFields(table, fields, in.Mapping),
		Unresolved:    map[string][]string{},
	}

	seen := map[string]map[string]bool{}
	for i, row := range table.Rows {
		values := rowValues(table, fields, in.Mapping, row)
		if len(report.Preview) < previewRows {
			report.Preview = append(report.Preview, values)
		}
		if len(report.MissingFields) == 0 {
			report.RowErrors = append(report.RowErrors, checkRow(i+2, in.Kind, fields, values)...)
		}

		for _, f := range fields {
			v := values[f.Name]
			if f.Ref == "" || v == "" {
				continue
			}
			key := refKey(v)
			if seen[f.Ref] == nil {
				seen[f.Ref] = map[string]bool{}
			}
			if seen[f.Ref][key] {
				continue
			}
			seen[f.Ref][key] = true

			id, err := s.findRef(ctx, f.Ref, v)
			if err != nil {
				return nil, err
			}
			if id == nil {
				report.Unresolved[f.Ref] = append(report.Unresolved[f.Ref], v)
			}
		}
	}
	for ref := range report.Unresolved {
		sort.Strings(report.Unresolved[ref])
	}
	return report, nil
}

// Execute writes every row on its own. A failing row is recorded and the rest go on.
// Rows whose reference was resolved with skip are counted but not written.
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (*ExecuteResult, error) {
	fields, err := Fields(in.Kind)
	if err != nil {
		return nil, err
	}
	table, err := ReadTable(in.Upload)
	if err != nil {
		return nil, err
	}
	if missing := missingFields(table, fields, in.Mapping); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	if err := s.checkResolutions(ctx, in.Resolutions); err != nil {
		return nil, err
	}

	res := &ExecuteResult{}
	refs := newRefCache(s, in.Resolutions)
	imported := 0

	for i, row := range table.Rows {
		rowNum := i + 2
		values := rowValues(table, fields, in.Mapping, row)
		if errs := checkRow(rowNum, in.Kind, fields, values); len(errs) > 0 {
			res.Errors = append(res.Errors, errs...)
			continue
		}

		var rowErr *RowError
		var skipped bool
		switch in.Kind {
		case models.IMPORT_KIND_LEADS:
			skipped, rowErr = s.importLeadRow(ctx, refs, rowNum, values)
		case models.IMPORT_KIND_SALES:
			skipped, rowErr = s.importSaleRow(ctx, refs, rowNum, values)
		}
		switch {
		case rowErr != nil:
			res.Errors = append(res.Errors, *rowErr)
		case skipped:
			res.Skipped++
		default:
			imported++
		}
	}

	stored := res.Errors
	if len(stored) > maxStoredErrors {
		stored = stored[:maxStoredErrors]
	}
	errorsJSON, _ := json.Marshal(stored)

	res.Batch = models.ImportBatch{
		Kind:         in.Kind,
		Filename:     in.Upload.Name,
		TotalRows:    len(table.Rows),
		ImportedRows: imported,
		FailedRows:   len(res.Errors),
		Errors:       errorsJSON,
		CreatedBy:    in.CreatedBy,
	}
	if err := s.repo.CreateBatch(ctx, &res.Batch); err != nil {
		return nil, fmt.Errorf("importer: save batch: %w", err)
	}
	log.Infof("[Importer] Batch %d (%s): %d imported, %d failed, %d skipped",
		res.Batch.ID, in.Kind, imported, len(res.Errors), res.Skipped)

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, &res.Batch, in.Upload); err != nil {
			log.Warnf("[Importer] Could not archive batch %d: %v", res.Batch.ID, err)
		}
	}
	return res, nil
}

func (s *Service) Batches(ctx context.Context, limit int) ([]models.ImportBatch, error) {
	return s.repo.ListBatches(ctx, limit)
}

func (s *Service) importLeadRow(ctx context.Context, refs *refCache, row int, v map[string]string) (bool, *RowError) {
	closerID, skip, err := refs.resolve(ctx, RefCloser, v["closer_email"], v)
	if err != nil {
		return false, &RowError{Row: row, Field: "closer_email", Message: err.Error()}
	}
	if skip {
		return true, nil
	}
	eventID, skip, err := refs.resolve(ctx, RefEvent, v["event"], v)
	if err != nil {
		return false, &RowError{Row: row, Field: "event", Message: err.Error()}
	}
	if skip {
		return true, nil
	}

	_, err = s.leads.ImportLead(ctx, intake.LeadInput{
		Name:        v["name"],
		Email:       v["email"],
		Phone:       v["phone"],
		Country:     v["country"],
		Timezone:    v["timezone"],
		UTMSource:   v["utm_source"],
		UTMMedium:   v["utm_medium"],
		UTMCampaign: v["utm_campaign"],
	}, closerID, eventID)
	if err != nil {
		return false, &RowError{Row: row, Message: err.Error()}
	}
	return false, nil
}

func (s *Service) importSaleRow(ctx context.Context, refs *refCache, row int, v map[string]string) (bool, *RowError) {
	programID, skip, err := refs.resolve(ctx, RefProgram, v["program"], v)
	if err != nil {
		return false, &RowError{Row: row, Field: "program", Message: err.Error()}
	}
	if skip {
		return true, nil
	}
	methodID, skip, err := refs.resolve(ctx, RefPaymentMethod, v["payment_method"], v)
	if err != nil {
		return false, &RowError{Row: row, Field: "payment_method", Message: err.Error()}
	}
	if skip {
		return true, nil
	}
	closerID, skip, err := refs.resolve(ctx, RefCloser, v["closer_email"], v)
	if err != nil {
		return false, &RowError{Row: row, Field: "closer_email", Message: err.Error()}
	}
	if skip {
		return true, nil
	}

	name := v["name"]
	if name == "" {
		name = nameFromEmail(v["email"])
	}
	student, err := s.leads.ImportLead(ctx, intake.LeadInput{Name: name, Email: v["email"]}, closerID, nil)
	if err != nil {
		return false, &RowError{Row: row, Field: "email", Message: err.Error()}
	}

	// checkRow already parsed these.
	amount, _ := parseAmount(v["amount"])
	in := ledger.SaleInput{
		StudentID:       student.Lead.ID,
		ProgramID:       *programID,
		Amount:          amount,
		PaymentType:     valueOr(v["payment_type"], models.PAYMENT_FULL),
		Status:          valueOr(v["status"], models.PAYMENT_STATUS_COMPLETED),
		PaymentMethodID: methodID,
		CloserID:        closerID,
		Reference:       v["reference"],
	}
	if v["paid_at"] != "" {
		in.PaidAt, _ = parseDate(v["paid_at"])
	}
	if v["total_agreed"] != "" {
		agreed, _ := parseAmount(v["total_agreed"])
		in.TotalAgreed = &agreed
	}
	if _, err := s.sales.RegisterSale(ctx, in); err != nil {
		return false, &RowError{Row: row, Message: err.Error()}
	}
	return false, nil
}

func (s *Service) findRef(ctx context.Context, ref, value string) (*uint, error) {
	switch ref {
	case RefProgram:
		p, err := s.repo.FindProgramByName(ctx, value)
		if err != nil || p == nil {
			return nil, err
		}
		return &p.ID, nil
	case RefPaymentMethod:
		m, err := s.repo.FindPaymentMethodByName(ctx, value)
		if err != nil || m == nil {
			return nil, err
		}
		return &m.ID, nil
	case RefEvent:
		e, err := s.repo.FindEventByName(ctx, value)
		if err != nil || e == nil {
			return nil, err
		}
		return &e.ID, nil
	case RefCloser:
		u, err := s.repo.FindCloserByEmail(ctx, value)
		if err != nil || u == nil {
			return nil, err
		}
		return &u.ID, nil
	}
	return nil, fmt.Errorf("importer: unknown reference %q", ref)
}

func (s *Service) checkResolutions(ctx context.Context, resolutions Resolutions) error {
	for ref, byValue := range resolutions {
		for value, r := range byValue {
			switch r.Action {
			case ActionSkip:
			case ActionCreate:
				if ref == RefCloser {
					return fmt.Errorf("%w: closers cannot be created by an import (%s)", ErrInvalidResolution, value)
				}
			case ActionMap:
				ok, err := s.repo.ReferenceExists(ctx, ref, r.ID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s %d does not exist", ErrInvalidResolution, ref, r.ID)
				}
			default:
				return fmt.Errorf("%w: unknown action %q for %s %q", ErrInvalidResolution, r.Action, ref, value)
			}
		}
	}
	return nil
}

// refCache resolves each distinct reference value once per execution.
type refCache struct {
	svc         *Service
	resolutions Resolutions
	ids         map[string]map[string]*uint
	skips       map[string]map[string]bool
}

func newRefCache(svc *Service, resolutions Resolutions) *refCache {
	return &refCache{
		svc:         svc,
		resolutions: resolutions,
		ids:         map[string]map[string]*uint{},
		skips:       map[string]map[string]bool{},
	}
}

// resolve returns the id for value; an empty value resolves to nil. Existing records
// win over resolutions, which only apply to values that matched nothing.
func (c *refCache) resolve(ctx context.Context, ref, value string, row map[string]string) (*uint, bool, error) {
	if strings.TrimSpace(value) == "" {
		return nil, false, nil
	}
	key := refKey(value)
	if id, ok := c.ids[ref][key]; ok {
		return id, false, nil
	}
	if c.skips[ref][key] {
		return nil, true, nil
	}

	id, err := c.svc.findRef(ctx, ref, value)
	if err != nil {
		return nil, false, err
	}
	if id == nil {
		r, ok := c.resolutions.lookup(ref, value)
		if !ok {
			return nil, false, fmt.Errorf("unresolved %s %q", ref, value)
		}
		switch r.Action {
		case ActionSkip:
			if c.skips[ref] == nil {
				c.skips[ref] = map[string]bool{}
			}
			c.skips[ref][key] = true
			return nil, true, nil
		case ActionMap:
			mapped := r.ID
			id = &mapped
		case ActionCreate:
			id, err = c.svc.createRef(ctx, ref, strings.TrimSpace(value), row)
			if err != nil {
				return nil, false, err
			}
		}
	}

	if c.ids[ref] == nil {
		c.ids[ref] = map[string]*uint{}
	}
	c.ids[ref][key] = id
	return id, false, nil
}

func (s *Service) createRef(ctx context.Context, ref, value string, row map[string]string) (*uint, error) {
	switch ref {
	case RefProgram:
		price, err := parseAmount(valueOr(row["total_agreed"], row["amount"]))
		if err != nil {
			price = 0
		}
		p := &models.Program{Name: value, Price: ledger.Round2(price), IsActive: true}
		if err := s.repo.CreateProgram(ctx, p); err != nil {
			return nil, fmt.Errorf("create program %q: %w", value, err)
		}
		log.Infof("[Importer] Created program %d (%s)", p.ID, p.Name)
		return &p.ID, nil
	case RefPaymentMethod:
		m := &models.PaymentMethod{Name: value, IsActive: true}
		if err := s.repo.CreatePaymentMethod(ctx, m); err != nil {
			return nil, fmt.Errorf("create payment method %q: %w", value, err)
		}
		return &m.ID, nil
	case RefEvent:
		e := &models.Event{Name: value, Slug: slugify(value), IsActive: true}
		if e.Slug == "" {
			return nil, fmt.Errorf("event name %q has no usable characters", value)
		}
		if err := s.repo.CreateEvent(ctx, e); err != nil {
			return nil, fmt.Errorf("create event %q: %w", value, err)
		}
		return &e.ID, nil
	}
	return nil, fmt.Errorf("%w: %s cannot be created", ErrInvalidResolution, ref)
}

// checkRow validates the values of one row without touching storage.
func checkRow(row int, kind string, fields []Field, v map[string]string) []RowError {
	var errs []RowError
	for _, f := range fields {
		if f.Required && v[f.Name] == "" {
			errs = append(errs, RowError{Row: row, Field: f.Name, Message: "value is required"})
		}
	}
	if e := v["email"]; e != "" && !strings.Contains(e, "@") {
		errs = append(errs, RowError{Row: row, Field: "email", Message: fmt.Sprintf("invalid email %q", e)})
	}
	if tz := v["timezone"]; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, RowError{Row: row, Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", tz)})
		}
	}
	if kind != models.IMPORT_KIND_SALES {
		return errs
	}

	if a := v["amount"]; a != "" {
		if amount, err := parseAmount(a); err != nil {
			errs = append(errs, RowError{Row: row, Field: "amount", Message: err.Error()})
		} else if amount <= 0 {
			errs = append(errs, RowError{Row: row, Field: "amount", Message: "amount must be positive"})
		}
	}
	if a := v["total_agreed"]; a != "" {
		if _, err := parseAmount(a); err != nil {
			errs = append(errs, RowError{Row: row, Field: "total_agreed", Message: err.Error()})
		}
	}
	if d := v["paid_at"]; d != "" {
		if _, err := parseDate(d); err != nil {
			errs = append(errs, RowError{Row: row, Field: "paid_at", Message: err.Error()})
		}
	}
	if t := v["payment_type"]; t != "" && !models.IsPaymentType(t) {
		errs = append(errs, RowError{Row: row, Field: "payment_type", Message: fmt.Sprintf("unknown payment type %q", t)})
	}
	switch v["status"] {
	case "", models.PAYMENT_STATUS_COMPLETED, models.PAYMENT_STATUS_PENDING, models.PAYMENT_STATUS_FAILED:
	default:
		errs = append(errs, RowError{Row: row, Field: "status", Message: fmt.Sprintf("unknown payment status %q", v["status"])})
	}
	return errs
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if len(local) < 2 {
		return email
	}
	return local
}
