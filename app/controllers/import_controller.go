package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/importer"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

// MaxImportSize caps uploaded import files.
const MaxImportSize = 10 << 20

// ImportService is implemented by *importer.Service.
type ImportService interface {
	Validate(ctx context.Context, in importer.ValidateInput) (*importer.Report, error)
	Execute(ctx context.Context, in importer.ExecuteInput) (*importer.ExecuteResult, error)
	Batches(ctx context.Context, limit int) ([]models.ImportBatch, error)
}

// ImportController accepts multipart uploads: "file", "kind" (leads|sales), an
// optional "mapping" JSON object and, for execute, a "resolutions" JSON object.
type ImportController struct {
	imports ImportService
}

func NewImportController(s ImportService) *ImportController {
	return &ImportController{imports: s}
}

func (ic *ImportController) HandleValidate(c *fiber.Ctx) error {
	upload, mapping, err := readImportForm(c)
	if err != nil {
		return respondError(c, err)
	}
	rep, err := ic.imports.Validate(c.UserContext(), importer.ValidateInput{
		Upload:  upload,
		Kind:    c.FormValue("kind"),
		Mapping: mapping,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rep)
}

func (ic *ImportController) HandleExecute(c *fiber.Ctx) error {
	upload, mapping, err := readImportForm(c)
	if err != nil {
		return respondError(c, err)
	}
	var resolutions importer.Resolutions
	if raw := c.FormValue("resolutions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &resolutions); err != nil {
			return badRequest(c, "resolutions must be a JSON object")
		}
	}
	res, err := ic.imports.Execute(c.UserContext(), importer.ExecuteInput{
		Upload:      upload,
		Kind:        c.FormValue("kind"),
		Mapping:     mapping,
		Resolutions: resolutions,
		CreatedBy:   usercontext.GetUserID(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (ic *ImportController) HandleList(c *fiber.Ctx) error {
	limit, _ := pagination(c)
	list, err := ic.imports.Batches(c.UserContext(), limit)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.ImportBatch{}
	}
	return c.JSON(fiber.Map{"imports": list})
}

func readImportForm(c *fiber.Ctx) (importer.Upload, importer.Mapping, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return importer.Upload{}, nil, fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	if fh.Size > MaxImportSize {
		return importer.Upload{}, nil, fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d MB", MaxImportSize>>20))
	}
	f, err := fh.Open()
	if err != nil {
		return importer.Upload{}, nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxImportSize+1))
	if err != nil {
		return importer.Upload{}, nil, err
	}

	var mapping importer.Mapping
	if raw := c.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return importer.Upload{}, nil, fiber.NewError(fiber.StatusBadRequest, "mapping must be a JSON object")
		}
	}
	return importer.Upload{Name: fh.Filename, Data: data}, mapping, nil
}
