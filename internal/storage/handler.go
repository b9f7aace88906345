package storage

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"restbase/internal/cell"
	"restbase/internal/engine"
	"restbase/internal/store"
)

type Handler struct {
	store *store.Store
	local *LocalStorage
}

func NewHandler(s *store.Store, local *LocalStorage) *Handler {
	return &Handler{store: s, local: local}
}

// RegisterStorageRoutes mounts the file API. Uploads and deletes require an
// authenticated caller; downloads are open by unique name.
func RegisterStorageRoutes(app *fiber.App, h *Handler, authMiddleware fiber.Handler, requireIdentity fiber.Handler) {
	g := app.Group("/api/_storage", authMiddleware)
	g.Post("/", requireIdentity, h.Upload)
	g.Get("/:uniqueName", h.Download)
	g.Delete("/:uniqueName", requireIdentity, h.Delete)
}

type fileRecord struct {
	ID         int64  `json:"id"`
	FileName   string `json:"file_name"`
	UniqueName string `json:"unique_name"`
	UploadedBy int64  `json:"uploaded_by"`
}

func (h *Handler) Upload(c *fiber.Ctx) error {
	ident := engine.GetIdentity(c)
	if ident == nil {
		return engine.UnauthorizedError("authentication required")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return engine.BindFault("multipart field \"file\" is required")
	}

	src, err := fh.Open()
	if err != nil {
		return engine.BindFault("unreadable upload")
	}
	defer src.Close()

	uniqueName := uuid.NewString()
	if err := h.local.Save(c.Context(), uniqueName, fh.Size, src); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return engine.NewAppError("FILE_TOO_LARGE", fiber.StatusRequestEntityTooLarge, err.Error())
		}
		return engine.ExecutionFault(err)
	}

	_, err = h.store.Exec(c.Context(),
		"INSERT INTO storage(file_name, unique_name, uploaded_by) VALUES (?, ?, ?)",
		[]cell.Cell{cell.Str(fh.Filename), cell.Str(uniqueName), cell.Int(ident.ID)})
	if err != nil {
		// Orphaned records are worse than orphaned files.
		_ = h.local.Delete(c.Context(), uniqueName)
		return engine.ExecutionFault(err)
	}

	row, err := h.store.QueryOne(c.Context(),
		"SELECT id, file_name, unique_name, uploaded_by FROM storage WHERE unique_name=?",
		[]cell.Cell{cell.Str(uniqueName)})
	if err != nil {
		return engine.ExecutionFault(err)
	}
	return c.Status(fiber.StatusCreated).JSON(recordFromRow(row))
}

func (h *Handler) Download(c *fiber.Ctx) error {
	uniqueName := c.Params("uniqueName")
	row, err := h.store.QueryOne(c.Context(),
		"SELECT id, file_name, unique_name, uploaded_by FROM storage WHERE unique_name=?",
		[]cell.Cell{cell.Str(uniqueName)})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound, "no such file")
		}
		return engine.ExecutionFault(err)
	}
	rec := recordFromRow(row)

	f, err := h.local.Open(c.Context(), rec.UniqueName)
	if err != nil {
		return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound, "no such file")
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+rec.FileName+`"`)
	// fasthttp drains and closes the stream after the response is written.
	return c.SendStream(f)
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	ident := engine.GetIdentity(c)
	if ident == nil {
		return engine.UnauthorizedError("authentication required")
	}

	uniqueName := c.Params("uniqueName")
	row, err := h.store.QueryOne(c.Context(),
		"SELECT uploaded_by FROM storage WHERE unique_name=?",
		[]cell.Cell{cell.Str(uniqueName)})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound, "no such file")
		}
		return engine.ExecutionFault(err)
	}
	if row["uploaded_by"].Int64() != ident.ID {
		return engine.ForbiddenError("not the uploader")
	}

	if _, err := h.store.Exec(c.Context(),
		"DELETE FROM storage WHERE unique_name=?",
		[]cell.Cell{cell.Str(uniqueName)}); err != nil {
		return engine.ExecutionFault(err)
	}
	if err := h.local.Delete(c.Context(), uniqueName); err != nil {
		return engine.ExecutionFault(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func recordFromRow(r cell.Row) fileRecord {
	return fileRecord{
		ID:         r["id"].Int64(),
		FileName:   r["file_name"].Text(),
		UniqueName: r["unique_name"].Text(),
		UploadedBy: r["uploaded_by"].Int64(),
	}
}
