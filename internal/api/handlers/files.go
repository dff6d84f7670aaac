// files.go — отдача результатов конвертации из области converted.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/converter-module/internal/api/errors"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
)

// FilesHandler — обработчик скачивания результатов.
type FilesHandler struct {
	converted *filestore.FileStore
	logger    *slog.Logger
}

// NewFilesHandler создаёт обработчик скачивания.
func NewFilesHandler(converted *filestore.FileStore, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		converted: converted,
		logger:    logger.With(slog.String("component", "files_handler")),
	}
}

// Download обрабатывает GET /api/v1/files/{name}.
// Content-Type определяется по содержимому, имя для сохранения —
// исходное имя без служебного префикса. Range и If-Modified-Since
// обрабатывает http.ServeContent.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var inline *bool
	if err := runtime.BindQueryParameter("form", true, false, "inline", r.URL.Query(), &inline); err != nil {
		apierrors.ValidationError(w, "invalid parameter inline: "+err.Error())
		return
	}

	// Скрытые и служебные файлы области не отдаются
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, filestore.TmpSuffix) {
		apierrors.NotFound(w, "file "+name+" not found")
		return
	}

	file, err := h.converted.Open(name)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			apierrors.NotFound(w, "file "+name+" not found")
			return
		}
		h.logger.Error("Ошибка открытия результата",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "failed to open file")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		apierrors.NotFound(w, "file "+name+" not found")
		return
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		h.logger.Error("Ошибка определения типа содержимого",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "failed to read file")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		apierrors.InternalError(w, "failed to read file")
		return
	}

	disposition := "attachment"
	if inline != nil && *inline {
		disposition = "inline"
	}
	downloadName := filestore.OriginalName(name)

	w.Header().Set("Content-Type", mtype.String())
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": downloadName}))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, downloadName, stat.ModTime(), file)

	h.logger.Debug("Результат скачан",
		slog.String("name", name),
		slog.String("content_type", mtype.String()),
		slog.Int64("size", stat.Size()),
	)
}
