package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-council/internal/domain"
)

// fileView is the client-facing shape of an uploaded file.
type fileView struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	IsImage     bool   `json:"is_image"`
	CreatedAt   string `json:"created_at"`
}

func newFileView(f domain.ConversationFile) fileView {
	return fileView{
		ID:          f.ID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		IsImage:     f.IsImage,
		CreatedAt:   f.CreatedAt,
	}
}

func (s *Server) uploadFiles(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")
	if _, err := s.Store.Get(ctx, convID); err != nil {
		s.fail(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			detail(c, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		detail(c, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		detail(c, http.StatusBadRequest, "No files provided")
		return
	}

	views := make([]fileView, 0, len(headers))
	for _, h := range headers {
		data, err := readPart(h)
		if err != nil {
			detail(c, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", h.Filename))
			return
		}
		contentType := h.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		f, err := s.Files.Save(ctx, convID, h.Filename, contentType, data)
		if err != nil {
			s.fail(c, err)
			return
		}
		views = append(views, newFileView(f))
	}
	c.JSON(http.StatusOK, views)
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	r, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *Server) listFiles(c *gin.Context) {
	files, err := s.Files.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]fileView, 0, len(files))
	for _, f := range files {
		views = append(views, newFileView(f))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) deleteFile(c *gin.Context) {
	if err := s.Files.Delete(c.Request.Context(), c.Param("id"), c.Param("file_id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) downloadFile(c *gin.Context) {
	f, err := s.Files.Open(c.Request.Context(), c.Param("id"), c.Param("file_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Type", f.ContentType)
	c.File(f.StoragePath)
}
