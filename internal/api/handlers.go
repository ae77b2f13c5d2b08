package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/artifact"
	"github.com/rmitchellscott/nixpdf/internal/dispatch"
	"github.com/rmitchellscott/nixpdf/internal/jobs"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/upload"
	"github.com/rmitchellscott/nixpdf/internal/version"
	"github.com/rmitchellscott/nixpdf/internal/workspace"
)

// multipartOverhead is headroom for boundaries and text fields on top of
// MaxFiles * MaxFileSize.
const multipartOverhead = 1 << 20

// OperationHandler receives the upload, runs the named operation and
// streams the result. On failure every file the request created is removed
// before the error is written; on success, after the download.
func (s *Server) OperationHandler(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := uuid.NewString()
		c.Header("X-Request-ID", id)
		s.jobs.Create(id, name)

		scope := workspace.NewScope(s.cfg.TempDir)
		defer scope.Release(ctx)
		defer func() {
			if r := recover(); r != nil {
				s.jobs.Finish(id, jobs.StatusError, "Internal server error")
				panic(r)
			}
		}()

		limit := int64(s.cfg.MaxFiles)*s.cfg.MaxFileSize + multipartOverhead
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

		form, err := s.receiver.Receive(c.Request, scope)
		if err != nil {
			s.fail(c, id, name, scope, err)
			return
		}

		art, err := s.run(ctx, name, &dispatch.Request{
			Files:  form.Files,
			Params: dispatch.Params(form.Fields),
			Scope:  scope,
		})
		if err != nil {
			s.fail(c, id, name, scope, err)
			return
		}

		if err := deliver(c, art, scope); err != nil {
			s.fail(c, id, name, scope, err)
			return
		}
		s.jobs.Finish(id, jobs.StatusSuccess, "")
	}
}

// run holds an operation slot for the duration of the transformation.
func (s *Server) run(ctx context.Context, name string, req *dispatch.Request) (*artifact.Artifact, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, apperr.Internal("Request cancelled", err)
	}
	defer s.release()
	return s.dispatcher.Run(ctx, name, req)
}

// deliver writes an inline payload as JSON, or streams a verified file as an
// attachment.
func deliver(c *gin.Context, art *artifact.Artifact, scope *workspace.Scope) error {
	if art.Kind == artifact.KindInline {
		c.JSON(http.StatusOK, art.Payload)
		return nil
	}
	path, err := art.Materialize(scope)
	if err != nil {
		return apperr.Internal("Failed to prepare download", err)
	}
	c.Header("Content-Type", art.ContentType())
	c.FileAttachment(path, art.Filename)
	return nil
}

func (s *Server) fail(c *gin.Context, id, op string, scope *workspace.Scope, err error) {
	scope.Release(c.Request.Context())
	e := apperr.From(err, "")
	fields := logrus.Fields{"operation": op, "request_id": id, "code": e.Code}
	if e.Kind == apperr.KindValidation {
		logging.WithFields(fields).Warnf("rejected: %s", e.Message)
	} else {
		logging.WithFields(fields).Errorf("failed: %v", err)
	}
	s.jobs.Finish(id, jobs.StatusError, e.Message)
	c.JSON(e.Status(), gin.H{"error": e.Message, "code": e.Code})
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version.Get().Version,
		"running":   len(s.jobs.Running()),
	})
}

// ConfigHandler returns the limits a client should apply before uploading.
func (s *Server) ConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"apiUrl":             "/api/",
		"maxFileSize":        s.cfg.MaxFileSize,
		"maxFileSizeHuman":   humanize.IBytes(uint64(s.cfg.MaxFileSize)),
		"maxFiles":           s.cfg.MaxFiles,
		"allowedTypes":       upload.AllowedTypes,
		"maxConcurrent":      s.cfg.MaxConcurrent,
		"rateLimitPerMinute": s.cfg.RateLimitPerMinute,
		"rasterDpi":          s.cfg.RasterDPI,
	})
}

type toolEntry struct {
	*dispatch.Operation
	Title    string `json:"title"`
	Endpoint string `json:"endpoint"`
}

var acronyms = strings.NewReplacer("Pdf", "PDF", "Ocr", "OCR", "Ppt", "PPT")

// ToolsHandler lists the operations in catalog order.
func (s *Server) ToolsHandler(c *gin.Context) {
	titleCaser := cases.Title(language.English)
	ops := s.dispatcher.Operations()
	out := make([]toolEntry, 0, len(ops))
	for _, op := range ops {
		out = append(out, toolEntry{
			Operation: op,
			Title:     acronyms.Replace(titleCaser.String(strings.ReplaceAll(op.Name, "-", " "))),
			Endpoint:  "/api/" + op.Name,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}

// StatusHandler returns the state of a recent request by its X-Request-ID.
func (s *Server) StatusHandler(c *gin.Context) {
	if job, ok := s.jobs.Get(c.Param("id")); ok {
		c.JSON(http.StatusOK, job)
	} else {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	}
}
