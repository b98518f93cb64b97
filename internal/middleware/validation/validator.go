package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/storage/models"
)

const (
	// QueryLocal holds the sanitized query text for the query handler.
	QueryLocal = "sanitized_query"

	UploadField = "files"
)

type Config struct {
	MaxQueryLength      int
	MaxFileSize         int64
	AllowedExtensions   []string
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 25 * 1024 * 1024
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = models.DefaultUploadExtensions
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" && !allowedContentType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/query") {
			var req struct {
				Query string `json:"query"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			query := sanitizeString(req.Query)
			if len(query) > cfg.MaxQueryLength {
				cfg.Logger.Warn("Query too long",
					zap.String("ip", c.IP()),
					zap.Int("length", len(query)),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query exceeds maximum length",
				})
			}

			c.Locals(QueryLocal, query)
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/documents/upload") {
			form, err := c.MultipartForm()
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Expected multipart form data",
				})
			}

			files := form.File[UploadField]
			if len(files) == 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "No files provided",
				})
			}

			for _, fh := range files {
				if !models.AllowedExtension(fh.Filename, cfg.AllowedExtensions) {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error":    "Unsupported file type",
						"filename": fh.Filename,
						"allowed":  cfg.AllowedExtensions,
					})
				}
				if fh.Size > cfg.MaxFileSize {
					return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
						"error":    "File exceeds maximum size",
						"filename": fh.Filename,
					})
				}
			}
		}

		return c.Next()
	}
}

func allowedContentType(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
