package server

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"ridehail/internal/models"
	"ridehail/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// Response is the envelope of every successful reply.
type Response struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

const (
	maxPaginationLimit           = 100
	defaultConversationPageLimit = 20
	defaultMessagePageLimit      = 50
)

// parsePagination extracts limit and offset query parameters with the given
// default limit. Unparseable values fall back to the defaults.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

func (p Pagination) page() repository.Page {
	return repository.Page{Limit: p.Limit, Offset: p.Offset}
}

// parseBoolQuery reads an optional boolean flag. Absent yields nil; anything
// other than true|false|1|0 writes a 400 and returns errResponseWritten.
func parseBoolQuery(c *fiber.Ctx, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	var v bool
	switch strings.ToLower(raw) {
	case "true", "1":
		v = true
	case "false", "0":
		v = false
	default:
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(key+" must be true or false"))
		return nil, errResponseWritten
	}
	return &v, nil
}

// parseTimeQuery reads an optional RFC3339 timestamp.
func parseTimeQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(key+" must be an RFC3339 timestamp"))
		return nil, errResponseWritten
	}
	t = t.UTC()
	return &t, nil
}

// parseID extracts a route parameter by name. Ids are opaque; only blank
// values are rejected.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (string, error) {
	id := strings.TrimSpace(c.Params(param))
	if id == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return "", errResponseWritten
	}
	return id, nil
}

// parseBody decodes the JSON body into dest and writes a 400 on failure.
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// callerID returns the authenticated user id set by the auth middleware.
func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

// respondError maps err onto its HTTP status and writes the failure body.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusFor(err), err)
}

func respondOK(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(Response{Success: true, Data: data, Message: message})
}

func respondPage(c *fiber.Ctx, data any, p Pagination, total int64) error {
	p.Total = total
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Data: data, Pagination: &p})
}
