package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"conversationId", "conversation ID"},
		{"messageStatusId", "message status ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 20)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		name   string
		query  string
		limit  float64
		offset float64
	}{
		{"defaults", "", 20, 0},
		{"custom", "?limit=10&offset=30", 10, 30},
		{"limit clamped", "?limit=500", 100, 0},
		{"zero limit falls back", "?limit=0", 20, 0},
		{"negative offset", "?offset=-5", 20, 0},
		{"garbage falls back", "?limit=abc&offset=xyz", 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

func TestParseBoolQuery(t *testing.T) {
	app := fiber.New()
	app.Get("/flags", func(c *fiber.Ctx) error {
		v, err := parseBoolQuery(c, "isArchived")
		if err != nil {
			return nil
		}
		if v == nil {
			return c.SendString("unset")
		}
		if *v {
			return c.SendString("true")
		}
		return c.SendString("false")
	})

	tests := []struct {
		query  string
		status int
		body   string
	}{
		{"", http.StatusOK, "unset"},
		{"?isArchived=true", http.StatusOK, "true"},
		{"?isArchived=1", http.StatusOK, "true"},
		{"?isArchived=FALSE", http.StatusOK, "false"},
		{"?isArchived=0", http.StatusOK, "false"},
		{"?isArchived=yes", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/flags"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(body))
			}
		})
	}
}

func TestParseTimeQuery(t *testing.T) {
	app := fiber.New()
	app.Get("/history", func(c *fiber.Ctx) error {
		v, err := parseTimeQuery(c, "before")
		if err != nil {
			return nil
		}
		if v == nil {
			return c.SendString("unset")
		}
		return c.SendString(v.Format("2006-01-02T15:04:05Z07:00"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/history?before=2024-05-01T10:00:00%2B02:00", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T08:00:00Z", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/history?before=yesterday", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
