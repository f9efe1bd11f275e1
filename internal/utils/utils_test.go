package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetPagination_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/sync/history", nil)

	page, limit := GetPagination(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, limit)
}

func TestGetPagination_ClampsInvalidAndOversizedValues(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"negative page resets to 1", "page=-1&limit=10", 1, 10},
		{"non-numeric resets to defaults", "page=abc&limit=xyz", 1, 10},
		{"oversized limit capped at 100", "page=2&limit=500", 2, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/sync/history?"+tt.query, nil)

			page, limit := GetPagination(c)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func TestGetOffset(t *testing.T) {
	assert.Equal(t, 0, GetOffset(1, 10))
	assert.Equal(t, 10, GetOffset(2, 10))
	assert.Equal(t, 0, GetOffset(0, 10), "page below 1 is treated as page 1")
}

func TestSendSuccess_EnvelopeShape(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendSuccess(c, "ok", gin.H{"foo": "bar"})

	assert.Equal(t, http.StatusOK, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "ok", body.Message)
	assert.Nil(t, body.Error)
}

func TestSendConflict_EnvelopeShape(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendConflict(c, "sync already running", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "CONFLICT", body.Error.Code)
}

func TestSendPaginated_ComputesTotalPages(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendPaginated(c, "ok", []int{1, 2}, 1, 10, 25)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["total_pages"])
}
