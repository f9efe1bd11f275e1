package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/maukemana/sync-engine/internal/mapping"
)

func TestDecodeField_NumberKind(t *testing.T) {
	v := decodeField(mapping.KindNumber, json.RawMessage(`12.5`))
	f, err := v.Float()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)
}

func TestDecodeField_DateKindAcceptsEpochMillisOrString(t *testing.T) {
	v := decodeField(mapping.KindDate, json.RawMessage(`1735689600000`))
	s, err := v.DateString()
	require.NoError(t, err)
	assert.Equal(t, "1735689600000", s)

	v2 := decodeField(mapping.KindDate, json.RawMessage(`"2026-01-02T00:00:00Z"`))
	s2, err := v2.DateString()
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T00:00:00Z", s2)
}

func TestDecodeField_TextKindFallsBackToRichTextSegments(t *testing.T) {
	v := decodeField(mapping.KindText, json.RawMessage(`[{"text":"Hello "},{"text":"World"}]`))
	assert.Equal(t, "Hello World", v.String())
}

func TestDecodeField_SelectKindProducesSelectValue(t *testing.T) {
	v := decodeField(mapping.KindSelect, json.RawMessage(`"Snacks"`))
	assert.Equal(t, mapping.KindSelect, v.Kind())
	assert.Equal(t, "Snacks", v.String())
}

func TestDecodeField_AttachmentKind(t *testing.T) {
	v := decodeField(mapping.KindAttachment, json.RawMessage(`[{"file_token":"tok1","url":"https://x"}]`))
	refs, err := v.AttachmentRefs()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "tok1", refs[0].Token)
}

func TestDecodeField_UnknownShapeIsNull(t *testing.T) {
	v := decodeField(mapping.KindNumber, json.RawMessage(`"not-a-number"`))
	assert.True(t, v.IsNull())
}

func TestToMappingRecord_IgnoresFieldsNotInTheMappingTable(t *testing.T) {
	raw := map[string]json.RawMessage{
		"fld_price_normal": json.RawMessage(`9.99`),
		"fld_unknown_field": json.RawMessage(`"whatever"`),
	}

	rec := toMappingRecord("rec1", raw)

	assert.Equal(t, "rec1", rec.RecordID)
	_, ok := rec.Get("fld_price_normal")
	assert.True(t, ok)
	_, ok = rec.Get("fld_unknown_field")
	assert.False(t, ok)
}

func TestGetAllRecords_FollowsPageTokenUntilHasMoreFalse(t *testing.T) {
	var page int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/auth/v3/tenant_access_token") {
			_ = json.NewEncoder(w).Encode(tokenResponse{TenantAccessToken: "tok", Expire: 3600})
			return
		}
		page++
		resp := recordsResponse{}
		resp.Data.HasMore = page < 2
		if page < 2 {
			resp.Data.PageToken = "next"
		}
		resp.Data.Items = []struct {
			RecordID string                     `json:"record_id"`
			Fields   map[string]json.RawMessage `json:"fields"`
		}{{RecordID: "rec-" + strconv.Itoa(int(page))}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, 2*time.Second, nil)
	c.pageLimiter.SetLimit(rate.Inf) // don't slow the test down on the 200ms pacing

	records, err := c.GetAllRecords(context.Background(), RecordsOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-1", records[0].RecordID)
	assert.Equal(t, "rec-2", records[1].RecordID)
}
