package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/maukemana/sync-engine/internal/mapping"
)

// Field is one entry of the upstream table's schema, per spec.md §4.A
// getTableFields.
type Field struct {
	FieldID string
	Name    string
	Type    string
}

// RecordsOptions mirrors spec.md §4.A's getTableRecords opts.
type RecordsOptions struct {
	PageSize   int
	PageToken  string
	Filter     string
	Sort       []string
	FieldNames []string
}

// RecordsPage is the result of one getTableRecords call.
type RecordsPage struct {
	Records   []mapping.Record
	HasMore   bool
	PageToken string
}

type fieldsResponse struct {
	Code int `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Items []struct {
			FieldID string `json:"field_id"`
			Name    string `json:"field_name"`
			Type    int    `json:"type"`
		} `json:"items"`
	} `json:"data"`
}

// GetTableFields fetches the upstream table's field schema.
func (c *Client) GetTableFields(ctx context.Context) ([]Field, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/fields", c.cfg.AppToken, c.cfg.TableID)
	var fr fieldsResponse
	if err := c.getJSON(ctx, "getTableFields", path, nil, token, &fr); err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(fr.Data.Items))
	for _, it := range fr.Data.Items {
		fields = append(fields, Field{FieldID: it.FieldID, Name: it.Name, Type: strconv.Itoa(it.Type)})
	}
	return fields, nil
}

type recordsResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		HasMore   bool   `json:"has_more"`
		PageToken string `json:"page_token"`
		Items     []struct {
			RecordID string                     `json:"record_id"`
			Fields   map[string]json.RawMessage `json:"fields"`
		} `json:"items"`
	} `json:"data"`
}

// GetTableRecords fetches one page of records, per spec.md §4.A.
func (c *Client) GetTableRecords(ctx context.Context, opts RecordsOptions) (*RecordsPage, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}

	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if opts.PageToken != "" {
		q.Set("page_token", opts.PageToken)
	}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if len(opts.Sort) > 0 {
		q.Set("sort", strings.Join(opts.Sort, ","))
	}
	if len(opts.FieldNames) > 0 {
		fn, _ := json.Marshal(opts.FieldNames)
		q.Set("field_names", string(fn))
	}

	path := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/records", c.cfg.AppToken, c.cfg.TableID)

	var rr recordsResponse
	if err := c.getJSON(ctx, "getTableRecords", path, q, token, &rr); err != nil {
		return nil, err
	}

	page := &RecordsPage{HasMore: rr.Data.HasMore, PageToken: rr.Data.PageToken}
	for _, item := range rr.Data.Items {
		page.Records = append(page.Records, toMappingRecord(item.RecordID, item.Fields))
	}
	return page, nil
}

// GetAllRecords repeatedly calls GetTableRecords until hasMore=false,
// enforcing the mandatory ≥200ms inter-page spacing from spec.md §4.A/§5.
// Page fetches are retried with exponential backoff on transient failure.
func (c *Client) GetAllRecords(ctx context.Context, opts RecordsOptions) ([]mapping.Record, error) {
	var all []mapping.Record
	pageToken := opts.PageToken

	for {
		if err := c.pageLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		pageOpts := opts
		pageOpts.PageToken = pageToken

		page, err := retryUpstream(ctx, func() (*RecordsPage, error) {
			p, err := c.GetTableRecords(ctx, pageOpts)
			if err != nil {
				if uerr, ok := err.(*Error); ok && !uerr.Retryable() {
					return nil, backoff.Permanent(uerr)
				}
				return nil, err
			}
			return p, nil
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Records...)
		if !page.HasMore {
			break
		}
		pageToken = page.PageToken
	}

	return all, nil
}

// toMappingRecord converts raw upstream JSON field values into the tagged
// FieldValue variant, interpreting each by the kind declared for it in the
// mapping table (spec.md §9 "dynamic field bags").
func toMappingRecord(recordID string, raw map[string]json.RawMessage) mapping.Record {
	fields := make(map[string]mapping.FieldValue, len(raw))
	kindByID := map[string]mapping.FieldKind{}
	for _, e := range mapping.ProductTable {
		kindByID[e.UpstreamFieldID] = e.Type
	}

	for id, rm := range raw {
		kind, known := kindByID[id]
		if !known {
			continue
		}
		fields[id] = decodeField(kind, rm)
	}

	return mapping.Record{RecordID: recordID, Fields: fields}
}

func decodeField(kind mapping.FieldKind, raw json.RawMessage) mapping.FieldValue {
	switch kind {
	case mapping.KindNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return mapping.Number(f)
		}
		return mapping.Null()

	case mapping.KindDate:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err == nil {
			return mapping.DateRaw(strconv.FormatInt(ms, 10))
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return mapping.DateRaw(s)
		}
		return mapping.Null()

	case mapping.KindMultiSelect:
		var items []string
		if err := json.Unmarshal(raw, &items); err == nil {
			return mapping.MultiSelect(items)
		}
		return mapping.Null()

	case mapping.KindAttachment:
		var atts []struct {
			FileToken string `json:"file_token"`
			URL       string `json:"url"`
		}
		if err := json.Unmarshal(raw, &atts); err == nil {
			refs := make([]mapping.AttachmentRef, 0, len(atts))
			for _, a := range atts {
				refs = append(refs, mapping.AttachmentRef{Token: a.FileToken, URL: a.URL})
			}
			return mapping.Attachment(refs)
		}
		return mapping.Null()

	case mapping.KindSelect, mapping.KindText, mapping.KindURL:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return textOrSelect(kind, s)
		}
		// Some text-ish cells come back as rich-text segment arrays.
		var segs []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &segs); err == nil {
			var sb strings.Builder
			for _, s := range segs {
				sb.WriteString(s.Text)
			}
			return textOrSelect(kind, sb.String())
		}
		return mapping.Null()

	default:
		return mapping.Null()
	}
}

func textOrSelect(kind mapping.FieldKind, s string) mapping.FieldValue {
	if kind == mapping.KindSelect {
		return mapping.Select(s)
	}
	if kind == mapping.KindURL {
		return mapping.URL(s)
	}
	return mapping.Text(s)
}

// getJSON performs an authenticated GET and decodes a JSON envelope,
// classifying non-2xx responses into the UpstreamError taxonomy.
func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, token string, out interface{}) error {
	full := c.cfg.BaseURL + path
	if q != nil {
		full += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return newNetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Invalidate and retry the call exactly once, per spec.md §4.A.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()

		newToken, terr := c.GetAccessToken(ctx)
		if terr != nil {
			return terr
		}
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return err
		}
		req2.Header.Set("Authorization", "Bearer "+newToken)
		resp2, err := c.hc.Do(req2)
		if err != nil {
			return newNetworkError(op, err)
		}
		defer resp2.Body.Close()
		resp = resp2
	}

	if resp.StatusCode >= 400 {
		return newHTTPError(op, resp.StatusCode, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
