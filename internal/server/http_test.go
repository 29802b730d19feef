package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/extract"
	"github.com/joseph-ayodele/doc-extractor/internal/llm"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/repository"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

func summaryBackend(reply string) llm.Backend {
	return llm.BackendFunc(func(context.Context, string, string, *schema.Schema) (string, error) {
		return reply, nil
	})
}

func newTestProcessor(maxBytes int64, reply string) *pipeline.Processor {
	return pipeline.NewProcessor(extract.NewRouter(nil, nil), summaryBackend(reply),
		pipeline.Config{MaxInputBytes: maxBytes}, nil)
}

type part struct {
	name, filename, contentType, body string
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.name, p.body))
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestExtractTextScenario(t *testing.T) {
	srv := NewHTTPServer(Config{}, newTestProcessor(0, `{"Summary":"Revenue grew 10%"}`), nil)
	body, ct := multipartBody(t,
		part{name: "text", body: "Revenue grew 10%."},
		part{name: "mode", body: constants.ModeHeadings},
		part{name: "modeInput", body: "Summary"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Request-ID", "abc-123")

	rec, out := do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"success":true,"data":{"Summary":"Revenue grew 10%"}}`, rec.Body.String())
	assert.Equal(t, true, out["success"])
}

func TestExtractFileUpload(t *testing.T) {
	srv := NewHTTPServer(Config{}, newTestProcessor(0, `{"Total":"9.99"}`), nil)
	body, ct := multipartBody(t,
		part{name: "file", filename: "invoice.txt", contentType: "application/octet-stream", body: "Total: 9.99"},
		part{name: "mode", body: constants.ModeHeadings},
		part{name: "modeInput", body: "Total"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", ct)

	rec, _ := do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"Total":"9.99"}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestExtractUnsupportedFile(t *testing.T) {
	srv := NewHTTPServer(Config{}, newTestProcessor(0, `{}`), nil)
	body, ct := multipartBody(t,
		part{name: "file", filename: "archive.zip", contentType: "application/zip", body: "PK\x03\x04"},
		part{name: "mode", body: constants.ModeHeadings},
		part{name: "modeInput", body: "Summary"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", ct)

	rec, _ := do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Unsupported file type: application/zip"}`, rec.Body.String())
}

func TestExtractOversize(t *testing.T) {
	srv := NewHTTPServer(Config{}, newTestProcessor(16, `{}`), nil)

	t.Run("file over the limit", func(t *testing.T) {
		body, ct := multipartBody(t,
			part{name: "file", filename: "big.txt", contentType: "text/plain", body: strings.Repeat("x", 64)},
			part{name: "mode", body: constants.ModeHeadings},
			part{name: "modeInput", body: "A"},
		)
		req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
		req.Header.Set("Content-Type", ct)
		rec, out := do(t, srv.Handler(), req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, false, out["success"])
	})

	t.Run("body over the cap", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{
			"text": strings.Repeat("x", bodySlack+64), "mode": "headings", "modeInput": "A",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec, out := do(t, srv.Handler(), req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "Request body is too large", out["error"])
	})

	t.Run("text over the limit", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"text": strings.Repeat("x", 17), "mode": "headings", "modeInput": "A"})
		req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec, _ := do(t, srv.Handler(), req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestExtractJSONBody(t *testing.T) {
	srv := NewHTTPServer(Config{}, newTestProcessor(0, `{"A":"x"}`), nil)

	payload, _ := json.Marshal(map[string]string{
		"fileBase64": base64.StdEncoding.EncodeToString([]byte("hello")),
		"filename":   "note.md",
		"mode":       "headings",
		"modeInput":  "A",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec, _ := do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"text":"t","mode":"json","modeInput":"{\"type\": \"object\""}`))
	req.Header.Set("Content-Type", "application/json")
	rec, out := do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "line 1, column 18")

	req = httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"text":`))
	req.Header.Set("Content-Type", "application/json")
	rec, out = do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", out["error"])

	req = httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`text`))
	req.Header.Set("Content-Type", "text/plain")
	rec, _ = do(t, srv.Handler(), req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestExtractJSONBodyBase64Ceiling(t *testing.T) {
	t.Run("encoded file under the decoded limit", func(t *testing.T) {
		srv := NewHTTPServer(Config{}, newTestProcessor(0, `{"A":"x"}`), nil)
		file := bytes.Repeat([]byte("lorem ipsum "), (9<<20)/12)
		payload, _ := json.Marshal(map[string]string{
			"fileBase64": base64.StdEncoding.EncodeToString(file),
			"mediaType":  "text/plain",
			"filename":   "big.txt",
			"mode":       "headings",
			"modeInput":  "A",
		})
		require.Greater(t, int64(len(payload)), pipeline.DefaultMaxInputBytes+bodySlack)

		req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec, _ := do(t, srv.Handler(), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"data":{"A":"x"}}`, rec.Body.String())
	})

	t.Run("decoded file over the limit", func(t *testing.T) {
		srv := NewHTTPServer(Config{}, newTestProcessor(16, `{"A":"x"}`), nil)
		payload, _ := json.Marshal(map[string]string{
			"fileBase64": base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 17))),
			"mediaType":  "text/plain",
			"mode":       "headings",
			"modeInput":  "A",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec, out := do(t, srv.Handler(), req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "Input is 17 bytes, the limit is 16 bytes", out["error"])
	})
}

func TestBodyCap(t *testing.T) {
	assert.Equal(t, int64(100+bodySlack), bodyCap("multipart/form-data; boundary=x", 100))
	assert.Equal(t, int64(136+bodySlack), bodyCap("application/json; charset=utf-8", 100))
}

func TestHealthz(t *testing.T) {
	srv := NewHTTPServer(Config{}, newTestProcessor(0, `{}`), nil)
	rec, out := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestStatusFor(t *testing.T) {
	cases := map[common.ErrorKind]int{
		common.KindEmptyHeadingList:     http.StatusBadRequest,
		common.KindMalformedJSON:        http.StatusBadRequest,
		common.KindInvalidSchema:        http.StatusBadRequest,
		common.KindInvalidRequest:       http.StatusBadRequest,
		common.KindUnsupportedFormat:    http.StatusUnsupportedMediaType,
		common.KindInputTooLarge:        http.StatusRequestEntityTooLarge,
		common.KindEmptyDocumentContent: http.StatusUnprocessableEntity,
		common.KindExtractionFailure:    http.StatusUnprocessableEntity,
		common.KindModelResponseNotJSON: http.StatusBadGateway,
		common.KindFieldTypeMismatch:    http.StatusBadGateway,
		common.KindModelCallFailed:      http.StatusBadGateway,
		common.KindInternal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), string(kind))
	}
}

func TestJobEndpoints(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: t.TempDir() + "/ledger.db"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	jobs := repository.NewExtractJobRepository(db, nil)
	require.NoError(t, jobs.Migrate(ctx))

	proc := pipeline.NewProcessor(extract.NewRouter(nil, nil), summaryBackend(`{"A":"x"}`), pipeline.Config{}, nil,
		pipeline.WithRecorder(jobs))
	srv := NewHTTPServer(Config{}, proc, nil, WithJobStore(jobs))

	res := proc.Process(ctx, pipeline.Request{Text: "doc", Mode: constants.ModeHeadings, ModeInput: "A"})
	require.True(t, res.Success)

	rec, out := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/jobs/"+res.JobID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(constants.JobStatusDone), out["status"])
	assert.Equal(t, true, out["finished"])

	for _, id := range []string{"nope", "00000000-0000-0000-0000-000000000000"} {
		rec, out = do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "job not found", out["error"])
	}

	rec, out = do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out[string(constants.JobStatusDone)])
}
