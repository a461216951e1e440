package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ryabkov82/gstr2b-merger/internal/config"
	"github.com/ryabkov82/gstr2b-merger/internal/session"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return NewServer(config.Default(), session.NewStore(0), nil)
}

func workbook(t *testing.T, sheet string, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func do(t *testing.T, h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp filesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func upload(t *testing.T, h http.Handler, id string, files map[string][]byte, order ...string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, name := range order {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return do(t, h, http.MethodPost, "/sessions/"+id+"/files", body, mw.FormDataContentType())
}

func fileNames(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp filesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Files
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownSession(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/sessions/missing/merge", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionCommands(t *testing.T) {
	h := newTestServer(t)
	id := createSession(t, h)

	files := map[string][]byte{
		"a.xlsx": workbook(t, "B2B", []any{"a"}),
		"b.xlsx": workbook(t, "B2B", []any{"b"}),
		"c.xlsx": workbook(t, "B2B", []any{"c"}),
	}
	rec := upload(t, h, id, files, "a.xlsx", "b.xlsx", "c.xlsx", "a.xlsx")
	assert.Equal(t, []string{"a.xlsx", "b.xlsx", "c.xlsx"}, fileNames(t, rec))

	rec = do(t, h, http.MethodPost, "/sessions/"+id+"/rotate-forward", nil, "")
	assert.Equal(t, []string{"c.xlsx", "a.xlsx", "b.xlsx"}, fileNames(t, rec))

	rec = do(t, h, http.MethodPost, "/sessions/"+id+"/rotate-backward", nil, "")
	assert.Equal(t, []string{"a.xlsx", "b.xlsx", "c.xlsx"}, fileNames(t, rec))

	rec = do(t, h, http.MethodDelete, "/sessions/"+id+"/files/last", nil, "")
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, fileNames(t, rec))

	rec = do(t, h, http.MethodGet, "/sessions/"+id, nil, "")
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, fileNames(t, rec))

	rec = do(t, h, http.MethodDelete, "/sessions/"+id+"/files", nil, "")
	assert.Empty(t, fileNames(t, rec))

	rec = do(t, h, http.MethodDelete, "/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejectsOtherFormats(t *testing.T) {
	h := newTestServer(t)
	id := createSession(t, h)

	rec := upload(t, h, id, map[string][]byte{"report.csv": []byte("a,b")}, "report.csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/sessions/"+id, nil, "")
	assert.Empty(t, fileNames(t, rec))
}

func TestMerge_NoFiles(t *testing.T) {
	h := newTestServer(t)
	id := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/sessions/"+id+"/merge", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMerge_BrokenFile(t *testing.T) {
	h := newTestServer(t)
	id := createSession(t, h)
	upload(t, h, id, map[string][]byte{"broken.xlsx": []byte("garbage")}, "broken.xlsx")

	rec := do(t, h, http.MethodPost, "/sessions/"+id+"/merge", nil, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "broken.xlsx", resp.File)
}

func TestMerge_Download(t *testing.T) {
	h := newTestServer(t)
	id := createSession(t, h)

	header := make([][]any, 0, 6)
	for i := 0; i < 6; i++ {
		header = append(header, []any{"header"})
	}
	files := map[string][]byte{
		"a.xlsx": workbook(t, "B2B", append(header, []any{"from a"})...),
		"b.xlsx": workbook(t, "B2B", append(header, []any{"from b"})...),
	}
	upload(t, h, id, files, "a.xlsx", "b.xlsx")
	do(t, h, http.MethodPost, "/sessions/"+id+"/rotate-forward", nil, "")

	rec := do(t, h, http.MethodPost, "/sessions/"+id+"/merge", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, XLSXMediaType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), OutputFileName)

	out, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, []string{"B2B", "B2BA", "B2B-CDNR", "B2B-CDNRA"}, out.GetSheetList())
	rows, err := out.GetRows("B2B")
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, []string{"from b"}, rows[6])
	assert.Equal(t, []string{"from a"}, rows[7])
}
