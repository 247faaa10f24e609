package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/label-checker/internal/async"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/export"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
	"github.com/joseph-ayodele/label-checker/internal/pipeline"
	"github.com/joseph-ayodele/label-checker/internal/vision"
)

type passthrough struct{}

func (passthrough) Normalize(raw []byte) ([]byte, error) { return raw, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	limits := common.DefaultConfig().Limits
	limits.MaxActiveJobs = 2
	q := async.NewQueue(16, logger)
	m := jobs.NewManager(limits, t.TempDir(), q, logger)
	t.Cleanup(m.Close)

	ext := vision.ExtractorFunc(func(context.Context, []byte, string) (entity.ExtractedLabel, error) {
		return entity.ExtractedLabel{BrandName: entity.Ptr("Acme")}, nil
	})
	proc := pipeline.NewProcessor(logger, m, passthrough{}, ext, 2, nil)
	pool := async.NewPool(q, proc, logger, async.WithWorkers(2))
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Shutdown(context.Background())
	})

	srv := NewServer(m, export.NewService(logger), time.Hour, 0, logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func createJob(t *testing.T, ts *httptest.Server, body string) string {
	t.Helper()
	resp, out := postJSON(t, ts.URL+"/api/jobs", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	return out["job_id"].(string)
}

func upload(t *testing.T, ts *httptest.Server, jobID, indices string, names ...string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, n := range names {
		part, err := mw.CreateFormFile("files", n)
		require.NoError(t, err)
		_, err = part.Write([]byte("image " + n))
		require.NoError(t, err)
	}
	if indices != "" {
		require.NoError(t, mw.WriteField("client_indices", indices))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/jobs/"+jobID+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

type sseEvent struct {
	name string
	data string
}

func readStream(t *testing.T, ts *httptest.Server, jobID string) []sseEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/"+jobID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(string(body)), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestCreateJobValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, out := postJSON(t, ts.URL+"/api/jobs", `{"total_files": 0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["detail"], "total_files")

	resp, _ = postJSON(t, ts.URL+"/api/jobs", `{"total_files": "two"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = postJSON(t, ts.URL+"/api/jobs", `{"total_files": 1, "application_data": [{"label_id": "A"}, {"label_id": "A"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"A"}, out["duplicate_label_ids"])

	createJob(t, ts, `{"total_files": 1}`)
	resp, out = postJSON(t, ts.URL+"/api/jobs", `{"total_files": 1}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, common.ReasonTooManyJobs, out["reason"])
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	jobID := createJob(t, ts, `{"total_files": 2, "application_data": [{"label_id": "a", "brand_name": "Acme"}, {"label_id": "zz"}]}`)

	resp, out := upload(t, ts, jobID, "[3, 9]", "a.png", "b.png")
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	files := out["files"].([]any)
	require.Len(t, files, 2)
	assert.Equal(t, map[string]any{"file_id": float64(0), "client_index": float64(3), "filename": "a.png"}, files[0])

	events := readStream(t, ts, jobID)
	require.Len(t, events, 4)
	assert.Equal(t, "meta", events[0].name)
	assert.JSONEq(t, `{"job_id": "`+jobID+`", "total_files": 2}`, events[0].data)

	indices := map[float64]bool{}
	for _, ev := range events[1:3] {
		require.Equal(t, "result", ev.name)
		var res map[string]any
		require.NoError(t, json.Unmarshal([]byte(ev.data), &res))
		indices[res["client_index"].(float64)] = true
		assert.Equal(t, "Acme", res["data"].(map[string]any)["brand_name"])
	}
	assert.Equal(t, map[float64]bool{3: true, 9: true}, indices)

	assert.Equal(t, "done", events[3].name)
	assert.JSONEq(t, `{"unmatched_csv_rows": ["zz"]}`, events[3].data)

	report, err := http.Get(ts.URL + "/api/jobs/" + jobID + "/report.xlsx")
	require.NoError(t, err)
	defer report.Body.Close()
	require.Equal(t, http.StatusOK, report.StatusCode)
	f, err := excelize.OpenReader(report.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetResults)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := upload(t, ts, "missing", "", "a.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	jobID := createJob(t, ts, `{"total_files": 2}`)

	resp, out := upload(t, ts, jobID, "[1", "a.png")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "client_indices must be a JSON array of integers", out["detail"])

	resp, _ = upload(t, ts, jobID, "", "notes.txt")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = upload(t, ts, jobID, "", "a.png", "b.png", "c.png")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, ts.URL+"/api/jobs/"+jobID+"/complete", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = upload(t, ts, jobID, "", "a.png")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStreamUnknownJob(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/jobs/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventWriterFormatsEveryEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newEventWriter(rec)

	require.NoError(t, w.Write(jobs.MetaEvent{JobID: "j1", TotalFiles: 1}))
	require.NoError(t, w.Write(jobs.HeartbeatEvent{}))
	require.NoError(t, w.Write(jobs.ErrorEvent{ItemError: entity.ItemError{ClientIndex: -1, FileID: -1, Error: "timed out"}}))
	require.NoError(t, w.Write(jobs.DoneEvent{}))

	want := "event: meta\ndata: {\"job_id\":\"j1\",\"total_files\":1}\n\n" +
		": heartbeat\n\n" +
		"event: error\ndata: {\"client_index\":-1,\"file_id\":-1,\"filename\":\"\",\"error\":\"timed out\"}\n\n" +
		"event: done\ndata: {}\n\n"
	assert.Equal(t, want, rec.Body.String())
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{common.InvalidArgument("bad"), http.StatusBadRequest},
		{common.PayloadTooLarge("big"), http.StatusRequestEntityTooLarge},
		{common.NotFound("gone"), http.StatusNotFound},
		{common.InvalidState("done"), http.StatusConflict},
		{common.TooManyActiveJobs("busy"), http.StatusTooManyRequests},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, httpStatus(tc.err), "%v", tc.err)
	}
}
