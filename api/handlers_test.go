package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"timeline-api/domain"
)

type mockAuth struct{}

func (mockAuth) SubjectFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	return "board-1", nil
}

type mockDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	removed []string
	err     error
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: make(map[string]bool)}
}

func (m *mockDeduper) Add(ctx context.Context, boardID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDeduper) Remove(ctx context.Context, boardID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	m.removed = append(m.removed, key)
	return nil
}

func newGestureContext(t *testing.T, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/gestures", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeGesturesResponse(t *testing.T, rec *httptest.ResponseRecorder) gesturesResponse {
	t.Helper()
	var resp gesturesResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestPostGesturesAppliesBatch(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	logger, _ := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, nil, Gestures{}, logger)

	body := `[{"type":"drag-end","taskId":"t1","startTime":100,"laneIndex":0},` +
		`{"type":"resize-end","taskId":"t1","boundaryTime":500,"edge":"right"}]`
	c, rec := newGestureContext(t, body)

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeGesturesResponse(t, rec)
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	for i, r := range resp.Results {
		if !r.Applied {
			t.Fatalf("expected gesture %d applied, got %+v", i, r)
		}
		if r.IdempotencyKey == "" {
			t.Fatalf("expected generated idempotency key for gesture %d", i)
		}
	}
	if len(board.moves) != 1 || len(board.resizes) != 1 {
		t.Fatalf("unexpected board calls: moves=%d resizes=%d", len(board.moves), len(board.resizes))
	}
}

func TestPostGesturesReportsRejections(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	board.moveOK = false
	logger, _ := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, nil, Gestures{}, logger)

	c, rec := newGestureContext(t, `[{"type":"drag-end","taskId":"t1","startTime":100,"laneIndex":0}]`)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("rejections are outcomes, not errors; got status %d", rec.Code)
	}
	resp := decodeGesturesResponse(t, rec)
	if resp.Results[0].Applied {
		t.Fatal("expected rejected gesture to report applied=false")
	}
}

func TestPostGesturesSuppressesDuplicates(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	deduper := newMockDeduper()
	logger, _ := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, deduper, Gestures{}, logger)

	body := `[{"type":"drag-end","idempotencyKey":"k1","taskId":"t1","startTime":100,"laneIndex":0}]`

	c, _ := newGestureContext(t, body)
	if err := h(c); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	c, rec := newGestureContext(t, body)
	if err := h(c); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	resp := decodeGesturesResponse(t, rec)
	if resp.Results[0].Applied || !resp.Results[0].Duplicate {
		t.Fatalf("expected duplicate suppression, got %+v", resp.Results[0])
	}
	if len(board.moves) != 1 {
		t.Fatalf("duplicate delivery must not re-apply, moves=%d", len(board.moves))
	}
}

func TestPostGesturesRemovesKeyOnRejection(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	board.moveOK = false
	deduper := newMockDeduper()
	logger, _ := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, deduper, Gestures{}, logger)

	c, _ := newGestureContext(t, `[{"type":"drag-end","idempotencyKey":"k1","taskId":"t1","startTime":100,"laneIndex":0}]`)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(deduper.removed) != 1 || deduper.removed[0] != "k1" {
		t.Fatalf("expected rejected gesture key to be released, removed=%v", deduper.removed)
	}
}

func TestPostGesturesDeduperOutageAppliesAnyway(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	deduper := newMockDeduper()
	deduper.err = errors.New("redis down")
	logger, hook := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, deduper, Gestures{}, logger)

	c, rec := newGestureContext(t, `[{"type":"drag-end","idempotencyKey":"k1","taskId":"t1","startTime":100,"laneIndex":0}]`)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("deduper outage must not fail the request, status %d", rec.Code)
	}
	if len(board.moves) != 1 {
		t.Fatal("expected gesture to apply despite deduper outage")
	}
	found := false
	for _, entry := range hook.Entries {
		if strings.Contains(entry.Message, "dedupe check failed") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected deduper outage to be logged")
	}
}

func TestPostGesturesInvalidBody(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	logger, _ := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, nil, Gestures{}, logger)

	for _, body := range []string{`{not json`, `[{"type":"drag-end","unknown":1}]`} {
		c, rec := newGestureContext(t, body)
		if err := h(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, rec.Code)
		}
	}
}

func TestPostGesturesUnauthorized(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	logger, _ := test.NewNullLogger()
	h := postGestures(fakeBoards{board: board}, mockAuth{}, nil, Gestures{}, logger)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/gestures", strings.NewReader(`[]`))
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetTimeline(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	board.tasks = []domain.Task{{ID: "1", Group: "lane-1", Title: "t", StartTime: 1000, EndTime: 5000}}
	h := getTimeline(fakeBoards{board: board}, mockAuth{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/timeline", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp timelineResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Lanes) != 2 || len(resp.Tasks) != 1 {
		t.Fatalf("unexpected snapshot: %+v", resp)
	}
}

func TestPostLane(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	h := postLane(fakeBoards{board: board}, mockAuth{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/lanes", strings.NewReader(`{"title":"Errands"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp createLaneResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("expected new lane id in response")
	}
	lanes := board.Lanes()
	if !lanes[len(lanes)-1].IsPlaceholder() {
		t.Fatal("placeholder must remain last after lane creation")
	}
}

func TestPatchLanePlaceholderIsNoop(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	h := patchLane(fakeBoards{board: board}, mockAuth{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/api/lanes/"+domain.PlaceholderLaneID, strings.NewReader(`{"title":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(domain.PlaceholderLaneID)

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(board.renames) != 0 {
		t.Fatalf("placeholder rename must be a no-op, got %v", board.renames)
	}
}

func TestPatchTask(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	h := patchTask(fakeBoards{board: board}, mockAuth{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", strings.NewReader(`{"title":"renamed","color":"#abc"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	patch, ok := board.patches["t1"]
	if !ok || patch.Title == nil || *patch.Title != "renamed" {
		t.Fatalf("unexpected patch: %+v", patch)
	}
}

func TestPutTasksReplacesCollection(t *testing.T) {
	board := newFakeBoard(gestureLanes())
	h := putTasks(fakeBoards{board: board}, mockAuth{})

	e := echo.New()
	body := `[{"id":"1","group":"lane-1","title":"a","start_time":0,"end_time":100}]`
	req := httptest.NewRequest(http.MethodPut, "/api/tasks", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(board.setAllCalls) != 1 || board.setAllCalls[0][0].ID != "1" {
		t.Fatalf("unexpected SetAll payload: %+v", board.setAllCalls)
	}
}
