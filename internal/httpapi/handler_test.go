package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerquest/internal/auth"
	"careerquest/internal/ledger"
	"careerquest/internal/notify"
	"careerquest/internal/queue"
)

const signingKey = "httpapi-test-key"

type fakeLedger struct {
	admins   map[int64]bool
	events   map[int64]ledger.Event
	codes    map[string]ledger.Code
	students map[int64]ledger.Student

	lastRatingLimit *int
	nextID          int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		admins:   map[int64]bool{1: true},
		events:   map[int64]ledger.Event{},
		codes:    map[string]ledger.Code{},
		students: map[int64]ledger.Student{},
	}
}

func (f *fakeLedger) IsAdmin(_ context.Context, id int64) (bool, error) { return f.admins[id], nil }

func (f *fakeLedger) AddAdmin(_ context.Context, id int64) error {
	if id <= 0 {
		return ledger.ErrInvalid
	}
	f.admins[id] = true
	return nil
}

func (f *fakeLedger) GetStudent(_ context.Context, id int64) (ledger.Student, error) {
	st, ok := f.students[id]
	if !ok {
		return ledger.Student{}, ledger.ErrNotFound
	}
	return st, nil
}

func (f *fakeLedger) GetRating(_ context.Context, _ int64, limit *int) ([]ledger.RatingEntry, error) {
	f.lastRatingLimit = limit
	return []ledger.RatingEntry{{Position: 1, Name: "Ann", Balance: 30}}, nil
}

func (f *fakeLedger) AddEvent(_ context.Context, name string) (ledger.Event, error) {
	if utf8.RuneCountInString(name) > ledger.MaxNameLength {
		return ledger.Event{}, ledger.ErrInvalid
	}
	for _, e := range f.events {
		if e.Name == name {
			return ledger.Event{}, ledger.ErrDuplicate
		}
	}
	f.nextID++
	evt := ledger.Event{ID: f.nextID, Name: name, CreatedAt: time.Now()}
	f.events[evt.ID] = evt
	return evt, nil
}

func (f *fakeLedger) ListEvents(context.Context) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedger) GetEvent(_ context.Context, id int64) (ledger.Event, error) {
	evt, ok := f.events[id]
	if !ok {
		return ledger.Event{}, ledger.ErrNotFound
	}
	return evt, nil
}

func (f *fakeLedger) DeleteEvent(_ context.Context, id int64) (int64, error) {
	if _, ok := f.events[id]; !ok {
		return 0, ledger.ErrNotFound
	}
	delete(f.events, id)
	var removed int64
	for text, c := range f.codes {
		if c.EventID == id {
			delete(f.codes, text)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeLedger) AddCodeToEvent(_ context.Context, eventID int64, text string, points int, income bool) (ledger.Code, error) {
	if _, ok := f.events[eventID]; !ok {
		return ledger.Code{}, ledger.ErrNotFound
	}
	text = ledger.NormalizeCode(text)
	if _, ok := f.codes[text]; ok {
		return ledger.Code{}, ledger.ErrDuplicate
	}
	c := ledger.Code{ID: int64(len(f.codes) + 1), EventID: eventID, Text: text, Points: points, IsIncome: income, Active: true}
	f.codes[text] = c
	return c, nil
}

func (f *fakeLedger) GenerateCode(ctx context.Context, eventID int64, points int, income bool) (ledger.Code, error) {
	return f.AddCodeToEvent(ctx, eventID, "A1B2C3D4", points, income)
}

func (f *fakeLedger) DeleteCode(_ context.Context, text string) error {
	if _, ok := f.codes[text]; !ok {
		return ledger.ErrNotFound
	}
	delete(f.codes, text)
	return nil
}

func (f *fakeLedger) SetCodeActive(_ context.Context, text string, active bool) error {
	c, ok := f.codes[text]
	if !ok {
		return ledger.ErrNotFound
	}
	c.Active = active
	f.codes[text] = c
	return nil
}

func (f *fakeLedger) ListCodeUsage(_ context.Context, eventID *int64) ([]ledger.CodeUsage, error) {
	if eventID != nil && *eventID == 999 {
		return nil, errors.New("connection reset")
	}
	var out []ledger.CodeUsage
	for _, c := range f.codes {
		if eventID == nil || c.EventID == *eventID {
			out = append(out, ledger.CodeUsage{Code: c.Text, EventID: c.EventID, Points: c.Points, IsIncome: c.IsIncome, Active: c.Active})
		}
	}
	return out, nil
}

type fixture struct {
	router *gin.Engine
	ledger *fakeLedger
	queue  *queue.InMemory
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := newFakeLedger()
	q := queue.NewInMemory(4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(l, notify.NewPublisher(q), nil, logger)

	r := gin.New()
	r.Use(RequestID())
	h.Register(r, auth.AdminAuth(signingKey, "", l, logger))

	tok, err := auth.Issue(1, "", signingKey, time.Hour)
	require.NoError(t, err)
	return &fixture{router: r, ledger: l, queue: q, token: tok.AccessToken}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequiresAdminToken(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	delete(f.ledger.admins, 1)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/v1/events", "").Code)
}

func TestEventAndCodeLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/events", `{"name":"Career Day"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Career Day", decode(t, w)["name"])

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/v1/events", `{"name":"Career Day"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/events", `{}`).Code)
	long := `{"name":"` + strings.Repeat("я", ledger.MaxNameLength+1) + `"}`
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/events", long).Code)

	w = f.do(http.MethodPost, "/v1/events/1/codes", `{"code":"cd-in-10","points":10}`)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "CD-IN-10", body["code"])
	assert.Equal(t, true, body["is_income"])

	w = f.do(http.MethodPost, "/v1/events/1/codes", `{"code":"MERCH","points":15,"spend":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, false, decode(t, w)["is_income"])

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/v1/events/1/codes", `{"code":"Cd-In-10","points":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/events/1/codes", `{"code":"X","points":0}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/v1/events/42/codes", `{"code":"X","points":1}`).Code)

	w = f.do(http.MethodPost, "/v1/events/1/codes/generate", `{"points":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decode(t, w)["code"], 8)

	w = f.do(http.MethodPatch, "/v1/codes/merch", `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.ledger.codes["MERCH"].Active)

	w = f.do(http.MethodGet, "/v1/events/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["codes"], 3)

	w = f.do(http.MethodGet, "/v1/codes?event_id=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["codes"], 3)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/codes?event_id=abc", "").Code)

	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/v1/codes/A1B2C3D4", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/v1/codes/A1B2C3D4", "").Code)

	w = f.do(http.MethodDelete, "/v1/events/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["codes_removed"])
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/events/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/events/zero", "").Code)
}

func TestRatingLimitParam(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/rating", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.ledger.lastRatingLimit)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/rating?limit=3", "").Code)
	require.NotNil(t, f.ledger.lastRatingLimit)
	assert.Equal(t, 3, *f.ledger.lastRatingLimit)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/rating?limit=-1", "").Code)
}

func TestStudentLookup(t *testing.T) {
	f := newFixture(t)
	f.ledger.students[5] = ledger.Student{ID: 5, Name: "Ann", Balance: 10}

	w := f.do(http.MethodGet, "/v1/students/5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), decode(t, w)["balance"])
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/students/6", "").Code)
}

func TestAddAdmin(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/admins", `{"user_id":77}`).Code)
	assert.True(t, f.ledger.admins[77])
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/admins", `{"user_id":-3}`).Code)
}

func TestNotifyEnqueuesJob(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/notifications", `{"text":"Quiz starts in 10 minutes"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	jobID := decode(t, w)["job_id"]
	assert.NotEmpty(t, jobID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := f.queue.Consume(ctx)
	require.NoError(t, err)
	msg := <-ch
	var job notify.Job
	require.NoError(t, json.Unmarshal(msg.Body, &job))
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, int64(1), job.RequestedBy)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/notifications", `{"text":"   "}`).Code)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	f := newFixture(t)
	f.ledger.events[999] = ledger.Event{ID: 999, Name: "broken"}
	w := f.do(http.MethodGet, "/v1/events/999", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["error"])
}
