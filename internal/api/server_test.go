package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dataq/internal/anomaly"
	"github.com/banshee-data/dataq/internal/config"
	"github.com/banshee-data/dataq/internal/db"
	"github.com/banshee-data/dataq/internal/geospace"
	"github.com/banshee-data/dataq/internal/ingest"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/stitch"
	"github.com/banshee-data/dataq/internal/timeutil"
)

var t0 = time.UnixMilli(1_700_000_000_000)

type fakePipeline struct {
	mu         sync.Mutex
	configured []pipeline.Settings
	err        error
}

func (f *fakePipeline) Configure(_ context.Context, s pipeline.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.configured = append(f.configured, s)
	return nil
}

func (f *fakePipeline) Held() []stitch.Held {
	return []stitch.Held{{ID: "7", Class: "Human", X: 10, Y: 20, Deadline: t0}}
}

func (f *fakePipeline) AnomalyStats() map[string]map[string]anomaly.Summary {
	return map[string]map[string]anomaly.Summary{"Human": {"age": {Count: 2, Mean: 3}}}
}

func (f *fakePipeline) Occupancy() occupancy.Snapshot {
	return occupancy.Snapshot{Counts: map[string]int{"Human": 2}, Timestamp: t0.UnixMilli()}
}

func (f *fakePipeline) Status() pipeline.Status {
	return pipeline.Status{UptimeHours: 1.5, Tracks: 3}
}

type fixture struct {
	srv  *Server
	pipe *fakePipeline
	db   *db.DB
	geo  *geospace.Transformer
	feed *ingest.Feed
	mux  *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.NewDB(t.TempDir() + "/dataq.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	f := &fixture{
		pipe: &fakePipeline{},
		db:   database,
		geo:  geospace.NewTransformer(),
		feed: ingest.NewFeed(ingest.NewDecoder(scene.Rotate0, scene.COGCenter), nil, nil),
	}
	f.srv = NewServer(Options{
		Pipeline: f.pipe,
		DB:       database,
		Geo:      f.geo,
		Feed:     f.feed,
		Clock:    timeutil.NewMockClock(t0),
		Config:   config.EmptyConfig(),
	})
	f.mux = f.srv.ServeMux()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const linearMatrix = `[0.001,0,20, 0,-0.001,10, 0,0,1]`

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/config",
		`{"scene":{"rotation":180,"cog":"bottom"},"filter":{"confidence":55,"minWidth":5,"maxWidth":900,"minHeight":5,"maxHeight":900,"aoi":{"x1":0,"x2":1000,"y1":0,"y2":1000}},"geospace":`+linearMatrix+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[config.Config](t, rec)
	require.NotNil(t, got.Filter)
	assert.Equal(t, 55.0, got.Filter.MinConfidence)

	require.Len(t, f.pipe.configured, 1)
	assert.Equal(t, 55.0, f.pipe.configured[0].Filter.MinConfidence)

	rot, cog := f.feed.Decoder().Geometry()
	assert.Equal(t, scene.Rotate180, rot)
	assert.Equal(t, scene.COGBottom, cog)

	_, ok := f.geo.Matrix()
	assert.True(t, ok, "geospace matrix applied")

	stored, err := f.db.LoadSetting(db.SettingsConfigKey)
	require.NoError(t, err)
	assert.Contains(t, string(stored), `"confidence":55`)

	// a later partial update keeps earlier sections
	rec = f.do(t, http.MethodPost, "/api/config", `{"occupancy":{"stationary":true,"moving":false,"integrationTime":4}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 55.0, f.srv.Config().Filter.MinConfidence)
	assert.False(t, f.srv.Config().Occupancy.Moving)

	rec = f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, decode[config.Config](t, rec).Occupancy.IntegrationTime)
}

func TestUpdateConfig_Invalid(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"scene":{"rotation":45}}`, `{"geospace":[1,2]}`, `{not json`} {
		rec := f.do(t, http.MethodPost, "/api/config", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, f.pipe.configured)
	_, err := f.db.LoadSetting(db.SettingsConfigKey)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpdateConfig_PipelineFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.pipe.err = context.DeadlineExceeded

	rec := f.do(t, http.MethodPost, "/api/config", `{"scene":{"rotation":90},"geospace":`+linearMatrix+`}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	_, ok := f.geo.Matrix()
	assert.False(t, ok, "matrix must not be installed")
	rot, _ := f.feed.Decoder().Geometry()
	assert.Equal(t, scene.Rotate0, rot)
	assert.Empty(t, f.srv.Config().Geospace)
	_, err := f.db.LoadSetting(db.SettingsConfigKey)
	assert.ErrorIs(t, err, db.ErrNotFound)

	rec = f.do(t, http.MethodPost, "/api/geospace/transform", `{"points":[{"x":500,"y":500}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGeospaceTransform(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/geospace/transform", `{"points":[{"x":500,"y":500}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/geospace/calibrate",
		`{"points":[{"x":0,"y":0,"lat":10,"lon":20},{"x":1000,"y":0,"lat":10,"lon":21},{"x":0,"y":1000,"lat":9,"lon":20},{"x":1000,"y":1000,"lat":9,"lon":21}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.srv.Config().Geospace, 9)

	rec = f.do(t, http.MethodPost, "/api/geospace/transform", `{"points":[{"x":500,"y":500},{"x":0,"y":0}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[pointsRequest](t, rec)
	require.Len(t, got.Points, 2)
	assert.InDelta(t, 9.5, got.Points[0].Lat, 1e-6)
	assert.InDelta(t, 20.5, got.Points[0].Lon, 1e-6)
	assert.InDelta(t, 10, got.Points[1].Lat, 1e-6)
}

func TestGeospaceCalibrate_Invalid(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/geospace/calibrate", `{"points":[{"x":0,"y":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// collinear scene points
	rec = f.do(t, http.MethodPost, "/api/geospace/calibrate",
		`{"points":[{"x":0,"y":0,"lat":1,"lon":1},{"x":1,"y":1,"lat":2,"lon":2},{"x":2,"y":2,"lat":3,"lon":3},{"x":3,"y":3,"lat":4,"lon":4}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func storedPath(id, class string, birth int64) scene.Path {
	return scene.Path{
		ID: id, Class: class, Timestamp: birth, Age: 3,
		Samples: []scene.PathSample{{X: 100, Y: 100, T: birth}, {X: 300, Y: 200, T: birth + 3000}},
	}
}

func TestPaths(t *testing.T) {
	f := newFixture(t)

	_, err := f.db.RecordPath(storedPath("1", "Human", t0.UnixMilli()))
	require.NoError(t, err)
	carID, err := f.db.RecordPath(storedPath("2", "Car", t0.UnixMilli()+1000))
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/paths", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]db.PathRecord](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].Path.ID, "newest first")

	rec = f.do(t, http.MethodGet, "/api/paths?class=Human", "")
	assert.Len(t, decode[[]db.PathRecord](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/paths?class=Bus", "")
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/paths?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/paths/"+carID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Car", decode[db.PathRecord](t, rec).Path.Class)

	rec = f.do(t, http.MethodGet, "/api/paths/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/debug/paths.png", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestAnomalies(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.RecordAnomaly(pipeline.AnomalySignal{Name: "anomaly", State: true, Reason: "Restricted Area", TrackID: "7", Timestamp: t0.UnixMilli()}))

	rec := f.do(t, http.MethodGet, "/api/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]pipeline.AnomalySignal](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Restricted Area", got[0].Reason)

	rec = f.do(t, http.MethodGet, "/api/anomaly/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]map[string]anomaly.Summary](t, rec)
	assert.Equal(t, 2, stats["Human"]["age"].Count)
}

func TestOccupancy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.RecordOccupancy(occupancy.Snapshot{Counts: map[string]int{"Human": 1}, Timestamp: t0.Add(-2 * time.Hour).UnixMilli()}))
	require.NoError(t, f.db.RecordOccupancy(occupancy.Snapshot{Counts: map[string]int{"Human": 2}, Timestamp: t0.Add(-time.Minute).UnixMilli()}))

	rec := f.do(t, http.MethodGet, "/api/occupancy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[occupancyResponse](t, rec)
	assert.Equal(t, 2, got.Current.Counts["Human"])
	require.Len(t, got.History, 1, "default window is one hour")

	rec = f.do(t, http.MethodGet, "/api/occupancy?window=3h", "")
	assert.Len(t, decode[occupancyResponse](t, rec).History, 2)

	rec = f.do(t, http.MethodGet, "/api/occupancy?window=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/debug/occupancy?window=3h", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Human")
}

func TestStatusAndHeld(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1.5, status["uptime_hours"])
	assert.Contains(t, status, "ingest")
	assert.Contains(t, status, "version")

	rec = f.do(t, http.MethodGet, "/api/stitch/held", "")
	require.Equal(t, http.StatusOK, rec.Code)
	held := decode[[]stitch.Held](t, rec)
	require.Len(t, held, 1)
	assert.Equal(t, "7", held[0].ID)
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x?y=1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(500), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
