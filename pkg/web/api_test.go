package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/database"
	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/metrics"
	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

type fakeShooter struct {
	mu    sync.Mutex
	seed  uint8
	shots [][2]uint8
}

func (f *fakeShooter) SendWithTeamAndWeapon(team, weapon uint8) {
	f.mu.Lock()
	f.shots = append(f.shots, [2]uint8{team, weapon})
	f.mu.Unlock()
}

func (f *fakeShooter) Seed() uint8 { return f.seed }

type fakeHitStore struct {
	hits   []database.HitRecord
	scores []database.TeamScore
	err    error
}

func (f *fakeHitStore) GetRecentPaginated(page, perPage int) ([]database.HitRecord, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	start := (page - 1) * perPage
	if start >= len(f.hits) {
		return []database.HitRecord{}, int64(len(f.hits)), nil
	}
	end := start + perPage
	if end > len(f.hits) {
		end = len(f.hits)
	}
	return f.hits[start:end], int64(len(f.hits)), nil
}

func (f *fakeHitStore) GetByTeam(team uint8, limit int) ([]database.HitRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []database.HitRecord
	for _, h := range f.hits {
		if h.Team == team && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeHitStore) GetByTimeRange(start, end time.Time, limit int) ([]database.HitRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []database.HitRecord
	for _, h := range f.hits {
		if !h.ReceivedAt.Before(start) && !h.ReceivedAt.After(end) && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeHitStore) Scoreboard() ([]database.TeamScore, error) {
	return f.scores, f.err
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	codec, err := protocol.NewDynasty20(0)
	if err != nil {
		t.Fatalf("NewDynasty20: %v", err)
	}
	return NewAPI(logger.New(logger.Config{Level: "error"}), codec)
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestAPI_Status(t *testing.T) {
	api := newTestAPI(t)
	api.SetShooter(&fakeShooter{seed: 0x5C}, 1, 2)
	m := metrics.NewCollector()
	m.ShotSent(42)
	api.SetMetrics(m)

	w := doJSON(t, api.HandleStatus, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["protocol"] != "DYNASTY20LASERTAG" {
		t.Errorf("protocol = %v", result["protocol"])
	}
	if result["tolerance_percent"] != float64(protocol.DefaultTolerancePercent) {
		t.Errorf("tolerance_percent = %v", result["tolerance_percent"])
	}
	if result["seed"] != float64(0x5C) {
		t.Errorf("seed = %v", result["seed"])
	}
	if result["shots_sent"] != float64(1) {
		t.Errorf("shots_sent = %v", result["shots_sent"])
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	tests := []struct {
		name   string
		h      http.HandlerFunc
		method string
	}{
		{"status", api.HandleStatus, http.MethodPost},
		{"encode", api.HandleEncode, http.MethodGet},
		{"decode", api.HandleDecode, http.MethodGet},
		{"fire", api.HandleFire, http.MethodGet},
		{"hits", api.HandleHits, http.MethodPost},
		{"scoreboard", api.HandleScoreboard, http.MethodDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, tt.h, tt.method, "/", "")
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", w.Code)
			}
		})
	}
}

func TestAPI_Encode(t *testing.T) {
	api := newTestAPI(t)

	w := doJSON(t, api.HandleEncode, http.MethodPost, "/api/encode", `{"team":18,"weapon":52}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp encodeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Value != "0xAA123403" || resp.Address != "0xAE" {
		t.Errorf("value/address = %s/%s", resp.Value, resp.Address)
	}
	if resp.Checksum != 3 {
		t.Errorf("checksum = %d, want 3", resp.Checksum)
	}
	if resp.PulseCount != protocol.Dynasty20PulseCount {
		t.Errorf("pulse_count = %d", resp.PulseCount)
	}
	if !strings.HasPrefix(resp.Raw, "+1600 -") || !strings.HasSuffix(resp.Raw, "-1000") {
		t.Errorf("unexpected raw: %s", resp.Raw)
	}
}

func TestAPI_EncodeRejectsBadInput(t *testing.T) {
	api := newTestAPI(t)
	for _, body := range []string{
		`{"team":256,"weapon":1}`,
		`{"team":1,"weapon":-1}`,
		`{"team":1,"weapon":1,"seed":300}`,
		`not json`,
	} {
		t.Run(body, func(t *testing.T) {
			w := doJSON(t, api.HandleEncode, http.MethodPost, "/api/encode", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestAPI_DecodeRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	codec, _ := protocol.NewDynasty20(0)
	raw := protocol.FormatPulses(codec.EncodeTeamWeapon(0x12, 0x34))

	body, _ := json.Marshal(decodeRequest{Raw: raw})
	w := doJSON(t, api.HandleDecode, http.MethodPost, "/api/decode", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp decodeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Team != 0x12 || resp.Weapon != 0x34 || resp.Seed != 0xAE {
		t.Errorf("unexpected payload: %+v", resp)
	}
	if resp.Bits != 40 || !resp.Valid {
		t.Errorf("bits=%d valid=%v", resp.Bits, resp.Valid)
	}
}

func TestAPI_DecodeChecksumMismatchIsReported(t *testing.T) {
	api := newTestAPI(t)
	codec, _ := protocol.NewDynasty20(0)
	raw := protocol.FormatPulses(codec.Encode(0xAA123404, 0xAE))

	body, _ := json.Marshal(decodeRequest{Raw: raw})
	w := doJSON(t, api.HandleDecode, http.MethodPost, "/api/decode", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp decodeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Valid || resp.Error == "" {
		t.Errorf("expected invalid frame with error, got %+v", resp)
	}
}

func TestAPI_DecodeFailures(t *testing.T) {
	api := newTestAPI(t)
	tests := []struct {
		name     string
		raw      string
		wantCode int
		wantKind string
	}{
		{"unparseable", "+1600 400", http.StatusBadRequest, ""},
		{"long header", "+3200 -400 +400", http.StatusUnprocessableEntity, "malformed_header"},
		{"truncated", "+1600 -400 +800", http.StatusUnprocessableEntity, "truncated_frame"},
		{"ambiguous", "+1600 -1600", http.StatusUnprocessableEntity, "ambiguous_timing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(decodeRequest{Raw: tt.raw})
			w := doJSON(t, api.HandleDecode, http.MethodPost, "/api/decode", string(body))
			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantKind == "" {
				return
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp["kind"] != tt.wantKind {
				t.Errorf("kind = %q, want %q", resp["kind"], tt.wantKind)
			}
		})
	}
}

func TestAPI_Fire(t *testing.T) {
	api := newTestAPI(t)

	w := doJSON(t, api.HandleFire, http.MethodPost, "/api/fire", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without shooter, got %d", w.Code)
	}

	shooter := &fakeShooter{seed: 0xAE}
	api.SetShooter(shooter, 0x01, 0x02)

	w = doJSON(t, api.HandleFire, http.MethodPost, "/api/fire", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, api.HandleFire, http.MethodPost, "/api/fire", `{"team":18,"weapon":52}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, api.HandleFire, http.MethodPost, "/api/fire", `{"team":999}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for out of range team, got %d", w.Code)
	}

	if len(shooter.shots) != 2 {
		t.Fatalf("Expected 2 shots, got %d", len(shooter.shots))
	}
	if shooter.shots[0] != [2]uint8{0x01, 0x02} {
		t.Errorf("default shot = %v", shooter.shots[0])
	}
	if shooter.shots[1] != [2]uint8{0x12, 0x34} {
		t.Errorf("explicit shot = %v", shooter.shots[1])
	}
}

func TestAPI_Hits(t *testing.T) {
	api := newTestAPI(t)

	w := doJSON(t, api.HandleHits, http.MethodGet, "/api/hits", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without store, got %d", w.Code)
	}

	now := time.Now()
	api.SetHitStore(&fakeHitStore{hits: []database.HitRecord{
		{ID: 3, Team: 1, ReceivedAt: now},
		{ID: 2, Team: 2, ReceivedAt: now.Add(-time.Second)},
		{ID: 1, Team: 1, ReceivedAt: now.Add(-2 * time.Second)},
	}})

	w = doJSON(t, api.HandleHits, http.MethodGet, "/api/hits?page=1&per_page=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page struct {
		Hits    []database.HitRecord `json:"hits"`
		Total   int64                `json:"total"`
		Page    int                  `json:"page"`
		PerPage int                  `json:"per_page"`
	}
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if page.Total != 3 || len(page.Hits) != 2 || page.PerPage != 2 {
		t.Errorf("unexpected page: total=%d hits=%d per_page=%d", page.Total, len(page.Hits), page.PerPage)
	}

	w = doJSON(t, api.HandleHits, http.MethodGet, "/api/hits?team=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var byTeam struct {
		Hits  []database.HitRecord `json:"hits"`
		Total int                  `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&byTeam); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if byTeam.Total != 2 {
		t.Errorf("Expected 2 hits for team 1, got %d", byTeam.Total)
	}

	since := now.Add(-1500 * time.Millisecond).UTC().Format(time.RFC3339Nano)
	w = doJSON(t, api.HandleHits, http.MethodGet, "/api/hits?since="+since, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for since, got %d: %s", w.Code, w.Body.String())
	}
	var recent struct {
		Hits  []database.HitRecord `json:"hits"`
		Total int                  `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&recent); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if recent.Total != 2 {
		t.Errorf("Expected 2 hits since %s, got %d", since, recent.Total)
	}

	w = doJSON(t, api.HandleHits, http.MethodGet, "/api/hits?since=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad since, got %d", w.Code)
	}

	w = doJSON(t, api.HandleHits, http.MethodGet, "/api/hits?team=red", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad team, got %d", w.Code)
	}
}

func TestAPI_Scoreboard(t *testing.T) {
	api := newTestAPI(t)
	api.SetHitStore(&fakeHitStore{scores: []database.TeamScore{
		{Team: 1, Hits: 5},
		{Team: 2, Hits: 3, Invalid: 1},
	}})

	w := doJSON(t, api.HandleScoreboard, http.MethodGet, "/api/scoreboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var scores []database.TeamScore
	if err := json.NewDecoder(w.Body).Decode(&scores); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(scores) != 2 || scores[0].Hits != 5 || scores[1].Invalid != 1 {
		t.Errorf("unexpected scores: %+v", scores)
	}
}

func TestAPI_ScoreboardStoreError(t *testing.T) {
	api := newTestAPI(t)
	api.SetHitStore(&fakeHitStore{err: errors.New("disk on fire")})

	w := doJSON(t, api.HandleScoreboard, http.MethodGet, "/api/scoreboard", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("disk on fire")) {
		t.Error("store error leaked to client")
	}
}
