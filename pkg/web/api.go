package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/database"
	"github.com/dbehnke/lasertag-ir/pkg/ir"
	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/metrics"
	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

// Shooter fires shots from the local device
type Shooter interface {
	SendWithTeamAndWeapon(team, weapon uint8)
	Seed() uint8
}

// HitStore is the read side of the hit log
type HitStore interface {
	GetRecentPaginated(page, perPage int) ([]database.HitRecord, int64, error)
	GetByTeam(team uint8, limit int) ([]database.HitRecord, error)
	GetByTimeRange(start, end time.Time, limit int) ([]database.HitRecord, error)
	Scoreboard() ([]database.TeamScore, error)
}

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// API handles REST API endpoints
type API struct {
	logger  *logger.Logger
	codec   protocol.Codec
	shooter Shooter
	hits    HitStore
	metrics *metrics.Collector

	defaultTeam   uint8
	defaultWeapon uint8
}

// NewAPI creates a new API instance around a codec
func NewAPI(log *logger.Logger, codec protocol.Codec) *API {
	return &API{
		logger: log,
		codec:  codec,
	}
}

// SetShooter enables /api/fire
func (a *API) SetShooter(s Shooter, team, weapon uint8) {
	a.shooter = s
	a.defaultTeam = team
	a.defaultWeapon = weapon
}

// SetHitStore enables /api/hits and /api/scoreboard
func (a *API) SetHitStore(h HitStore) {
	a.hits = h
}

// SetMetrics adds counters to /api/status
func (a *API) SetMetrics(m *metrics.Collector) {
	a.metrics = m
}

type encodeRequest struct {
	Team   *int `json:"team"`
	Weapon *int `json:"weapon"`
	Seed   *int `json:"seed"`
}

type encodeResponse struct {
	Protocol   string `json:"protocol"`
	Address    string `json:"address"`
	Value      string `json:"value"`
	Checksum   uint8  `json:"checksum"`
	PulseCount int    `json:"pulse_count"`
	Raw        string `json:"raw"`
}

type decodeRequest struct {
	Raw string `json:"raw"`
}

type decodeResponse struct {
	Protocol string `json:"protocol"`
	Bits     int    `json:"bits"`
	Address  string `json:"address"`
	Value    string `json:"value"`
	Seed     uint8  `json:"seed"`
	Marker   uint8  `json:"marker"`
	Team     uint8  `json:"team"`
	Weapon   uint8  `json:"weapon"`
	Checksum uint8  `json:"checksum"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

type fireRequest struct {
	Team   *int `json:"team"`
	Weapon *int `json:"weapon"`
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	build := GetVersionInfo()
	response := map[string]interface{}{
		"status":     "running",
		"service":    "lasertag-ir",
		"version":    build.Version,
		"commit":     build.Commit,
		"build_time": build.BuildTime,
		"protocol":   a.codec.Protocol().String(),
	}
	if tc, ok := a.codec.(interface{ Tolerance() int }); ok {
		response["tolerance_percent"] = tc.Tolerance()
	}
	if a.shooter != nil {
		response["seed"] = a.shooter.Seed()
	}
	if a.metrics != nil {
		response["shots_sent"] = a.metrics.GetShotsSent()
		response["frames_decoded"] = a.metrics.GetFramesDecoded()
		response["decode_failures"] = a.metrics.GetDecodeFailures()
	}

	a.writeJSON(w, http.StatusOK, response)
}

// HandleEncode handles POST /api/encode
func (a *API) HandleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	seed := uint8(protocol.DefaultSeed)
	if a.shooter != nil {
		seed = a.shooter.Seed()
	}
	team, err := byteField("team", req.Team, 0)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	weapon, err := byteField("weapon", req.Weapon, 0)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if seed, err = byteField("seed", req.Seed, seed); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	payload := protocol.NewPayload(seed, team, weapon)
	value, address := payload.Pack()
	pulses := a.codec.Encode(value, address)

	a.writeJSON(w, http.StatusOK, encodeResponse{
		Protocol:   a.codec.Protocol().String(),
		Address:    fmt.Sprintf("0x%02X", address),
		Value:      fmt.Sprintf("0x%08X", value),
		Checksum:   payload.Checksum,
		PulseCount: len(pulses),
		Raw:        protocol.FormatPulses(pulses),
	})
}

// HandleDecode handles POST /api/decode
func (a *API) HandleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	pulses, err := protocol.ParsePulses(req.Raw)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.codec.Decode(pulses)
	if err != nil {
		a.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
			"kind":  ir.FailureKind(err),
		})
		return
	}

	payload := protocol.UnpackPayload(res.Value, res.Address)
	resp := decodeResponse{
		Protocol: res.Protocol.String(),
		Bits:     res.Bits,
		Address:  fmt.Sprintf("0x%02X", res.Address),
		Value:    fmt.Sprintf("0x%08X", res.Value),
		Seed:     payload.Seed,
		Marker:   payload.Marker,
		Team:     payload.Team,
		Weapon:   payload.Weapon,
		Checksum: payload.Checksum,
		Valid:    true,
	}
	if verr := payload.Verify(); verr != nil {
		resp.Valid = false
		resp.Error = verr.Error()
	}

	a.writeJSON(w, http.StatusOK, resp)
}

// HandleFire handles POST /api/fire
func (a *API) HandleFire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.shooter == nil {
		a.writeError(w, http.StatusServiceUnavailable, errors.New("no transmitter configured"))
		return
	}

	var req fireRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	team, err := byteField("team", req.Team, a.defaultTeam)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	weapon, err := byteField("weapon", req.Weapon, a.defaultWeapon)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	a.shooter.SendWithTeamAndWeapon(team, weapon)

	a.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"seed":     a.shooter.Seed(),
		"team":     team,
		"weapon":   weapon,
		"checksum": protocol.Checksum(team, weapon),
	})
}

// HandleHits handles GET /api/hits?page=&per_page=&team=&since=
// since is an RFC 3339 timestamp; it takes precedence over team.
func (a *API) HandleHits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.hits == nil {
		a.writeError(w, http.StatusServiceUnavailable, errors.New("hit log disabled"))
		return
	}

	q := r.URL.Query()
	perPage := queryInt(q.Get("per_page"), defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q: want RFC 3339", sinceStr))
			return
		}
		hits, err := a.hits.GetByTimeRange(since, time.Now(), perPage)
		if err != nil {
			a.logger.Error("Failed to load hits", logger.Error(err))
			a.writeError(w, http.StatusInternalServerError, errors.New("failed to load hits"))
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]interface{}{
			"hits":  hits,
			"total": len(hits),
		})
		return
	}

	if teamStr := q.Get("team"); teamStr != "" {
		team, err := strconv.ParseUint(teamStr, 0, 8)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid team %q", teamStr))
			return
		}
		hits, err := a.hits.GetByTeam(uint8(team), perPage)
		if err != nil {
			a.logger.Error("Failed to load hits", logger.Error(err))
			a.writeError(w, http.StatusInternalServerError, errors.New("failed to load hits"))
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]interface{}{
			"hits":  hits,
			"total": len(hits),
		})
		return
	}

	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	hits, total, err := a.hits.GetRecentPaginated(page, perPage)
	if err != nil {
		a.logger.Error("Failed to load hits", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, errors.New("failed to load hits"))
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits":     hits,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// HandleScoreboard handles GET /api/scoreboard
func (a *API) HandleScoreboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.hits == nil {
		a.writeError(w, http.StatusServiceUnavailable, errors.New("hit log disabled"))
		return
	}

	scores, err := a.hits.Scoreboard()
	if err != nil {
		a.logger.Error("Failed to build scoreboard", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, errors.New("failed to build scoreboard"))
		return
	}
	a.writeJSON(w, http.StatusOK, scores)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// byteField range-checks an optional JSON number
func byteField(name string, v *int, def uint8) (uint8, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 0xFF {
		return 0, fmt.Errorf("%s must be 0-255, got %d", name, *v)
	}
	return uint8(*v), nil
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
