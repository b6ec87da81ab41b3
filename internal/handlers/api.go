// Package handlers exposes the simulation control API: operator login,
// episode control, track and profile management, and race standings.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/auth"
	"github.com/ukydev/raceline/internal/db"
	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/race"
	"github.com/ukydev/raceline/internal/sim"
	"github.com/ukydev/raceline/internal/track"
)

// PolicyFactory supplies per-agent policies for an episode. The evolution
// collaborator plugs in here.
type PolicyFactory func(count int, profile models.Profile) []sim.Policy

// API owns the mutable server state behind the control routes.
type API struct {
	authService *auth.Service
	factory     PolicyFactory

	// Realtime paces started episodes at the display tick rate.
	Realtime bool

	mu      sync.Mutex
	track   *track.Track
	profile models.Profile
	loop    *sim.Loop
	race    *race.Manager
	tracks  *db.TrackCollection // optional named-track library
	trained bool                // an episode has produced a population under profile
}

// NewAPI wires the control surface around an initial track and profile.
func NewAPI(authService *auth.Service, tr *track.Track, profile models.Profile, factory PolicyFactory) *API {
	return &API{
		authService: authService,
		factory:     factory,
		track:       tr,
		profile:     profile,
	}
}

// SetRace attaches a race manager so its standings are served.
func (a *API) SetRace(m *race.Manager) {
	a.mu.Lock()
	a.race = m
	a.mu.Unlock()
}

// SetTrackStore attaches the MongoDB-backed track library. Without it the
// library routes report 404 and uploaded tracks live in memory only.
func (a *API) SetTrackStore(store *db.TrackCollection) {
	a.mu.Lock()
	a.tracks = store
	a.mu.Unlock()
}

func (a *API) trackStore() *db.TrackCollection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracks
}

// World returns the world of the current loop, or nil before the first
// episode.
func (a *API) World() *sim.World {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop == nil {
		return nil
	}
	return a.loop.World()
}

// Router mounts all control routes. Mutating routes require an operator
// token.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", a.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/simulation/state", a.SimulationState).Methods(http.MethodGet)
	r.HandleFunc("/api/track", a.GetTrack).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks", a.ListTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/{name}", a.GetStoredTrack).Methods(http.MethodGet)
	r.HandleFunc("/api/race/state", a.RaceState).Methods(http.MethodGet)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(a.authService.Middleware)
	protected.HandleFunc("/simulation/start", a.StartEpisode).Methods(http.MethodPost)
	protected.HandleFunc("/simulation/pause", a.PauseEpisode).Methods(http.MethodPost)
	protected.HandleFunc("/simulation/resume", a.ResumeEpisode).Methods(http.MethodPost)
	protected.HandleFunc("/simulation/stop", a.StopEpisode).Methods(http.MethodPost)
	protected.HandleFunc("/track", a.PutTrack).Methods(http.MethodPut)
	protected.HandleFunc("/tracks/{name}/load", a.LoadStoredTrack).Methods(http.MethodPost)
	protected.HandleFunc("/profile", a.PutProfile).Methods(http.MethodPut)
	return r
}

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login exchanges the operator password for a bearer token.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	token, err := a.authService.Login(req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// SimulationState serves the current tick snapshot.
func (a *API) SimulationState(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	loop := a.loop
	a.mu.Unlock()

	if loop == nil {
		writeJSON(w, http.StatusOK, models.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, loop.World().Snapshot())
}

// StartEpisode spawns a fresh episode. Body: {"count": N}.
func (a *API) StartEpisode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Count < 1 {
		http.Error(w, "count must be at least 1", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop != nil && a.loop.Running() {
		http.Error(w, "Simulation already running", http.StatusConflict)
		return
	}

	world := sim.NewWorld(a.track, a.profile)
	world.ResetEpisode(req.Count)
	policies := a.factory(req.Count, a.profile)
	loop := sim.NewLoop(world, policies)
	loop.Realtime = a.Realtime
	loop.Start()

	a.loop = loop
	a.trained = true

	log.WithFields(log.Fields{"count": req.Count, "profile": a.profile.Name}).Info("episode started")
	writeJSON(w, http.StatusOK, map[string]interface{}{"started": true, "count": req.Count})
}

// PauseEpisode suspends ticking at the next tick boundary.
func (a *API) PauseEpisode(w http.ResponseWriter, r *http.Request) {
	a.withLoop(w, func(l *sim.Loop) {
		l.Pause()
		writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
	})
}

// ResumeEpisode continues a paused episode.
func (a *API) ResumeEpisode(w http.ResponseWriter, r *http.Request) {
	a.withLoop(w, func(l *sim.Loop) {
		l.Resume()
		writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
	})
}

// StopEpisode terminates the episode loop.
func (a *API) StopEpisode(w http.ResponseWriter, r *http.Request) {
	a.withLoop(w, func(l *sim.Loop) {
		l.Stop()
		writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
	})
}

func (a *API) withLoop(w http.ResponseWriter, fn func(*sim.Loop)) {
	a.mu.Lock()
	loop := a.loop
	a.mu.Unlock()

	if loop == nil {
		http.Error(w, "No simulation", http.StatusNotFound)
		return
	}
	fn(loop)
}

// GetTrack serves the current track as a portable document.
func (a *API) GetTrack(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	tr := a.track
	a.mu.Unlock()

	doc, err := tr.ToDocument("")
	if err != nil {
		http.Error(w, "Failed to encode track", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PutTrack replaces the track. Rejected while an episode is running.
func (a *API) PutTrack(w http.ResponseWriter, r *http.Request) {
	var doc track.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	tr, err := track.FromDocument(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop != nil && a.loop.Running() {
		http.Error(w, "Cannot replace track while a simulation runs", http.StatusConflict)
		return
	}
	a.track = tr
	log.WithFields(log.Fields{"width": tr.Width, "height": tr.Height, "gates": len(tr.Gates)}).Info("track replaced")

	if a.tracks != nil && doc.Name != "" {
		if err := a.tracks.InsertTrack(r.Context(), doc); err != nil {
			log.WithError(err).WithField("name", doc.Name).Warn("failed to persist track")
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListTracks serves the names in the track library.
func (a *API) ListTracks(w http.ResponseWriter, r *http.Request) {
	store := a.trackStore()
	if store == nil {
		http.Error(w, "No track store configured", http.StatusNotFound)
		return
	}
	names, err := store.ListTrackNames(r.Context())
	if err != nil {
		http.Error(w, "Failed to list tracks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": names})
}

// GetStoredTrack serves one stored track document by name.
func (a *API) GetStoredTrack(w http.ResponseWriter, r *http.Request) {
	store := a.trackStore()
	if store == nil {
		http.Error(w, "No track store configured", http.StatusNotFound)
		return
	}
	doc, err := store.FindTrackByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// LoadStoredTrack swaps the current track for a stored one. Rejected while
// an episode is running.
func (a *API) LoadStoredTrack(w http.ResponseWriter, r *http.Request) {
	store := a.trackStore()
	if store == nil {
		http.Error(w, "No track store configured", http.StatusNotFound)
		return
	}
	name := mux.Vars(r)["name"]
	doc, err := store.FindTrackByName(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	tr, err := track.FromDocument(*doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop != nil && a.loop.Running() {
		http.Error(w, "Cannot replace track while a simulation runs", http.StatusConflict)
		return
	}
	a.track = tr
	log.WithField("name", name).Info("stored track loaded")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PutProfile replaces the vehicle profile. Once a population has been
// trained, a profile whose sensor topology differs is rejected before any
// simulation runs; compatible changes that may still degrade a trained
// policy are returned as warnings.
func (a *API) PutProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop != nil && a.loop.Running() {
		http.Error(w, "Cannot replace profile while a simulation runs", http.StatusConflict)
		return
	}

	var warnings []string
	if a.trained {
		if !a.profile.TopologyCompatible(p) {
			http.Error(w, "Profile topology (ray count / drift) does not match the trained population", http.StatusConflict)
			return
		}
		warnings = a.profile.CompatibilityWarnings(p)
		for _, warning := range warnings {
			log.WithField("warning", warning).Warn("profile change may degrade trained policies")
		}
	}

	a.profile = p
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "warnings": warnings})
}

// RaceState serves the current race snapshot.
func (a *API) RaceState(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	m := a.race
	a.mu.Unlock()

	if m == nil {
		http.Error(w, "No race", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}
