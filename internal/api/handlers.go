package api

import (
	"encoding/json"
	"net/http"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "healthy",
		"version": Version,
	}
	if err := s.loop.Call(r.Context(), func() {
		status["running"] = s.svc.Running()
		status["clients"] = s.svc.Clients()
	}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleGetApplications(w http.ResponseWriter, r *http.Request) {
	var apps []Application
	if !s.onLoop(w, r, func(c *taskbar.Client) error {
		apps = s.applications(c, currentOnly(r))
		return nil
	}) {
		return
	}
	writeJSON(w, apps)
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	app := host.AppID(q.Get("app"))
	all := q.Get("all") == "1" || q.Get("all") == "true"

	var wins []Window
	if !s.onLoop(w, r, func(c *taskbar.Client) error {
		if app != "" {
			// a scoped client sees only its application's windows
			scoped := s.svc.Attach(app, nil)
			defer scoped.Detach()
			c = scoped
		}
		wins = s.windows(c, currentOnly(r), all)
		return nil
	}) {
		return
	}
	writeJSON(w, wins)
}

func (s *Server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	var favs []string
	if !s.onLoop(w, r, func(c *taskbar.Client) error {
		favs = favoriteIDs(c.Favorites())
		return nil
	}) {
		return
	}
	writeJSON(w, favs)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		App string `json:"app"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.editFavorites(w, r, func() error { return s.svc.Pin(host.AppID(req.App)) })
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.editFavorites(w, r, func() error { return s.svc.Unpin(host.AppID(id)) })
}

func (s *Server) handleMoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.editFavorites(w, r, func() error { return s.svc.MoveFavorite(host.AppID(id), req.Position) })
}

func (s *Server) editFavorites(w http.ResponseWriter, r *http.Request, edit func() error) {
	var favs []string
	if !s.onLoop(w, r, func(c *taskbar.Client) error {
		if err := edit(); err != nil {
			return err
		}
		favs = favoriteIDs(c.Favorites())
		return nil
	}) {
		return
	}
	writeJSON(w, favs)
}

func favoriteIDs(apps []host.AppID) []string {
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, string(app))
	}
	return ids
}
