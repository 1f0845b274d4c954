package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/version"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxBody    = 64 << 10
)

func (s *Server) HandleBackendSearch(w http.ResponseWriter, r *http.Request) {
	query := core.NormalizeQuery(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter", "Query parameter 'q' is required")
		return
	}
	if s.opts.Backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Search unavailable", "No search backend configured")
		return
	}

	items, err := s.opts.Backend.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}
	if items == nil {
		items = []core.CandidateItem{}
	}
	s.writeJSON(w, http.StatusOK, BackendSearchResponse{Results: items})
}

// HandleSuggest returns ranked results for q, or the browse list (recent
// history and popular destinations) when q is blank.
func (s *Server) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	query := core.NormalizeQuery(r.URL.Query().Get("q"))

	if query == "" {
		resp := SuggestResponse{
			Mode:    "browse",
			Results: []core.RankedItem{},
			Popular: s.opts.Popular,
		}
		if s.opts.History != nil {
			resp.Recent = s.opts.History.Recent(s.opts.RecentHistory)
		}
		resp.Count = len(resp.Recent) + len(resp.Popular)
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	if s.opts.Searcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Search unavailable", "No search backend configured")
		return
	}
	results, err := s.opts.Searcher.Search(r.Context(), query)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, status, "Search failed", err.Error())
		return
	}
	if results == nil {
		results = []core.RankedItem{}
	}
	s.writeJSON(w, http.StatusOK, SuggestResponse{
		Query:   query,
		Mode:    "search",
		Results: results,
		Count:   len(results),
	})
}

func (s *Server) HandleRates(w http.ResponseWriter, r *http.Request) {
	if s.opts.Rates == nil {
		s.writeError(w, http.StatusNotFound, "Feed not configured", "Currency rates are disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.opts.Rates.Get(r.Context()))
}

func (s *Server) HandleWeather(w http.ResponseWriter, r *http.Request) {
	if s.opts.Weather == nil {
		s.writeError(w, http.StatusNotFound, "Feed not configured", "Weather is disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.opts.Weather.Get(r.Context()))
}

func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	s.writeHistory(w)
}

func (s *Server) HandleCommit(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}

	var req CommitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query", "Field 'query' is required")
		return
	}
	if err := s.opts.History.Commit(req.Query); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save history", err.Error())
		return
	}
	s.writeHistory(w)
}

func (s *Server) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	if err := s.opts.History.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to clear history", err.Error())
		return
	}
	s.writeHistory(w)
}

func (s *Server) HandleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	entry := r.PathValue("entry")
	if strings.TrimSpace(entry) == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid path", "History entry is required")
		return
	}
	if err := s.opts.History.Remove(entry); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to update history", err.Error())
		return
	}
	s.writeHistory(w)
}

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.opts.History == nil {
		s.writeError(w, http.StatusNotFound, "History disabled", "No history store configured")
		return false
	}
	return true
}

func (s *Server) writeHistory(w http.ResponseWriter) {
	entries := s.opts.History.Entries()
	if entries == nil {
		entries = []string{}
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
		Listeners: s.opts.Hub.Size(),
	}

	s.writeJSON(w, http.StatusOK, health)
}

// HandleEvents upgrades to a websocket, sends an init frame and then relays
// hub events until either side goes away. Inbound frames are ignored.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := s.opts.Hub.Register()
	defer s.opts.Hub.Unregister(id)
	s.logger.Debugf("events listener %d connected", id)

	hello := InitMessage{
		Type:    "init",
		Version: version.APIVersion(),
		History: []string{},
		Popular: s.opts.Popular,
	}
	if s.opts.History != nil {
		if recent := s.opts.History.Recent(s.opts.RecentHistory); recent != nil {
			hello.History = recent
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		s.logger.Debugf("events listener %d: init write failed: %v", id, err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxBody)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			s.logger.Debugf("events listener %d disconnected", id)
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
