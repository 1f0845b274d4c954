package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/feeds"
	"github.com/rubiojr/yatra/pkg/log"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/ttlcache"
)

// Searcher returns ranked results for a query. *dispatch.Dispatcher
// implements it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]core.RankedItem, error)
}

// History is the subset of *history.Store the API needs.
type History interface {
	Commit(entry string) error
	Remove(entry string) error
	Clear() error
	Entries() []string
	Recent(n int) []string
}

type Options struct {
	// Backend answers GET /search with unranked candidates.
	Backend  core.SearchProvider
	Searcher Searcher
	History  History
	Rates    *ttlcache.Cache[feeds.Rates]
	Weather  *ttlcache.Cache[feeds.Weather]
	Hub      *notify.Hub

	Popular       []string
	RecentHistory int
}

type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewServer(opts Options) *Server {
	if opts.RecentHistory <= 0 {
		opts.RecentHistory = 5
	}
	if opts.Hub == nil {
		opts.Hub = notify.NewHub(0)
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS is already wide open for the JSON routes.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.For("api"),
	}
}

// Hub returns the hub events are read from.
func (s *Server) Hub() *notify.Hub {
	return s.opts.Hub
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
