package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", s.HandleBackendSearch)
	mux.HandleFunc("GET /api/suggest", s.HandleSuggest)
	mux.HandleFunc("GET /api/rates", s.HandleRates)
	mux.HandleFunc("GET /api/weather", s.HandleWeather)
	mux.HandleFunc("GET /api/history", s.HandleHistory)
	mux.HandleFunc("POST /api/history", s.HandleCommit)
	mux.HandleFunc("DELETE /api/history", s.HandleClearHistory)
	mux.HandleFunc("DELETE /api/history/{entry}", s.HandleRemoveHistory)
	mux.HandleFunc("GET /health", s.HandleHealth)
}

// Handler returns every route behind the CORS middleware. JSON routes are
// gzip compressed; the events socket is mounted outside the compressor since
// it hijacks the connection.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	s.RegisterRoutes(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /api/events", s.HandleEvents)
	root.Handle("/", gzhttp.GzipHandler(api))

	return CorsMiddleware(root)
}
