package admin

import (
	"encoding/json"
	"io"
	"net/http"
)

// Server wraps a Router as an http.Handler, matching the literal wire
// contract in spec.md §6: application/json responses, CORS wide open,
// error bodies {error, message?}.
type Server struct {
	router *Router
}

// NewServer wraps router as an http.Handler.
func NewServer(router *Router) *Server {
	return &Server{router: router}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	resp := s.router.Handle(Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
		Body:       body,
	})

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}
