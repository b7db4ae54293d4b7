// Package adminapi exposes the election coordinator's status and a small
// set of operator actions over HTTP, in the same mux+cors shape the
// teacher uses for its trading REST surface.
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/matsnd/eventstore/pkg/elections"
)

// Dispatch hands a message to the same serial dispatcher that drives the
// coordinator's Handle. The admin API never calls Handle directly.
type Dispatch func(elections.Message)

// StatusSource is satisfied by *elections.Coordinator.
type StatusSource interface {
	Status() elections.Status
}

// Server is the admin/observability HTTP surface for one node.
type Server struct {
	status   StatusSource
	dispatch Dispatch
	router   *mux.Router
	log      *zap.SugaredLogger
	feed     *Feed
}

// NewServer builds a Server wired to a coordinator's Status() and its
// message dispatcher. The returned Server owns a Feed (reachable via
// Feed()) that the caller must wire into the coordinator's Publisher and
// run with "go server.Feed().Run()" before serving Handler().
func NewServer(status StatusSource, dispatch Dispatch, log *zap.SugaredLogger) *Server {
	s := &Server{status: status, dispatch: dispatch, router: mux.NewRouter(), log: log, feed: NewFeed(log)}
	s.setupRoutes()
	return s
}

// Feed returns the ElectionsDone broadcast hub backing GET /v1/events.
func (s *Server) Feed() *Feed { return s.feed }

// SetStatusSource binds the coordinator whose Status() backs GET
// /v1/status. It exists because the coordinator is constructed after the
// admin server (the coordinator's Publisher is the server's Feed), so the
// two can't be wired in one NewServer call.
func (s *Server) SetStatusSource(status StatusSource) { s.status = status }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/actions/start-elections", s.handleStartElections).Methods("POST")
	api.HandleFunc("/actions/resign", s.handleResign).Methods("POST")
	api.HandleFunc("/actions/priority", s.handleSetPriority).Methods("POST")
	api.HandleFunc("/actions/shutdown", s.handleShutdown).Methods("POST")
	api.HandleFunc("/events", s.handleEvents)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped http.Handler to pass to http.Serve or
// http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	respondJSON(w, statusResponse{
		State:             st.State.String(),
		LastAttemptedView: st.LastAttemptedView,
		LastInstalledView: st.LastInstalledView,
		Leader:            nodeIDString(st.Leader),
		NodePriority:      st.NodePriority,
		ClusterSize:       st.ClusterSize,
	})
}

func (s *Server) handleStartElections(w http.ResponseWriter, r *http.Request) {
	s.dispatch(elections.StartElections{})
	respondJSON(w, map[string]string{"status": "dispatched"})
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	s.dispatch(elections.ResignNode{})
	respondJSON(w, map[string]string{"status": "dispatched"})
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	var req setPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.dispatch(elections.SetNodePriority{Value: req.Value})
	respondJSON(w, map[string]string{"status": "dispatched"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.dispatch(elections.BecomeShuttingDown{})
	respondJSON(w, map[string]string{"status": "dispatched"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func nodeIDString(id *elections.NodeID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
