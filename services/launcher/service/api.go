package service

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/launch_layer/services/launcher/programs"
)

// =============================================================================
// API Routes
// =============================================================================

// RegisterRoutes mounts the launch API on router. /metrics is mounted by the
// process since it is shared with every other collector.
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/create-token", s.handleCreateToken("")).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/pumpfun/create-token", s.handleCreateToken(programs.KindPumpFun)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/launchlab/create-token", s.handleCreateToken(programs.KindLaunchLab)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/tokens/{mint}", s.handleGetToken).Methods(http.MethodGet)
}
