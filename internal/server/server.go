// Package server exposes the engine over HTTP: a JSON API for state and
// updates, a server-sent-event stream and a websocket stream of every state
// change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aurumlabs/goldwatch/internal/database"
	"github.com/aurumlabs/goldwatch/internal/engine"
)

type Server struct {
	engine *engine.Engine
	db     *database.Database
	broker *Broker
	http   *http.Server
}

func New(addr string, eng *engine.Engine, db *database.Database) *Server {
	s := &Server{
		engine: eng,
		db:     db,
		broker: NewBroker(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/profile", s.handleUpdateProfile)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/tick", s.handleForceTick)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.Handle("GET /api/events", s.broker)
	mux.HandleFunc("GET /ws", s.handleWebsocket)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the broker fan-out, bridges engine state changes into it and
// serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.broker.Run()

	states, cancel := s.engine.Subscribe()
	defer cancel()
	go func() {
		for st := range states {
			s.broker.Publish(st)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetState())
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch engine.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := s.engine.UpdateProfile(patch)
	if err != nil {
		writeValidation(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch engine.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settings, err := s.engine.UpdateSettings(patch)
	if err != nil {
		writeValidation(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleForceTick(w http.ResponseWriter, r *http.Request) {
	err := s.engine.ForceTick(r.Context())
	switch {
	case errors.Is(err, engine.ErrTickInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "skipped", "reason": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "reason": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	st := s.engine.GetState()
	outcomes, err := s.db.RecentOutcomes(100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prices":   st.PriceHistory,
		"outcomes": outcomes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeValidation(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
