package net

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"idle-engine/core/internal/entity"
	"idle-engine/core/internal/prd"
	"idle-engine/core/internal/resources"
	"idle-engine/core/internal/saves"
	"idle-engine/core/internal/sim"
	"idle-engine/core/internal/transform"
)

// Server serves the engine's HTTP API and the WebSocket state feed.
// Every handler that touches simulation state goes through the runner's
// Locked so commands never race a tick.
type Server struct {
	runner     *sim.Runner
	transforms *transform.System
	ledger     *resources.Ledger
	entities   *entity.System
	prd        *prd.Registry
	store      *saves.Store
	metrics    http.Handler
	hub        *Hub
	upgrader   websocket.Upgrader
}

// ServerDeps wires the API onto the composed engine. Runner, Transforms,
// and Ledger are required; the rest degrade gracefully when absent.
type ServerDeps struct {
	Runner     *sim.Runner
	Transforms *transform.System
	Ledger     *resources.Ledger
	Entities   *entity.System
	PRD        *prd.Registry
	Store      *saves.Store
	Metrics    http.Handler
}

// NewServer builds the API server and its hub.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		runner:     deps.Runner,
		transforms: deps.Transforms,
		ledger:     deps.Ledger,
		entities:   deps.Entities,
		prd:        deps.PRD,
		store:      deps.Store,
		metrics:    deps.Metrics,
		hub:        NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Hub exposes the broadcast hub so the embedding server can push state
// after each step.
func (s *Server) Hub() *Hub { return s.hub }

// Routes assembles the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Post("/transforms/{id}/execute", s.handleExecute)
	r.Post("/saves/{slot}", s.handleSave)
	r.Get("/saves/{slot}", s.handleLoad)
	r.Get("/ws", s.handleWS)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type resultResponse struct {
	Success bool       `json:"success"`
	Runs    int        `json:"runs"`
	Error   *errorBody `json:"error,omitempty"`
}

func toResultResponse(res transform.Result) resultResponse {
	out := resultResponse{Success: res.Success, Runs: res.Runs}
	if res.Error != nil {
		out.Error = &errorBody{Code: string(res.Error.Code), Message: res.Error.Message}
	}
	return out
}

// StateMessage is the snapshot pushed to subscribers and served by
// GET /state.
type StateMessage struct {
	Type       string               `json:"type"`
	Step       uint64               `json:"step"`
	Resources  []resources.Snapshot `json:"resources,omitempty"`
	Transforms []transform.Snapshot `json:"transforms,omitempty"`
}

func (s *Server) snapshot() StateMessage {
	var msg StateMessage
	msg.Type = "state"
	s.runner.Locked(func(step uint64) {
		msg.Step = step
		msg.Resources = s.ledger.SnapshotAll()
		msg.Transforms = s.transforms.Snapshots()
	})
	return msg
}

// BroadcastState pushes the current snapshot to every subscriber. The
// embedding server calls this from the runner's AfterStep hook.
func (s *Server) BroadcastState() {
	if s.hub.Count() == 0 {
		return
	}
	s.hub.Broadcast(s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"step":        s.runner.Step(),
		"subscribers": s.hub.Count(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

type executeRequest struct {
	Runs int `json:"runs"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	var res transform.Result
	s.runner.Locked(func(step uint64) {
		res = s.transforms.ExecuteTransform(id, step, &transform.ExecuteOptions{Runs: req.Runs})
	})

	status := http.StatusOK
	if !res.Success {
		status = statusForCode(res.Error)
	}
	writeJSON(w, status, toResultResponse(res))
}

func statusForCode(err *transform.Error) int {
	if err == nil {
		return http.StatusUnprocessableEntity
	}
	switch err.Code {
	case transform.CodeUnknownTransform:
		return http.StatusNotFound
	case transform.CodeInvalidRuns, transform.CodeInvalidTrigger:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "saves disabled"})
		return
	}
	slot := chi.URLParam(r, "slot")

	var envelope saves.Envelope
	s.runner.Locked(func(step uint64) {
		envelope = saves.Envelope{
			Step:       step,
			Transforms: s.transforms.SerializeState(),
			Resources:  s.ledger.SnapshotAll(),
		}
		if s.entities != nil {
			envelope.Entities = s.entities.SerializeAll()
		}
		if s.prd != nil {
			envelope.PRD = s.prd.CaptureState()
		}
	})

	payload, err := saves.Encode(envelope)
	if err != nil {
		log.Printf("api: encode save %q: %v", slot, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"})
		return
	}
	if err := s.store.Save(r.Context(), slot, envelope.Step, payload); err != nil {
		log.Printf("api: save slot %q: %v", slot, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "save failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "step": envelope.Step})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "saves disabled"})
		return
	}
	slot := chi.URLParam(r, "slot")

	_, payload, err := s.store.Load(r.Context(), slot)
	if errors.Is(err, saves.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "slot not found"})
		return
	}
	if err != nil {
		log.Printf("api: load slot %q: %v", slot, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "load failed"})
		return
	}
	envelope, err := saves.Decode(payload)
	if err != nil {
		log.Printf("api: decode slot %q: %v", slot, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "decode failed"})
		return
	}

	var restoredAt uint64
	s.runner.Locked(func(step uint64) {
		restoredAt = step
		rebase := &transform.Rebase{SavedStep: envelope.Step, CurrentStep: step}
		s.transforms.RestoreState(envelope.Transforms, rebase)
		s.ledger.RestoreAll(envelope.Resources)
		if s.entities != nil {
			s.entities.RestoreAll(rebaseInstances(envelope.Entities, envelope.Step, step))
		}
		if s.prd != nil {
			s.prd.RestoreState(envelope.PRD)
		}
	})
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "savedStep": envelope.Step, "restoredAtStep": restoredAt})
}

// rebaseInstances shifts assigned instances' return steps by the same
// delta the transform batches shift, so an instance still comes back on
// the step its mission delivers. The never-return sentinel stays put.
func rebaseInstances(records []entity.SerializedInstance, savedStep, currentStep uint64) []entity.SerializedInstance {
	delta := int64(currentStep) - int64(savedStep)
	if delta == 0 || len(records) == 0 {
		return records
	}
	out := make([]entity.SerializedInstance, len(records))
	copy(out, records)
	for i := range out {
		if out[i].AssignedTo == "" || out[i].ReturnStep == transform.NeverReturnStep {
			continue
		}
		if delta >= 0 {
			out[i].ReturnStep += uint64(delta)
		} else if back := uint64(-delta); back >= out[i].ReturnStep {
			out[i].ReturnStep = 0
		} else {
			out[i].ReturnStep -= back
		}
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade: %v", err)
		return
	}
	id := s.hub.Subscribe(conn)

	// Send the current snapshot immediately so subscribers do not wait
	// for the next tick.
	if data, err := json.Marshal(s.snapshot()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	go func() {
		defer s.hub.Unsubscribe(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: write response: %v", err)
	}
}
