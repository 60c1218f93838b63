package coreapp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/komodo-run/komodo/bridge"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/schedule"
	"github.com/komodo-run/komodo/internal/stackaction"
	"github.com/rs/zerolog/log"
)

func (a *App) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Alerts.OpenAlerts())
}

type stackActionRequest struct {
	ServerID       string   `json:"server_id"`
	OperatorID     string   `json:"operator_id"`
	Project        string   `json:"project"`
	Services       []string `json:"services"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	RemoveOrphans  bool     `json:"remove_orphans"`
}

func (a *App) handleStackAction(w http.ResponseWriter, r *http.Request) {
	stackID := chi.URLParam(r, "id")
	action := stackaction.Action(chi.URLParam(r, "action"))

	var body stackActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := a.Executor.Execute(r.Context(), action, stackaction.Request{
		StackID:    stackID,
		ServerID:   body.ServerID,
		OperatorID: body.OperatorID,
		Command: stackaction.ComposeCommand{
			Project:        body.Project,
			Action:         action,
			Services:       body.Services,
			TimeoutSeconds: body.TimeoutSeconds,
			RemoveOrphans:  body.RemoveOrphans,
		},
	})
	result := "ok"
	if err != nil {
		result = "error"
		log.Warn().Err(err).Str("stack", stackID).Msg("coreapp: stack action failed")
	}
	a.Metrics.ObserveStackAction(string(action), result)
	writeJSON(w, http.StatusOK, update)
}

type terminalTokenResponse struct {
	Token string `json:"token"`
}

func (a *App) handleIssueTerminalToken(w http.ResponseWriter, r *http.Request) {
	token, err := a.Tokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue terminal token")
		return
	}
	writeJSON(w, http.StatusOK, terminalTokenResponse{Token: token})
}

var coreUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleTerminalWS is the browser-facing leg of the two-stage upgrade
// (spec.md §4.10): validate the single-use token, then dial the target
// Periphery's own terminal WebSocket and proxy frames both ways.
func (a *App) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	serverID := r.URL.Query().Get("server_id")
	name := r.URL.Query().Get("name")
	shell := r.URL.Query().Get("shell")

	if !a.Tokens.Consume(token) {
		writeError(w, http.StatusUnauthorized, "invalid or expired terminal token")
		return
	}

	client, err := a.bridges.clientFor(serverID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	dialCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	upstream, err := client.DialTerminal(dialCtx, name, shell)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to reach periphery terminal")
		return
	}
	defer upstream.Close()

	downstream, err := coreUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("coreapp: terminal upgrade failed")
		return
	}
	defer downstream.Close()

	bridge.ProxyTerminal(r.Context(), downstream, upstream)
}

func (a *App) handleListProcedures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Procedures.List())
}

type procedureRequest struct {
	Enabled bool                  `json:"enabled"`
	Format  models.ScheduleFormat `json:"format"`
	Expr    string                `json:"expr"`
	Tz      string                `json:"tz"`
}

// handleUpsertProcedure registers or replaces a procedure schedule in the
// registry the scheduler's ProcedureLister reads from (spec.md §4.6).
func (a *App) handleUpsertProcedure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body procedureRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ps := schedule.ProcedureSchedule{
		ID:      id,
		Enabled: body.Enabled,
		Format:  body.Format,
		Expr:    body.Expr,
		Tz:      body.Tz,
	}
	if err := a.Procedures.Upsert(ps); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save procedure schedule")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
