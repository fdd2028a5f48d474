package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cadence/pkg/utils"
)

// router builds the local ops API. It is bound to loopback by default; the
// embedding shell is the only intended client.
func (a *App) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods("GET")
	r.HandleFunc("/readyz", a.readyzHandler).Methods("GET")
	r.HandleFunc("/statusz", a.statuszHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/connectivity", a.connectivityHandler).Methods("PUT")
	v1.HandleFunc("/conversations/{id}/messages", a.sendHandler).Methods("POST")
	v1.HandleFunc("/conversations/{id}/transcript", a.transcriptHandler).Methods("GET")
	v1.HandleFunc("/conversations/{id}/read", a.readHandler).Methods("POST")
	v1.HandleFunc("/conversations/{id}/force-complete", a.forceCompleteHandler).Methods("POST")

	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !a.db.Ready() {
		utils.WriteError(w, http.StatusServiceUnavailable, "cache not ready")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

func (a *App) statuszHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"online":        a.conn.IsOnline(),
		"queue_len":     a.orch.Queue().Len(),
		"queue_cap":     a.orch.Queue().Cap(),
		"queue_dropped": a.orch.Queue().Dropped(),
		"pending":       a.orch.PendingCount(),
	})
}

func (a *App) connectivityHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Online bool `json:"online"`
	}
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	a.conn.Set(in.Online)
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"online": in.Online})
}

func (a *App) sendHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	var in struct {
		CompanionID string `json:"companion_id"`
		Text        string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.CompanionID) == "" {
		utils.WriteError(w, http.StatusBadRequest, "companion_id is required")
		return
	}

	msg, err := a.orch.Send(r.Context(), conversationID, in.CompanionID, in.Text)
	if err != nil {
		utils.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, msg)
}

func (a *App) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	companionID := r.URL.Query().Get("companion_id")
	if companionID == "" {
		utils.WriteError(w, http.StatusBadRequest, "companion_id is required")
		return
	}
	msgs, err := a.orch.LoadTranscript(r.Context(), conversationID, companionID)
	if err != nil {
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (a *App) readHandler(w http.ResponseWriter, r *http.Request) {
	a.orch.MarkRead(mux.Vars(r)["id"])
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) forceCompleteHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MarkAsRead bool `json:"mark_as_read"`
	}
	// empty body means force-complete only
	_ = utils.DecodeJSON(r, &in)
	a.orch.ForceCompleteConversation(mux.Vars(r)["id"], in.MarkAsRead)
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startHTTP starts the ops server and returns a channel carrying any fatal
// server error.
func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{Addr: a.cfg.Server.Addr, Handler: a.router()}
	errCh := make(chan error, 1)
	go func() {
		err := a.srv.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()
	return errCh
}
