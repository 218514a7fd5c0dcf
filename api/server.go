// Package api exposes the agent over HTTP: session commands, status, the
// local frame archive, and a server-sent-events feed of the ungated live
// state for the dashboard.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/tripwire-data/telematics.report/internal/archive"
	"github.com/tripwire-data/telematics.report/internal/broadcast"
	"github.com/tripwire-data/telematics.report/internal/httputil"
	"github.com/tripwire-data/telematics.report/internal/monitoring"
	"github.com/tripwire-data/telematics.report/internal/security"
	"github.com/tripwire-data/telematics.report/internal/session"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

type Server struct {
	svc     *session.Service
	bus     *broadcast.Broadcaster
	archive *archive.Archive
}

func NewServer(svc *session.Service, bus *broadcast.Broadcaster, archive *archive.Archive) *Server {
	return &Server{
		svc:     svc,
		bus:     bus,
		archive: archive,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/start", s.startHandler)
	mux.HandleFunc("/stop", s.stopHandler)
	mux.HandleFunc("/label", s.labelHandler)
	mux.HandleFunc("/frames", s.framesHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/export", s.exportHandler)
	mux.HandleFunc("/live", s.liveHandler)
	return mux
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.svc.Status())
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.svc.Start(r.Context()); err != nil {
		if err == session.ErrAlreadyStarted {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		// Connect failures leave the service idle; the caller owns retries.
		httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.svc.Status())
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.svc.Stop()
	httputil.WriteJSONOK(w, s.svc.Status())
}

func (s *Server) labelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	label, err := strconv.Atoi(r.FormValue("label"))
	if err != nil {
		httputil.BadRequest(w, "label must be an integer")
		return
	}
	s.svc.ChangeLabel(label)
	httputil.WriteJSONOK(w, s.svc.Status())
}

func (s *Server) framesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if sessionID := r.FormValue("session"); sessionID != "" {
		frames, err := s.archive.SessionFrames(sessionID)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to read archive: %v", err))
			return
		}
		httputil.WriteJSONOK(w, frames)
		return
	}

	limit := 100
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	frames, err := s.archive.Frames(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read archive: %v", err))
		return
	}
	httputil.WriteJSONOK(w, frames)
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ids, err := s.archive.Sessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read archive: %v", err))
		return
	}
	httputil.WriteJSONOK(w, ids)
}

// exportHandler serves one session's frames as a CSV download.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sessionID := r.FormValue("session")
	if sessionID == "" {
		httputil.BadRequest(w, "session is required")
		return
	}
	frames, err := s.archive.SessionFrames(sessionID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read archive: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", security.SanitizeFilename(sessionID)+".csv"))
	if err := archive.WriteCSV(w, frames); err != nil {
		// Headers are already out; all we can do is log.
		monitoring.Logf("csv export of session %s failed: %v", sessionID, err)
	}
}

// liveHandler streams the ungated state feed as server-sent events. Every
// accepted sensor mutation arrives as a `telematics-update` event carrying
// the frame-shaped view of the snapshot; running transitions arrive as
// `status-update` events. This feed bypasses the change gate entirely: the
// dashboard sees raw motion at native sensor rate.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	stateID, stateCh := s.bus.Subscribe()
	defer s.bus.Unsubscribe(stateID)
	statusID, statusCh := s.bus.SubscribeStatus()
	defer s.bus.UnsubscribeStatus(statusID)

	// Initial ping to establish the stream.
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case snap, ok := <-stateCh:
			if !ok {
				return
			}
			st := s.svc.Status()
			view := telemetry.BuildFrame(snap, st.SessionID, st.Label, time.Now())
			if err := writeEvent(w, "telematics-update", view); err != nil {
				return
			}
			flusher.Flush()
		case running, ok := <-statusCh:
			if !ok {
				return
			}
			if err := writeEvent(w, "status-update", map[string]bool{"running": running}); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP mux
// served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("pipeline", "pipeline counters (drops, sheds, readings)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.svc.Status())
	})

	// Live tail of the state feed, same stream the dashboard consumes.
	debug.HandleSilentFunc("tail", s.liveHandler)
}
