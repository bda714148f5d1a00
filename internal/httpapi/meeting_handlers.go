package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"meetbook.org/internal/audit"
	"meetbook.org/internal/auth"
	"meetbook.org/internal/meetings"
	"meetbook.org/internal/obs"
)

const streamKeepAlive = 15 * time.Second

type meetingRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type meetingsPage struct {
	Meetings []meetings.Meeting
}

func (a *API) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	items, err := a.meetings.List(r.Context(), userID)
	if err != nil {
		obs.Logger().ErrorContext(r.Context(), "list meetings", "user_id", userID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []meetings.Meeting{}
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"meetings": items})
		return
	}
	a.render(w, r, "meetings", meetingsPage{Meetings: items})
}

func (a *API) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if err := decodeBody(r, &req, func(get func(string) string) {
		req.Name, req.Description = get("name"), get("description")
	}); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	m, err := a.meetings.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, meetings.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		obs.Logger().ErrorContext(r.Context(), "create meeting", "user_id", userID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "meeting.created", map[string]any{"meeting_id": m.ID})
	redirect(w, r, "/meetings")
}

// handleDeleteMeeting redirects to the list whether or not anything was
// deleted, so a foreign id looks the same as a missing one.
func (a *API) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id := r.PathValue("id")
	err := a.meetings.Delete(r.Context(), userID, id)
	switch {
	case err == nil:
		_ = audit.LogEvent(r.Context(), "meeting.deleted", map[string]any{"meeting_id": id})
	case errors.Is(err, meetings.ErrNotFoundOrNotOwner):
		obs.Logger().DebugContext(r.Context(), "delete matched no owned meeting", "user_id", userID)
	default:
		obs.Logger().ErrorContext(r.Context(), "delete meeting", "user_id", userID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	redirect(w, r, "/meetings")
}

// handleMeetingEvents streams the caller's meeting events as Server-Sent Events.
func (a *API) handleMeetingEvents(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// The server-wide write timeout would cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	userID, _ := auth.UserIDFromContext(r.Context())
	ch := a.stream.Subscribe(r.Context(), userID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
		case <-a.closing:
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		}
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
