package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medidesk.org/internal/auth"
)

const streamKeepAlive = 25 * time.Second

func (a *API) handleNotificationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "authentication required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	items, err := a.notifs.ListByUser(r.Context(), p.ID, unreadOnly)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleNotificationResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	if rest == "stream" {
		a.streamNotifications(w, r)
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || sub != "read" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "authentication required")
		return
	}
	n, err := a.notifs.MarkReadFor(r.Context(), id, p.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// streamNotifications holds the connection open and forwards the caller's
// notifications as server-sent events until the client goes away.
func (a *API) streamNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "authentication required")
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, codeDown, "streaming is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := a.stream.Subscribe(r.Context(), p.ID)
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
