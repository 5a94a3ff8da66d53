package offlinecache

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// bridgePrefix is the path under which the worker serves its out-of-band
// control endpoints, so they never collide with origin content.
const bridgePrefix = "/.offline-cache/"

// Message types understood by the bridge.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
)

// SyncTagBackgroundSync is the sync tag that drains the offline action
// queue.
const SyncTagBackgroundSync = "background-sync"

// Notifier displays push notifications.
type Notifier interface {
	Notify(n Notification) error
}

// Notification is the rendered form of a push payload.
type Notification struct {
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	Tag     string          `json:"tag,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Actions []string        `json:"actions,omitempty"`
}

// logNotifier logs notifications instead of displaying them.
type logNotifier struct {
	log zerolog.Logger
}

func (n logNotifier) Notify(notification Notification) error {
	n.log.Info().
		Str("title", notification.Title).
		Str("body", notification.Body).
		Str("tag", notification.Tag).
		Msg("Notification")
	return nil
}

type message struct {
	Type string `json:"type"`
}

type versionReply struct {
	Version string `json:"version"`
}

func (w *Worker) handleBridge(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, bridgePrefix) {
	case "message":
		w.handleMessage(rw, r)
	case "push":
		w.handlePush(rw, r)
	case "sync":
		w.handleSync(rw, r)
	case "queue":
		w.handleQueue(rw, r)
	default:
		http.NotFound(rw, r)
	}
}

func (w *Worker) handleMessage(rw http.ResponseWriter, r *http.Request) {
	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(rw, "Invalid message", http.StatusBadRequest)
		return
	}
	switch msg.Type {
	case MessageSkipWaiting:
		if err := w.SkipWaiting(); err != nil {
			w.log.Error().Err(err).Msg("Could not activate")
			http.Error(rw, "Could not activate", http.StatusInternalServerError)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
	case MessageGetVersion:
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(versionReply{Version: w.version})
	default:
		http.Error(rw, "Unknown message type", http.StatusBadRequest)
	}
}

func (w *Worker) handlePush(rw http.ResponseWriter, r *http.Request) {
	var notification Notification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		http.Error(rw, "Invalid push payload", http.StatusBadRequest)
		return
	}
	notification.Actions = []string{"open", "dismiss"}
	if err := w.notifier.Notify(notification); err != nil {
		w.log.Error().Err(err).Str("title", notification.Title).Msg("Could not display notification")
		http.Error(rw, "Could not display notification", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(notification)
}

func (w *Worker) handleSync(rw http.ResponseWriter, r *http.Request) {
	if tag := r.URL.Query().Get("tag"); tag != SyncTagBackgroundSync {
		http.Error(rw, "Unknown sync tag", http.StatusNotFound)
		return
	}
	pending := w.queue.Drain(r.Context())
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]int{"pending": pending})
}

func (w *Worker) handleQueue(rw http.ResponseWriter, r *http.Request) {
	var action struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		http.Error(rw, "Invalid action", http.StatusBadRequest)
		return
	}
	if err := w.queue.Enqueue(action.Type, action.Data); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}
