package offlinecache

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/offline-cache/offline-cache/cache"

	"github.com/rs/zerolog"
)

type recordingNotifier struct {
	notifications []Notification
}

func (n *recordingNotifier) Notify(notification Notification) error {
	n.notifications = append(n.notifications, notification)
	return nil
}

func TestSkipWaitingMessageActivatesWorker(t *testing.T) {
	logger := zerolog.Nop()
	w := CreateWorker(Config{Store: cache.NewMemCache(), Logger: &logger})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/.offline-cache/message", strings.NewReader(`{"type":"SKIP_WAITING"}`))
	w.ServeHTTP(rr, req)

	if rr.Result().StatusCode != http.StatusAccepted {
		t.Fatalf("Status is %d", rr.Result().StatusCode)
	}
	if state := w.State(); state != StateActivated {
		t.Fatalf("State is %s", state)
	}
}

func TestGetVersionMessage(t *testing.T) {
	logger := zerolog.Nop()
	w := CreateWorker(Config{Store: cache.NewMemCache(), Version: "v2", Logger: &logger})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/.offline-cache/message", strings.NewReader(`{"type":"GET_VERSION"}`))
	w.ServeHTTP(rr, req)

	var reply struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Version != "v2" {
		t.Fatalf("Version is %q", reply.Version)
	}
}

func TestUnknownMessageType(t *testing.T) {
	logger := zerolog.Nop()
	w := CreateWorker(Config{Store: cache.NewMemCache(), Logger: &logger})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/.offline-cache/message", strings.NewReader(`{"type":"NO_SUCH_THING"}`))
	w.ServeHTTP(rr, req)

	if rr.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("Status is %d", rr.Result().StatusCode)
	}
}

func TestBridgeRequiresPost(t *testing.T) {
	logger := zerolog.Nop()
	w := CreateWorker(Config{Store: cache.NewMemCache(), Logger: &logger})

	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("GET", "/.offline-cache/message", nil))

	if rr.Result().StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Status is %d", rr.Result().StatusCode)
	}
}

func TestPushDisplaysNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	logger := zerolog.Nop()
	w := CreateWorker(Config{Store: cache.NewMemCache(), Notifier: notifier, Logger: &logger})

	rr := httptest.NewRecorder()
	payload := `{"title":"New song added","body":"Check out the latest track"}`
	req := httptest.NewRequest("POST", "/.offline-cache/push", strings.NewReader(payload))
	w.ServeHTTP(rr, req)

	if rr.Result().StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", rr.Result().StatusCode)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("Got %d notifications", len(notifier.notifications))
	}
	notification := notifier.notifications[0]
	if notification.Title != "New song added" {
		t.Fatalf("Title is %q", notification.Title)
	}
	if len(notification.Actions) != 2 || notification.Actions[0] != "open" || notification.Actions[1] != "dismiss" {
		t.Fatalf("Actions are %v", notification.Actions)
	}
}

func TestSyncDrainsQueuedActions(t *testing.T) {
	likeCount := 0
	var likedSong string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/songs/like", func(rw http.ResponseWriter, r *http.Request) {
		likeCount++
		var data struct {
			SongId string `json:"songId"`
		}
		json.NewDecoder(r.Body).Decode(&data)
		likedSong = data.SongId
	})
	w, _ := newTestWorker(t, mux, Config{})

	rr := httptest.NewRecorder()
	queueBody := `{"type":"LIKE_SONG","data":{"songId":"42"}}`
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/.offline-cache/queue", strings.NewReader(queueBody)))
	if rr.Result().StatusCode != http.StatusAccepted {
		t.Fatalf("Queue status is %d", rr.Result().StatusCode)
	}

	rr = httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/.offline-cache/sync?tag=background-sync", nil))
	if body := strings.TrimSpace(rr.Body.String()); body != `{"pending":0}` {
		t.Fatalf("Sync reply is %s", body)
	}
	if likeCount != 1 {
		t.Fatalf("Like endpoint called %d times", likeCount)
	}
	if likedSong != "42" {
		t.Fatalf("Liked song is %q", likedSong)
	}
}

func TestSyncUnknownTag(t *testing.T) {
	w, _ := newTestWorker(t, http.NotFoundHandler(), Config{})

	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/.offline-cache/sync?tag=periodic", nil))

	if rr.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("Status is %d", rr.Result().StatusCode)
	}
}

func TestQueueRejectsUnknownActionType(t *testing.T) {
	w, _ := newTestWorker(t, http.NotFoundHandler(), Config{})

	rr := httptest.NewRecorder()
	queueBody := `{"type":"DELETE_EVERYTHING","data":{}}`
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/.offline-cache/queue", strings.NewReader(queueBody)))

	if rr.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("Status is %d", rr.Result().StatusCode)
	}
}
