package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action types replayed against the API.
const (
	ActionLikeSong       = "LIKE_SONG"
	ActionCreatePlaylist = "CREATE_PLAYLIST"
)

var ErrorUnknownAction = fmt.Errorf("Unknown action type")

// API endpoint per action type, relative to the origin.
var endpoints = map[string]string{
	ActionLikeSong:       "/api/songs/like",
	ActionCreatePlaylist: "/api/playlists",
}

// Action is a queued offline action awaiting replay.
type Action struct {
	ID       string
	Type     string
	Data     json.RawMessage
	Attempts int
	QueuedAt time.Time
}

type Config struct {
	// OriginURL is the base the API endpoints are resolved against.
	OriginURL url.URL
	// Client used for replaying actions. http.DefaultClient if nil.
	Client *http.Client
	// MaxAttempts drops an action after this many failed drains.
	// Zero retries forever.
	MaxAttempts int
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Queue holds offline actions until a sync event drains them.
// Draining replays each action as an API call: actions are removed on
// success and stay queued on failure, so delivery is at least once.
type Queue struct {
	mutex       sync.Mutex
	actions     []Action
	client      *http.Client
	originURL   url.URL
	maxAttempts int
	log         zerolog.Logger
}

func New(config Config) *Queue {
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	return &Queue{
		client:      client,
		originURL:   config.OriginURL,
		maxAttempts: config.MaxAttempts,
		log:         logger,
	}
}

// Enqueue adds an offline action for later replay.
func (q *Queue) Enqueue(actionType string, data json.RawMessage) error {
	if _, ok := endpoints[actionType]; !ok {
		return ErrorUnknownAction
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	action := Action{
		ID:       uuid.NewString(),
		Type:     actionType,
		Data:     data,
		QueuedAt: time.Now(),
	}
	q.actions = append(q.actions, action)
	q.log.Trace().Str("id", action.ID).Str("type", action.Type).Msg("Queued offline action")
	return nil
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.actions)
}

// Pending returns a copy of the queued actions in queue order.
func (q *Queue) Pending() []Action {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	pending := make([]Action, len(q.actions))
	copy(pending, q.actions)
	return pending
}

// Drain replays every queued action against the API, in queue order.
// It returns the number of actions still pending afterwards.
func (q *Queue) Drain(ctx context.Context) int {
	q.mutex.Lock()
	pending := q.actions
	q.actions = nil
	q.mutex.Unlock()

	remaining := make([]Action, 0, len(pending))
	for _, action := range pending {
		if err := q.replay(ctx, action); err != nil {
			action.Attempts++
			if q.maxAttempts > 0 && action.Attempts >= q.maxAttempts {
				q.log.Error().Err(err).Str("id", action.ID).Str("type", action.Type).
					Int("attempts", action.Attempts).Msg("Dropping action after too many attempts")
				continue
			}
			q.log.Warn().Err(err).Str("id", action.ID).Str("type", action.Type).Msg("Could not replay action")
			remaining = append(remaining, action)
			continue
		}
		q.log.Debug().Str("id", action.ID).Str("type", action.Type).Msg("Replayed action")
	}

	q.mutex.Lock()
	// actions queued during the drain go after the failed ones
	q.actions = append(remaining, q.actions...)
	count := len(q.actions)
	q.mutex.Unlock()
	return count
}

func (q *Queue) replay(ctx context.Context, action Action) error {
	uri := strings.TrimSuffix(q.originURL.String(), "/") + endpoints[action.Type]
	req, err := http.NewRequestWithContext(ctx, "POST", uri, bytes.NewReader(action.Data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("replay returned status %d", res.StatusCode)
	}
	return nil
}
