package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tullo/guardian/internal/auth"
	"github.com/tullo/guardian/internal/cache"
	"github.com/tullo/guardian/internal/models"
	"github.com/tullo/guardian/internal/moderation"
)

func newTestClient(h *Hub, userID string, reviewer bool) *Client {
	return &Client{hub: h, userID: userID, reviewer: reviewer, send: make(chan []byte, 4), log: h.log}
}

func startHub(t *testing.T, redis *cache.RedisClient) *Hub {
	t.Helper()
	h := NewHub(redis, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func receive(t *testing.T, c *Client) models.WSMessage {
	t.Helper()
	select {
	case b := <-c.send:
		var msg models.WSMessage
		require.NoError(t, json.Unmarshal(b, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message to %s", c.userID)
	}
	return models.WSMessage{}
}

func TestHubDeliversReviewsOnlyToReviewers(t *testing.T) {
	h := startHub(t, nil)

	reviewer := newTestClient(h, "mod-1", true)
	user := newTestClient(h, "user-1", false)
	require.True(t, h.Register(reviewer))
	require.True(t, h.Register(user))

	entry := &models.ReviewQueueEntry{ID: uuid.New(), AuthorID: "a", Priority: models.PriorityHigh}
	require.NoError(t, h.NotifyReviewQueued(context.Background(), entry))

	msg := receive(t, reviewer)
	assert.Equal(t, models.EventReviewQueued, msg.Event)
	assert.Contains(t, msg.Payload, "id")

	select {
	case <-user.send:
		t.Fatal("non-reviewer received a review event")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, h.OnlineReviewers())
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := startHub(t, nil)
	c := newTestClient(h, "mod-1", true)
	require.True(t, h.Register(c))

	h.Unregister(c)
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-c.send:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.False(t, c.trySend([]byte("late")), "closed client must refuse writes")
}

func TestHubStoppedRefusesRegistration(t *testing.T) {
	h := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	assert.False(t, h.Register(newTestClient(h, "mod-1", true)))
	h.Unregister(newTestClient(h, "mod-1", true))
}

func TestHubRelaysReviewsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	redis, err := cache.NewRedisClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer redis.Close()

	h := startHub(t, redis)
	reviewer := newTestClient(h, "mod-1", true)
	require.True(t, h.Register(reviewer))

	entry := &models.ReviewQueueEntry{ID: uuid.New(), AuthorID: "a", Priority: models.PriorityMedium}

	// The subscription is established asynchronously; publish until it lands.
	got := false
	for i := 0; i < 50 && !got; i++ {
		require.NoError(t, h.NotifyReviewQueued(context.Background(), entry))
		select {
		case b := <-reviewer.send:
			var msg models.WSMessage
			require.NoError(t, json.Unmarshal(b, &msg))
			assert.Equal(t, models.EventReviewQueued, msg.Event)
			got = true
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.True(t, got, "review event was not relayed")
}

func TestMatchOrigin(t *testing.T) {
	assert.True(t, matchOrigin("https://app.example.com", "https://app.example.com"))
	assert.True(t, matchOrigin("*.example.com", "https://review.example.com"))
	assert.False(t, matchOrigin("*.example.com", "https://evilexample.com"))
	assert.False(t, matchOrigin("https://app.example.com", "https://other.example.com"))
}

func TestHandlerSubmitRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := startHub(t, nil)
	jwt := auth.NewJWTService("secret", 1)
	engine := moderation.NewEngine(moderation.Deps{}, moderation.DefaultOptions())

	r := gin.New()
	r.GET("/ws/reviews", NewHandler(h, jwt, engine, nil).HandleWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/reviews"

	_, resp, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	token, err := jwt.GenerateToken("author-7", auth.RoleUser)
	require.NoError(t, err)
	conn, _, err := gws.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.WSMessage{
		Event:   models.EventModerationSubmit,
		Payload: models.WSModerationSubmitPayload{Content: "I want to kill myself", Type: "post"},
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event   string                  `json:"event"`
		Payload models.ModerationResult `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.EventModerationResult, msg.Event)
	assert.Equal(t, models.StatusRejected, msg.Payload.Status)

	require.NoError(t, conn.WriteJSON(models.WSMessage{Event: "chat.send"}))
	var errMsg struct {
		Event   string                `json:"event"`
		Payload models.WSErrorPayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, models.EventError, errMsg.Event)
	assert.Equal(t, "bad_request", errMsg.Payload.Code)
}
