package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const getMeOK = `{"ok":true,"result":{"id":100,"is_bot":true,"first_name":"Quest","username":"quest_bot"}}`

// newTestClient serves getMe itself and hands every other method to h.
func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(getMeOK))
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "TOKEN")
	require.NoError(t, err)
	return c
}

func TestNewValidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botBAD/getMe", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "BAD")
	require.Error(t, err)
}

func TestSendMessageWithKeyboard(t *testing.T) {
	var form map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"chat_id":      r.PostForm.Get("chat_id"),
			"text":         r.PostForm.Get("text"),
			"reply_markup": r.PostForm.Get("reply_markup"),
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":7,"type":"private"}}}`))
	})
	assert.Equal(t, "quest_bot", c.Username())

	err := c.SendMessage(context.Background(), 7, "hello", Keyboard([]string{"A", "B"}, []string{"C"}))
	require.NoError(t, err)

	assert.Equal(t, "7", form["chat_id"])
	assert.Equal(t, "hello", form["text"])
	var markup struct {
		Keyboard [][]struct {
			Text string `json:"text"`
		} `json:"keyboard"`
		Resize bool `json:"resize_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(form["reply_markup"]), &markup))
	require.Len(t, markup.Keyboard, 2)
	assert.Equal(t, "C", markup.Keyboard[1][0].Text)
	assert.True(t, markup.Resize)
}

func TestSendBlockedRecipient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := c.Send(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.Contains(t, err.Error(), "blocked")
}

func TestGetUpdates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5", r.PostForm.Get("offset"))
		assert.Equal(t, "30", r.PostForm.Get("timeout"))
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":5,"message":{"message_id":10,"from":{"id":42,"is_bot":false,"first_name":"Ann","username":"ann"},"chat":{"id":42,"type":"private"},"date":1,"text":"/start"}},
			{"update_id":6}
		]}`))
	})

	updates, err := c.GetUpdates(context.Background(), 5, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, int64(42), updates[0].Message.From.ID)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Nil(t, updates[1].Message)
}

func TestGetUpdatesHonoursContext(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetUpdates(ctx, 0, 30*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	err := c.SetMyCommands(context.Background(), []BotCommand{{Command: "start", Description: "Start"}})
	require.Error(t, err)
	assert.False(t, IsBlocked(err))
}
