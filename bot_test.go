package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

const (
	testChatID = int64(100)
	testUserID = int64(42)
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	nextID   int
	updates  chan tgbotapi.Update
	stopOnce sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

// texts returns the text of every sent message and edit.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			texts = append(texts, m.Text)
		case tgbotapi.EditMessageTextConfig:
			texts = append(texts, m.Text)
		}
	}
	return texts
}

func (f *fakeAPI) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type testBot struct {
	*Bot
	api   *fakeAPI
	store *MemorySessionStore
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	api := newFakeAPI()
	store := NewMemorySessionStore(time.Minute, time.Minute)
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)

	cfg := &Config{
		MemcachedTTLTimeout: time.Minute,
		AdminIDs:            []int64{testUserID},
		Engine:              testEngineConfig(),
	}
	bot := NewBot(api, store, archive, NewMetrics(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		_ = store.Close()
		_ = archive.Close()
	})
	return &testBot{Bot: bot, api: api, store: store}
}

func commandMessage(text string) *tgbotapi.Message {
	command, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}},
	}
}

func (b *testBot) command(t *testing.T, text string) string {
	t.Helper()
	require.NoError(t, b.handleCommand(context.Background(), commandMessage(text)))
	return b.api.lastText()
}

// press sends callbacks for every key, as if tapped on the keyboard.
func (b *testBot) press(t *testing.T, data ...string) {
	t.Helper()
	for _, d := range data {
		callback := &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: testUserID},
			Message: &tgbotapi.Message{
				MessageID: 1,
				Chat:      &tgbotapi.Chat{ID: testChatID},
			},
			Data: d,
		}
		require.NoError(t, b.handleCallback(context.Background(), callback), "callback %q", d)
	}
}

func (b *testBot) session(t *testing.T) *Session {
	t.Helper()
	s, err := b.store.Load(context.Background(), sessionKey(testChatID, testUserID))
	require.NoError(t, err)
	return s
}

func TestBot_OpenAndPress(t *testing.T) {
	b := newTestBot(t)

	assert.Equal(t, "0", b.command(t, "/open"))
	assert.Equal(t, "Your session is not expired!", b.command(t, "/open"))

	b.press(t, "1", "2", "+", "3", "=")
	s := b.session(t)
	assert.Equal(t, 15.0, s.Engine.Accumulator())
	assert.True(t, strings.HasPrefix(b.api.lastText(), "15,00"), b.api.lastText())
	assert.Equal(t, 1, s.MessageID)
}

func TestBot_ExpiredSession(t *testing.T) {
	b := newTestBot(t)
	callback := &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUserID},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: testChatID}, Text: "0"},
		Data:    "1",
	}
	err := b.handleCallback(context.Background(), callback)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, "Your session has expired, please /open a new one.", b.api.lastText())

	assert.Equal(t, "Your session has expired, please /open a new one.", b.command(t, "/tape"))
}

func TestBot_UnknownKey(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	err := b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUserID},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: testChatID}},
		Data:    "Δ2",
	})
	assert.ErrorIs(t, err, calc.ErrUnsupported)
}

func TestBot_DivisionByZeroLocksDisplay(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	b.press(t, "5", "÷", "0", "=")
	assert.True(t, strings.HasPrefix(b.api.lastText(), "Error"))

	b.press(t, "CLEAR_ALL")
	assert.False(t, b.session(t).Engine.Locked())
}

func TestBot_UndoRedoButtons(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	b.press(t, "2", "+", "3", "+")
	s := b.session(t)
	lines := len(s.Engine.Entries())

	b.press(t, callbackUndo)
	assert.Less(t, len(s.Engine.Entries()), lines)
	b.press(t, callbackRedo)
	assert.Len(t, s.Engine.Entries(), lines)

	b.command(t, "/undo")
	assert.Less(t, len(s.Engine.Entries()), lines)
	assert.True(t, s.Engine.CanRedo())
}

func TestBot_Tape(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	assert.Equal(t, "Tape is empty.", b.command(t, "/tape"))

	b.press(t, "4", "x", "5", "=")
	tape := b.command(t, "/tape")
	assert.Contains(t, tape, "20,00")
	assert.Len(t, strings.Split(tape, "\n"), len(b.session(t).Engine.Entries()))
}

func TestBot_AutoArchiveOnClearAll(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")

	b.press(t, "CLEAR_ALL", "CLEAR_ALL")
	assert.Equal(t, "No archived tapes.", b.command(t, "/history"))

	b.press(t, "9", "+", "CLEAR_ALL")
	history := b.command(t, "/history")
	assert.Contains(t, history, "(auto)")
	assert.Len(t, strings.Split(history, "\n"), 1)
}

func TestBot_ArchivesExpiredSession(t *testing.T) {
	api := newFakeAPI()
	store := NewMemorySessionStore(200*time.Millisecond, 10*time.Millisecond)
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = archive.Close()
	})

	cfg := &Config{MemcachedTTLTimeout: 200 * time.Millisecond, Engine: testEngineConfig()}
	b := &testBot{
		Bot:   NewBot(api, store, archive, NewMetrics(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))),
		api:   api,
		store: store,
	}
	b.command(t, "/open")
	b.press(t, "8", "+")

	require.Eventually(t, func() bool {
		tapes, err := archive.List(context.Background(), sessionKey(testChatID, testUserID))
		return err == nil && len(tapes) == 1 && tapes[0].Kind == ArchiveAuto
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBot_SaveAndRestore(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	b.press(t, "6", "x", "7", "=")

	assert.Equal(t, "Usage: /save <name>", b.command(t, "/save"))
	reply := b.command(t, "/save answer")
	require.True(t, strings.HasPrefix(reply, `Saved "answer" (`), reply)
	id := strings.TrimSuffix(strings.TrimPrefix(reply, `Saved "answer" (`), ").")

	b.press(t, "CLEAR_ALL")
	assert.Equal(t, 0.0, b.session(t).Engine.Accumulator())

	assert.Equal(t, `No archived tape "nope".`, b.command(t, "/restore nope"))
	assert.True(t, strings.HasPrefix(b.command(t, "/restore "+id), "42,00"))
	assert.Equal(t, 42.0, b.session(t).Engine.Accumulator())

	assert.Equal(t, "Usage: /forget <id>", b.command(t, "/forget"))
	assert.Equal(t, fmt.Sprintf("Deleted %q.", id), b.command(t, "/forget "+id))
	assert.Equal(t, fmt.Sprintf("No archived tape %q.", id), b.command(t, "/restore "+id))
}

func TestBot_Settings(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")

	assert.Equal(t,
		"rounding=none decimals=2 float=false add_mode=false gt=false memory=algebraic tax=22",
		b.command(t, "/settings"))
	assert.Equal(t,
		"rounding=up decimals=3 float=false add_mode=false gt=true memory=stack tax=20",
		b.command(t, "/settings rounding=up decimals=3 gt=true memory=stack tax=20"))

	assert.Contains(t, b.command(t, "/settings decimals=99"), "invalid settings")
	assert.Contains(t, b.command(t, "/settings colour=red"), "unknown setting")
	assert.Equal(t, 3, b.session(t).Engine.Settings().Decimals)
}

func TestBot_Stats(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	b.press(t, "1", "+")

	stats := b.command(t, "/stats")
	assert.Contains(t, stats, "sessions_opened_total 1")
	assert.Contains(t, stats, "key_presses_total 2")
}

func TestBot_RunAndShutdown(t *testing.T) {
	b := newTestBot(t)
	b.api.updates <- tgbotapi.Update{Message: commandMessage("/help")}

	done := make(chan error, 1)
	go func() { done <- b.Run() }()

	require.Eventually(t, func() bool {
		return strings.HasPrefix(b.api.lastText(), "Help:")
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	assert.ErrorIs(t, <-done, ErrClosed)
	assert.ErrorIs(t, b.Run(), ErrAlreadyStarted)
}

func TestBot_Edit(t *testing.T) {
	b := newTestBot(t)
	b.command(t, "/open")
	b.press(t, "3", "x", "4", "=")

	assert.True(t, strings.HasPrefix(b.command(t, "/edit 0 5"), "20,00"))
	assert.Equal(t, 20.0, b.session(t).Engine.Accumulator())

	assert.Equal(t, "Usage: /edit <index> <value>", b.command(t, "/edit"))
	assert.Contains(t, b.command(t, "/edit 99 1"), calc.ErrEntryIndex.Error())
	assert.Equal(t, 20.0, b.session(t).Engine.Accumulator())

	b = newTestBot(t)
	b.command(t, "/open")
	b.press(t, "8", "÷", "2", "=")
	assert.Contains(t, b.command(t, "/edit 1 0"), calc.ErrDivisionByZero.Error())
	assert.True(t, b.session(t).Engine.Locked())

	b.press(t, "UNDO")
	assert.False(t, b.session(t).Engine.Locked())
	assert.Equal(t, 4.0, b.session(t).Engine.Accumulator())
}

// failingStore finds no session and cannot load any either.
type failingStore struct {
	*MemorySessionStore
	err error
}

func (s failingStore) Load(context.Context, string) (*Session, error) {
	return nil, s.err
}

func TestBot_RestoreLoadError(t *testing.T) {
	api := newFakeAPI()
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)
	mem := NewMemorySessionStore(time.Minute, time.Minute)
	t.Cleanup(func() {
		_ = mem.Close()
		_ = archive.Close()
	})

	key := sessionKey(testChatID, testUserID)
	e := calc.New(testEngineConfig().Options()...)
	pressAll(t, e, "6", "x", "7", "=")
	tape, err := archive.Save(context.Background(), key, "answer", ArchiveNamed, e.Snapshot())
	require.NoError(t, err)

	cfg := &Config{MemcachedTTLTimeout: time.Minute, Engine: testEngineConfig()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errDown := errors.New("store is down")
	b := NewBot(api, failingStore{MemorySessionStore: mem, err: errDown}, archive, NewMetrics(), cfg, logger)

	err = b.handleCommand(context.Background(), commandMessage("/restore "+tape.ID))
	assert.ErrorIs(t, err, errDown)
	assert.Empty(t, api.texts(), "no session is opened over an unreadable one")

	b = NewBot(api, failingStore{MemorySessionStore: mem, err: ErrSessionExpired}, archive, NewMetrics(), cfg, logger)
	require.NoError(t, b.handleCommand(context.Background(), commandMessage("/restore "+tape.ID)))
	assert.True(t, strings.HasPrefix(api.lastText(), "42,00"), api.lastText())
	assert.Equal(t, 1, mem.Len())
}
