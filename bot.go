package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

var (
	ErrClosed         = errors.New("bot has closed")
	ErrAlreadyStarted = errors.New("bot already started")
	ErrNoArchive      = errors.New("archive is not configured")
)

// botAPI is the part of the Telegram client the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api        botAPI
	store      SessionStore
	archive    *Archive
	metrics    *Metrics
	config     *Config
	welcome    string
	help       string
	isStarted  atomic.Bool
	inShutdown atomic.Bool
	isDone     chan struct{}
	logger     *slog.Logger
}

// LoadBot connects to Telegram and opens the configured session store
// and archive.
func LoadBot(config *Config, logger *slog.Logger) (*Bot, error) {
	if config.BotToken == "" {
		return nil, errors.New("environment variable CALCBOT_TELEGRAM_TOKEN is required but the value is not provided")
	}

	api, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	store, err := openSessionStore(config, metrics)
	if err != nil {
		return nil, err
	}

	archive, err := OpenArchive(config.ArchivePath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return NewBot(api, store, archive, metrics, config, logger), nil
}

func openSessionStore(config *Config, metrics *Metrics) (SessionStore, error) {
	switch config.SessionBackend {
	case "", "memory":
		return NewMemorySessionStore(
			config.MemcachedTTLTimeout,
			config.MemcachedCleanupTimeout,
		), nil
	case "redis":
		store := NewRedisSessionStore(config.Redis, config.MemcachedTTLTimeout, calc.WithObserver(metrics.Observer()))
		ctx, cancel := context.WithTimeout(context.Background(), config.Redis.DialTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect redis %s: %w", config.Redis.Addr, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", config.SessionBackend)
	}
}

func NewBot(api botAPI, store SessionStore, archive *Archive, metrics *Metrics, config *Config, logger *slog.Logger) *Bot {
	b := &Bot{
		api:     api,
		store:   store,
		archive: archive,
		metrics: metrics,
		config:  config,
		logger:  logger,
		isDone:  make(chan struct{}),
		welcome: fmt.Sprintf(
			"%s%s %s of inactivity.",
			"Welcome! Type /open to get started.\n",
			"Note: the session expires after",
			config.MemcachedTTLTimeout,
		),
		help: strings.Join([]string{
			"Help:",
			"/start - welcome message.",
			"/open - open new session.",
			"/tape - print the tape.",
			"/undo, /redo - step through the tape history.",
			"/edit <index> <value> - change a number on the tape and recompute.",
			"/save <name> - archive the tape under a name.",
			"/history - list archived tapes.",
			"/restore <id> - load an archived tape.",
			"/forget <id> - delete an archived tape.",
			"/settings [key=value ...] - show or change settings " +
				"(rounding, decimals, float, add_mode, gt, memory, tax).",
			"/help - send this message.",
		}, "\n"),
	}
	if ms, ok := store.(*MemorySessionStore); ok {
		ms.OnExpire(b.archiveExpired)
	}
	return b
}

func (b *Bot) Run() error {
	if b.isStarted.Swap(true) {
		return ErrAlreadyStarted
	}
	defer close(b.isDone)

	updateConfig := tgbotapi.NewUpdate(b.config.BotOffset)
	updateConfig.Timeout = b.config.BotTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	ctx := context.Background()
	for update := range updates {
		if b.inShutdown.Load() && b.store.IsEmpty() {
			continue
		}

		if update.CallbackQuery != nil {
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error("failed to handle callback", "data", update.CallbackQuery.Data, "error", err)
				continue
			}
		}

		if update.Message == nil {
			continue
		}

		if err := b.handleCommand(ctx, update.Message); err != nil {
			b.logger.Error("failed to send message", "error", err)
		}
	}

	return ErrClosed
}

func (b *Bot) createMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return nil
}

// createKeyboard sends a new keyboard message and returns its id.
func (b *Bot) createKeyboard(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = botKeyboard

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) updateKeyboard(chatID int64, messageID int, current, text string) error {
	if text == current {
		return nil
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = &botKeyboard

	if _, err := b.api.Send(edit); err != nil {
		return err
	}
	return nil
}

func (b *Bot) newSession(owner string) *Session {
	return NewSession(owner, b.config.Engine, calc.WithObserver(b.metrics.Observer()))
}

func (b *Bot) handleCommand(ctx context.Context, command *tgbotapi.Message) error {
	if !command.IsCommand() || command.From == nil {
		return b.createMessage(command.Chat.ID, "Unknown command. Try /help")
	}
	chatID := command.Chat.ID
	key := sessionKey(chatID, command.From.ID)
	args := strings.TrimSpace(command.CommandArguments())

	switch command.Command() {
	case "start":
		return b.createMessage(chatID, b.welcome)
	case "help":
		return b.createMessage(chatID, b.help)
	case "open":
		if _, err := b.store.Load(ctx, key); err == nil {
			return b.createMessage(chatID, "Your session is not expired!")
		}
		return b.openSession(ctx, chatID, key, b.newSession(key))
	case "tape":
		return b.withSession(ctx, chatID, key, func(s *Session) (string, error) {
			return renderTape(s.Engine.Entries()), nil
		})
	case "undo":
		return b.withSession(ctx, chatID, key, func(s *Session) (string, error) {
			if !s.Engine.Undo() {
				return "Nothing to undo.", nil
			}
			return "", nil
		})
	case "redo":
		return b.withSession(ctx, chatID, key, func(s *Session) (string, error) {
			if !s.Engine.Redo() {
				return "Nothing to redo.", nil
			}
			return "", nil
		})
	case "edit":
		return b.withSession(ctx, chatID, key, func(s *Session) (string, error) {
			return editEntry(s.Engine, args)
		})
	case "save":
		return b.withSession(ctx, chatID, key, func(s *Session) (string, error) {
			return b.saveNamed(ctx, s, args)
		})
	case "history":
		return b.listHistory(ctx, chatID, key)
	case "restore":
		return b.restore(ctx, chatID, key, args)
	case "forget":
		return b.forget(ctx, chatID, key, args)
	case "settings":
		return b.withSession(ctx, chatID, key, func(s *Session) (string, error) {
			return applySettings(s.Engine, args)
		})
	case "stats":
		if !slices.Contains(b.config.AdminIDs, command.From.ID) {
			return b.createMessage(chatID, "Unknown command. Try /help")
		}
		summary, err := b.metrics.Summary()
		if err != nil {
			return err
		}
		return b.createMessage(chatID, summary)
	default:
		return b.createMessage(chatID, "Unknown command. Try /help")
	}
}

// openSession sends a fresh keyboard for s and stores it.
func (b *Bot) openSession(ctx context.Context, chatID int64, key string, s *Session) error {
	messageID, err := b.createKeyboard(chatID, renderScreen(s.Engine))
	if err != nil {
		return err
	}
	s.MessageID = messageID
	b.metrics.SessionOpened()
	return b.store.Save(ctx, key, s)
}

// withSession runs fn on the caller's session, refreshes the keyboard
// message and replies with fn's text when it returns any.
func (b *Bot) withSession(ctx context.Context, chatID int64, key string, fn func(*Session) (string, error)) error {
	s, err := b.store.Load(ctx, key)
	if errors.Is(err, ErrSessionExpired) {
		b.metrics.SessionExpired()
		return b.createMessage(chatID, "Your session has expired, please /open a new one.")
	}
	if err != nil {
		return err
	}

	var before, after, reply string
	err = s.Use(func(e *calc.Engine) error {
		before = renderScreen(e)
		var err error
		reply, err = fn(s)
		after = renderScreen(e)
		return err
	})
	if err != nil {
		return b.createMessage(chatID, err.Error())
	}
	if err := b.store.Save(ctx, key, s); err != nil {
		return err
	}
	if s.MessageID != 0 {
		if err := b.updateKeyboard(chatID, s.MessageID, before, after); err != nil {
			return err
		}
	}
	if reply == "" {
		return nil
	}
	return b.createMessage(chatID, reply)
}

func (b *Bot) saveNamed(ctx context.Context, s *Session, name string) (string, error) {
	if b.archive == nil {
		return "", ErrNoArchive
	}
	if name == "" {
		return "Usage: /save <name>", nil
	}
	tape, err := b.archive.Save(ctx, s.Owner, name, ArchiveNamed, s.Engine.Snapshot())
	if err != nil {
		return "", err
	}
	b.metrics.SnapshotSaved(ArchiveNamed)
	return fmt.Sprintf("Saved %q (%s).", name, shortID(tape.ID)), nil
}

// editEntry applies "<index> <value>" to the tape. A recompute fault is a
// reply, not an error: the locked engine still has to be saved.
func editEntry(e *calc.Engine, args string) (string, error) {
	index, value, err := parseEdit(args)
	if err != nil {
		return "Usage: /edit <index> <value>", nil
	}
	err = e.EditEntry(index, value)
	if errors.Is(err, calc.ErrEntryIndex) || errors.Is(err, calc.ErrNotEditable) {
		return "", err
	}
	if err != nil {
		return err.Error(), nil
	}
	return "", nil
}

// archiveAuto keeps the tape that CLEAR_ALL is about to wipe.
func (b *Bot) archiveAuto(ctx context.Context, owner string, snap calc.Snapshot) {
	if b.archive == nil || !hasWork(snap.Entries) {
		return
	}
	if _, err := b.archive.Save(ctx, owner, "", ArchiveAuto, snap); err != nil {
		b.logger.Error("failed to archive tape", "owner", owner, "error", err)
		return
	}
	b.metrics.SnapshotSaved(ArchiveAuto)
}

const archiveTimeout = 5 * time.Second

// archiveExpired keeps the tape of a session dropped for inactivity. It
// runs on the cache cleaner, possibly while an update still holds s.
func (b *Bot) archiveExpired(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	b.archiveAuto(ctx, s.Owner, s.Snapshot())
}

// hasWork reports whether the tape holds anything besides clear lines.
func hasWork(entries []calc.Entry) bool {
	return slices.ContainsFunc(entries, func(e calc.Entry) bool {
		return e.Key != calc.KeyClearLine
	})
}

func (b *Bot) listHistory(ctx context.Context, chatID int64, key string) error {
	if b.archive == nil {
		return b.createMessage(chatID, ErrNoArchive.Error())
	}
	tapes, err := b.archive.List(ctx, key)
	if err != nil {
		return err
	}
	if len(tapes) == 0 {
		return b.createMessage(chatID, "No archived tapes.")
	}

	lines := make([]string, 0, len(tapes))
	for _, tape := range tapes {
		name := tape.Name
		if tape.Kind == ArchiveAuto {
			name = "(auto)"
		}
		lines = append(lines, fmt.Sprintf("%s %s %d lines, %s",
			shortID(tape.ID), name, tape.Lines, tape.CreatedAt.Format("2006-01-02 15:04")))
	}
	return b.createMessage(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) restore(ctx context.Context, chatID int64, key, id string) error {
	if b.archive == nil {
		return b.createMessage(chatID, ErrNoArchive.Error())
	}
	if id == "" {
		return b.createMessage(chatID, "Usage: /restore <id>")
	}
	tape, err := b.archive.Get(ctx, key, id)
	if errors.Is(err, ErrSnapshotNotFound) {
		return b.createMessage(chatID, fmt.Sprintf("No archived tape %q.", id))
	}
	if err != nil {
		return err
	}

	s, err := b.store.Load(ctx, key)
	if errors.Is(err, ErrSessionExpired) {
		s, err = b.newSession(key), nil
	}
	if err != nil {
		return err
	}
	err = s.Use(func(e *calc.Engine) error {
		return e.Restore(tape.Snapshot)
	})
	if err != nil {
		return b.createMessage(chatID, fmt.Sprintf("failed to restore tape, error: %v", err))
	}
	b.metrics.SnapshotRestored()
	return b.openSession(ctx, chatID, key, s)
}

func (b *Bot) forget(ctx context.Context, chatID int64, key, id string) error {
	if b.archive == nil {
		return b.createMessage(chatID, ErrNoArchive.Error())
	}
	if id == "" {
		return b.createMessage(chatID, "Usage: /forget <id>")
	}
	err := b.archive.Delete(ctx, key, id)
	if errors.Is(err, ErrSnapshotNotFound) {
		return b.createMessage(chatID, fmt.Sprintf("No archived tape %q.", id))
	}
	if err != nil {
		return err
	}
	return b.createMessage(chatID, fmt.Sprintf("Deleted %q.", id))
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		return err
	}
	if callback.Message == nil {
		return nil
	}

	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID
	key := sessionKey(chatID, callback.From.ID)

	s, err := b.store.Load(ctx, key)
	if errors.Is(err, ErrSessionExpired) {
		b.metrics.SessionExpired()
		err := b.updateKeyboard(
			chatID,
			messageID,
			callback.Message.Text,
			"Your session has expired, please /open a new one.",
		)
		if err != nil {
			return err
		}
		return ErrSessionExpired
	}
	if err != nil {
		return err
	}

	var (
		wiped  *calc.Snapshot
		screen string
	)
	err = s.Use(func(e *calc.Engine) error {
		defer func() { screen = renderScreen(e) }()
		switch callback.Data {
		case callbackUndo:
			e.Undo()
		case callbackRedo:
			e.Redo()
		default:
			k, err := calc.ParseKey(callback.Data)
			if err != nil {
				b.metrics.ObserveKey(calc.Key(callback.Data), err)
				return err
			}
			if k == calc.KeyClearAll {
				snap := e.Snapshot()
				wiped = &snap
			}
			err = e.PressKey(k)
			b.metrics.ObserveKey(k, err)
			if err != nil {
				b.logger.Debug("key rejected", "session", s.ID, "key", k, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if wiped != nil {
		b.archiveAuto(ctx, s.Owner, *wiped)
	}

	s.MessageID = messageID
	if err := b.store.Save(ctx, key, s); err != nil {
		return err
	}
	return b.updateKeyboard(chatID, messageID, callback.Message.Text, screen)
}

// applySettings parses "key=value" pairs and applies them. With no pairs
// it describes the current settings.
func applySettings(e *calc.Engine, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return describeSettings(e), nil
	}

	var u calc.SettingsUpdate
	var taxRate *float64
	for _, field := range fields {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return "", fmt.Errorf("%w: expected key=value, got %q", calc.ErrInvalidSettings, field)
		}
		if err := setSetting(&u, &taxRate, strings.ToLower(name), value); err != nil {
			return "", err
		}
	}

	if err := e.UpdateSettings(u); err != nil {
		return "", err
	}
	if taxRate != nil {
		e.SetTaxRate(*taxRate)
	}
	return describeSettings(e), nil
}

func setSetting(u *calc.SettingsUpdate, taxRate **float64, name, value string) error {
	parseBool := func() (*bool, error) {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", calc.ErrInvalidSettings, name, value)
		}
		return &v, nil
	}

	var err error
	switch name {
	case "rounding":
		var mode calc.RoundingMode
		if err = mode.Set(value); err == nil {
			u.RoundingMode = &mode
		}
	case "memory":
		var mode calc.MemoryMode
		if err = mode.Set(value); err == nil {
			u.MemoryMode = &mode
		}
	case "decimals":
		var d int
		if d, err = strconv.Atoi(value); err != nil {
			err = fmt.Errorf("%w: %s=%q", calc.ErrInvalidSettings, name, value)
		} else {
			u.Decimals = &d
		}
	case "float":
		u.Float, err = parseBool()
	case "add_mode":
		u.AddMode, err = parseBool()
	case "gt":
		u.AccumulateGT, err = parseBool()
	case "tax":
		var rate float64
		if rate, err = strconv.ParseFloat(value, 64); err != nil {
			err = fmt.Errorf("%w: %s=%q", calc.ErrInvalidSettings, name, value)
		} else {
			*taxRate = &rate
		}
	default:
		err = fmt.Errorf("%w: unknown setting %q", calc.ErrInvalidSettings, name)
	}
	return err
}

func describeSettings(e *calc.Engine) string {
	s := e.Settings()
	return fmt.Sprintf(
		"rounding=%s decimals=%d float=%t add_mode=%t gt=%t memory=%s tax=%s",
		s.RoundingMode, s.Decimals, s.Float, s.AddMode, s.AccumulateGT, s.MemoryMode,
		strconv.FormatFloat(e.TaxRate(), 'f', -1, 64),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.inShutdown.Store(true)
	err := b.store.Shutdown(ctx)
	b.api.StopReceivingUpdates()

	select {
	case <-b.isDone:
		if closeErr := b.closeArchive(); err == nil {
			err = closeErr
		}
		if isClosedErr(err) {
			return ErrClosed
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) Close() error {
	b.inShutdown.Store(true)
	err := b.store.Close()
	b.api.StopReceivingUpdates()
	<-b.isDone

	if closeErr := b.closeArchive(); err == nil {
		err = closeErr
	}
	if isClosedErr(err) {
		return ErrClosed
	}
	return err
}

func (b *Bot) closeArchive() error {
	if b.archive == nil {
		return nil
	}
	return b.archive.Close()
}

func isClosedErr(err error) bool {
	return errors.Is(err, ErrMemcachedClosed) || errors.Is(err, ErrStoreClosed)
}
