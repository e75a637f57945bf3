package handlers

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"turnaround-studio/internal/session"
	"turnaround-studio/internal/telegram"
	"turnaround-studio/internal/turnaround"
)

type Options struct {
	Telegram *telegram.Client
	Runner   *turnaround.Runner
	Sessions *session.Store
	Logger   *slog.Logger
}

type Handler struct {
	tg       *telegram.Client
	runner   *turnaround.Runner
	sessions *session.Store
	logger   *slog.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:       opts.Telegram,
		runner:   opts.Runner,
		sessions: opts.Sessions,
		logger:   logger,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}

	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(chatID, userID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, msg)
	}

	if msg.Text != "" {
		return h.tg.SendText(chatID, "Send a photo of an object or scene and I will generate the three missing viewpoints. /help for details.")
	}

	return nil
}

func (h *Handler) handleCommand(chatID, userID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"Turnaround Studio\n\n"+
				"Send me a photo of an object or scene. I will work out which canonical viewpoint it shows (front, side, top, back) and generate the other three.\n\n"+
				"Commands:\n"+
				"/help - usage details\n"+
				"/reset - discard the photo and selections",
		)
	case "help":
		return h.tg.SendText(chatID,
			"1. Send a photo.\n"+
				"2. Pick framing (isolate the object or rotate the whole scene), style, aspect ratio, and model.\n"+
				"3. Press Generate. The three views arrive one by one, followed by a ZIP with everything.\n\n"+
				"/reset starts over.",
		)
	case "reset":
		h.sessions.Reset(chatID, userID)
		return h.tg.SendText(chatID, "Session cleared. Send a new photo to start.")
	default:
		return h.tg.SendText(chatID, "Unknown command. /help lists what I can do.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) error {
	st := h.sessions.Get(chatID, userID)
	if st.Running {
		return h.tg.SendText(chatID, "A run is already in progress. Wait for it to finish before sending a new photo.")
	}

	// Telegram sends multiple sizes; the last one is the largest.
	photo := msg.Photo[len(msg.Photo)-1]

	data, mimeType, err := h.tg.DownloadFileBase64(ctx, photo.FileID)
	if err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "Could not download the photo. Please send it again.")
	}

	// The run may have started while the download was in flight; the photo
	// must stay immutable until it finishes.
	stored := false
	st = h.sessions.Update(chatID, userID, func(st *session.State) {
		if st.Running {
			return
		}
		st.PhotoBase64 = data
		st.PhotoMime = mimeType
		st.MessageID = 0
		stored = true
	})
	if !stored {
		return h.tg.SendText(chatID, "A run is already in progress. Wait for it to finish before sending a new photo.")
	}

	return h.showWizard(chatID, userID, st)
}

func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
