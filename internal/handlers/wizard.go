package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"turnaround-studio/internal/archive"
	"turnaround-studio/internal/datauri"
	"turnaround-studio/internal/gemini"
	"turnaround-studio/internal/session"
	"turnaround-studio/internal/turnaround"
	"turnaround-studio/internal/viewpoint"
)

const (
	cbFraming  = "framing"
	cbStyle    = "style"
	cbAspect   = "aspect"
	cbMode     = "mode"
	cbGenerate = "generate"
	cbReset    = "reset"
)

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	h.tg.AnswerCallback(cq.ID)

	if cq.Message == nil {
		return nil
	}
	chatID := cq.Message.Chat.ID
	userID := cq.From.ID

	switch trimLower(cq.Data) {
	case cbFraming:
		st := h.sessions.Update(chatID, userID, func(st *session.State) {
			if st.Framing == viewpoint.FramingObject {
				st.Framing = viewpoint.FramingScene
			} else {
				st.Framing = viewpoint.FramingObject
			}
		})
		return h.refreshWizard(chatID, st)
	case cbStyle:
		st := h.sessions.Update(chatID, userID, func(st *session.State) {
			st.Style = viewpoint.NextStyle(st.Style)
		})
		return h.refreshWizard(chatID, st)
	case cbAspect:
		st := h.sessions.Update(chatID, userID, func(st *session.State) {
			st.AspectRatio = viewpoint.NextAspectRatio(st.AspectRatio)
		})
		return h.refreshWizard(chatID, st)
	case cbMode:
		st := h.sessions.Update(chatID, userID, func(st *session.State) {
			if st.Mode == viewpoint.ModeStandard {
				st.Mode = viewpoint.ModePro
			} else {
				st.Mode = viewpoint.ModeStandard
			}
		})
		return h.refreshWizard(chatID, st)
	case cbReset:
		h.sessions.Reset(chatID, userID)
		return h.tg.SendText(chatID, "Session cleared. Send a new photo to start.")
	case cbGenerate:
		return h.generate(ctx, chatID, userID)
	}
	return nil
}

func (h *Handler) showWizard(chatID, userID int64, st session.State) error {
	messageID, err := h.tg.SendMenu(chatID, wizardText(st), wizardKeyboard(st))
	if err != nil {
		return err
	}
	h.sessions.Update(chatID, userID, func(st *session.State) {
		st.MessageID = messageID
	})
	return nil
}

func (h *Handler) refreshWizard(chatID int64, st session.State) error {
	if st.MessageID == 0 {
		return nil
	}
	return h.tg.EditMenu(chatID, st.MessageID, wizardText(st), wizardKeyboard(st))
}

func wizardText(st session.State) string {
	var b strings.Builder
	b.WriteString("Photo received. Current setup:\n\n")
	b.WriteString("Framing: " + framingLabel(st.Framing) + "\n")
	b.WriteString("Style: " + viewpoint.StyleName(st.Style) + "\n")
	b.WriteString("Aspect ratio: " + st.AspectRatio + "\n")
	b.WriteString("Model: " + modeLabel(st.Mode) + "\n\n")
	b.WriteString("Adjust with the buttons, then press Generate.")
	return b.String()
}

func wizardKeyboard(st session.State) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Framing: "+framingLabel(st.Framing), cbFraming),
			tgbotapi.NewInlineKeyboardButtonData("Model: "+modeLabel(st.Mode), cbMode),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Style: "+viewpoint.StyleName(st.Style), cbStyle),
			tgbotapi.NewInlineKeyboardButtonData("Ratio: "+st.AspectRatio, cbAspect),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Generate", cbGenerate),
			tgbotapi.NewInlineKeyboardButtonData("Reset", cbReset),
		),
	)
}

func framingLabel(f viewpoint.Framing) string {
	if f == viewpoint.FramingScene {
		return "Scene"
	}
	return "Object"
}

func modeLabel(m viewpoint.Mode) string {
	if m == viewpoint.ModePro {
		return "Pro"
	}
	return "Standard"
}

func (h *Handler) generate(ctx context.Context, chatID, userID int64) error {
	st, claimed := h.sessions.Claim(chatID, userID)
	if !claimed {
		return nil
	}
	defer h.sessions.Release(chatID, userID)

	if !st.HasPhoto() {
		return h.tg.SendText(chatID, "Send a photo first, then press Generate.")
	}

	progress := func(text string) {
		if st.MessageID != 0 {
			if err := h.tg.EditText(chatID, st.MessageID, text); err != nil {
				h.logger.Debug("progress edit failed", "err", err)
			}
		}
	}

	input := turnaround.Input{
		Source:      "bot",
		Image:       gemini.ImageInput{DataBase64: st.PhotoBase64, MimeType: st.PhotoMime},
		Framing:     st.Framing,
		Style:       st.Style,
		AspectRatio: st.AspectRatio,
		Mode:        st.Mode,
	}

	h.tg.SendTyping(chatID)

	cb := turnaround.Callbacks{
		OnStage: func(stage turnaround.Stage, view int) {
			switch stage {
			case turnaround.StageAnalyzing:
				progress("Analyzing the photo and deriving the missing viewpoints...")
			case turnaround.StageRendering:
				progress(fmt.Sprintf("Rendering view %d of %d...", view, viewpoint.ViewCount))
				h.tg.SendTyping(chatID)
			}
		},
		OnImage: func(view int, img turnaround.GeneratedImage) {
			caption := fmt.Sprintf("View %d of %d: %s", view, viewpoint.ViewCount, img.Prompt)
			if err := h.tg.SendPhotoDataURL(chatID, img.DataURI, caption); err != nil {
				h.logger.Error("send view failed", "view", view, "err", err)
			}
		},
	}

	res, err := h.runner.Run(ctx, input, cb)
	if err != nil {
		progress(turnaround.Message(err))
		return nil
	}

	progress("Done. All three views are ready.")

	items := make([]archive.Item, 0, 1+len(res.Images))
	items = append(items, archive.Item{
		Name:    "original",
		DataURI: datauri.Format(st.PhotoMime, st.PhotoBase64),
	})
	for i, img := range res.Images {
		items = append(items, archive.Item{
			Name:    fmt.Sprintf("view-%d", i+1),
			DataURI: img.DataURI,
			Prompt:  img.Prompt,
		})
	}

	blob, err := archive.BuildZIP(items)
	if err != nil {
		h.logger.Error("archive build failed", "err", err)
		return nil
	}
	if err := h.tg.SendDocumentBytes(chatID, "turnaround.zip", blob, "Original plus all three generated views."); err != nil {
		h.logger.Error("send archive failed", "err", err)
	}
	return nil
}
