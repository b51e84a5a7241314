package bot

import (
	"context"
	"strconv"

	"github.com/EpicVillage/Trello-Bot/auth"
	"github.com/EpicVillage/Trello-Bot/session"
	"github.com/EpicVillage/Trello-Bot/telegram"
)

// handleCallback dispatches an inline keyboard tap. The token is
// parsed exactly once; everything downstream works with the typed
// action.
func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}

	action, err := ParseAction(cq.Data)
	if err != nil {
		b.logger.Warn("bad_action_token", "data", cq.Data, "error", err.Error())
		b.ackCallback(ctx, cq.ID, "This button is no longer valid.")
		return
	}

	chat := cq.Message.Chat
	senderIdent := identity(cq.From.ID)
	chatIdent := identity(chat.ID)

	switch a := action.(type) {
	case ApproveAction, RejectAction:
		b.handleRequestResolution(ctx, cq, action)
		return
	case ListChoiceAction:
		if !b.requireCallbackAuth(ctx, cq, senderIdent, chatIdent, chat.IsGroup()) {
			return
		}
		b.handleListChoice(ctx, cq, a)
		return
	case BoardChoiceAction:
		if !b.requireCallbackAuth(ctx, cq, senderIdent, chatIdent, chat.IsGroup()) {
			return
		}
		b.handleBoardChoice(ctx, cq, a)
		return
	case SetListAction:
		if !b.requireCallbackAuth(ctx, cq, senderIdent, chatIdent, chat.IsGroup()) {
			return
		}
		b.handleSetListChoice(ctx, cq, a)
		return
	case CompleteAction:
		if !b.requireCallbackAuth(ctx, cq, senderIdent, chatIdent, chat.IsGroup()) {
			return
		}
		b.handleComplete(ctx, cq, a)
		return
	}
}

func (b *Bot) requireCallbackAuth(ctx context.Context, cq *telegram.CallbackQuery, senderIdent, chatIdent string, isGroup bool) bool {
	ok, err := b.gate.IsAuthorized(ctx, senderIdent, chatIdent, isGroup)
	if err != nil {
		b.logger.Error("callback_auth_check", "error", err.Error())
		b.ackCallback(ctx, cq.ID, genericFailure)
		return false
	}
	if !ok {
		b.ackCallback(ctx, cq.ID, "Not authorized.")
		return false
	}
	return true
}

// handleListChoice completes idea capture: the tapped list gets the
// card built from the session payload. The session is consumed either
// way; a half-finished dialog never lingers after a failure.
func (b *Bot) handleListChoice(ctx context.Context, cq *telegram.CallbackQuery, a ListChoiceAction) {
	chat := cq.Message.Chat
	chatIdent := identity(chat.ID)
	key := session.KeyFor(identity(cq.From.ID), chatIdent, chat.IsGroup())

	sess, found := b.sessions.Get(key)
	if !found || sess.Kind != session.KindIdeaCapture || sess.Step != session.StepWaitingForList {
		b.ackCallback(ctx, cq.ID, "This dialog already ended. Start over with /idea.")
		return
	}

	client, _, err := b.resolver.Client(ctx, chatIdent)
	if err != nil {
		b.failSessionCallback(ctx, cq, key, "list_choice_resolve", err)
		return
	}
	card, err := client.CreateCard(ctx, a.ListID, sess.Payload[payloadTitle], sess.Payload[payloadDescription])
	if err != nil {
		b.failSessionCallback(ctx, cq, key, "list_choice_create", err)
		return
	}
	b.sessions.Delete(key)

	if err := b.prefs.CountIdeaCreated(ctx, chatIdent); err != nil {
		b.logger.Warn("idea_count_failed", "chat", chatIdent, "error", err.Error())
	}

	listName := ""
	cfg, err := b.prefs.GetConfig(ctx, chatIdent)
	if err == nil && cfg.BoardID != "" {
		if lists, err := client.ListLists(ctx, cfg.BoardID); err == nil {
			for _, list := range lists {
				if list.ID == a.ListID {
					listName = list.Name
					break
				}
			}
		}
	}

	b.editCallbackMessage(ctx, cq, formatCardCreated(card, listName))
	b.ackCallback(ctx, cq.ID, "Card created.")
	b.logger.Info("card_created", "chat", chatIdent, "card", card.ID, "list", a.ListID)
}

func (b *Bot) handleBoardChoice(ctx context.Context, cq *telegram.CallbackQuery, a BoardChoiceAction) {
	chatIdent := identity(cq.Message.Chat.ID)
	if err := b.prefs.SetBoard(ctx, chatIdent, a.BoardID); err != nil {
		b.logger.Error("set_board_failed", "chat", chatIdent, "error", err.Error())
		b.ackCallback(ctx, cq.ID, genericFailure)
		return
	}

	boardName := a.BoardID
	if client, _, err := b.resolver.Client(ctx, chatIdent); err == nil {
		if boards, err := client.ListBoards(ctx); err == nil {
			for _, board := range boards {
				if board.ID == a.BoardID {
					boardName = board.Name
					break
				}
			}
		}
	}

	b.editCallbackMessage(ctx, cq,
		"Board set to *"+telegram.EscapeMarkdownV2(boardName)+"*\\. Pick a default list with /setlist\\.")
	b.ackCallback(ctx, cq.ID, "Board set.")
	b.logger.Info("board_set", "chat", chatIdent, "board", a.BoardID)
}

func (b *Bot) handleSetListChoice(ctx context.Context, cq *telegram.CallbackQuery, a SetListAction) {
	chatIdent := identity(cq.Message.Chat.ID)
	if err := b.prefs.SetDefaultList(ctx, chatIdent, a.ListID); err != nil {
		b.logger.Error("set_list_failed", "chat", chatIdent, "error", err.Error())
		b.ackCallback(ctx, cq.ID, genericFailure)
		return
	}
	b.editCallbackMessage(ctx, cq, "Default list saved\\. New cards land there unless you pick otherwise\\.")
	b.ackCallback(ctx, cq.ID, "Default list saved.")
	b.logger.Info("default_list_set", "chat", chatIdent, "list", a.ListID)
}

// handleComplete archives a card. The bootstrap token form carries the
// originating chat identity so the credential lookup follows the chat
// the card list was rendered for, not where the button was tapped.
func (b *Bot) handleComplete(ctx context.Context, cq *telegram.CallbackQuery, a CompleteAction) {
	chatIdent := identity(cq.Message.Chat.ID)
	if a.ChatID != "" {
		chatIdent = a.ChatID
	}

	client, _, err := b.resolver.Client(ctx, chatIdent)
	if err != nil {
		b.logger.Error("complete_resolve", "chat", chatIdent, "error", err.Error())
		b.ackCallback(ctx, cq.ID, genericFailure)
		return
	}
	if err := client.ArchiveCard(ctx, a.CardID); err != nil {
		b.logger.Error("complete_archive", "chat", chatIdent, "card", a.CardID, "error", err.Error())
		b.ackCallback(ctx, cq.ID, genericFailure)
		return
	}
	if err := b.prefs.CountCardCompleted(ctx, chatIdent); err != nil {
		b.logger.Warn("complete_count_failed", "chat", chatIdent, "error", err.Error())
	}
	b.ackCallback(ctx, cq.ID, "Done. Card archived.")
	b.logger.Info("card_completed", "chat", chatIdent, "card", a.CardID)
}

// handleRequestResolution lets an admin approve or reject from the
// notification message. Resolution is terminal: a second tap on a
// stale button reports the settled outcome instead of re-resolving.
func (b *Bot) handleRequestResolution(ctx context.Context, cq *telegram.CallbackQuery, action Action) {
	if !b.gate.IsAdmin(identity(cq.From.ID)) {
		b.ackCallback(ctx, cq.ID, "Admin only.")
		return
	}

	var req *auth.AccessRequest
	var changed bool
	var err error
	switch a := action.(type) {
	case ApproveAction:
		req, changed, err = b.gate.Approve(ctx, a.RequestID)
	case RejectAction:
		req, changed, err = b.gate.Reject(ctx, a.RequestID)
	default:
		return
	}
	if err != nil {
		b.logger.Error("request_resolve", "error", err.Error())
		b.ackCallback(ctx, cq.ID, genericFailure)
		return
	}
	if !changed {
		b.ackCallback(ctx, cq.ID, "Already resolved: "+string(req.Status)+".")
		return
	}

	verdict := "rejected"
	userText := "Your access request was declined."
	if req.Status == auth.StatusApproved {
		verdict = "approved"
		userText = "Access granted. Send /help to see what I can do."
	}

	b.editCallbackMessage(ctx, cq,
		formatAccessRequest(req)+"\n\n*Resolved:* "+verdict)
	b.ackCallback(ctx, cq.ID, "Request "+verdict+".")

	// The requester hears the verdict in the chat the request came
	// from (the group itself for group requests).
	target := req.RequesterID
	if req.Kind == auth.KindGroup {
		target = req.ChatID
	}
	if targetID, perr := strconv.ParseInt(target, 10, 64); perr == nil {
		b.reply(ctx, targetID, userText)
	} else {
		b.logger.Warn("requester_notify_skipped", "target", target)
	}
}

func (b *Bot) failSessionCallback(ctx context.Context, cq *telegram.CallbackQuery, key, op string, err error) {
	b.sessions.Delete(key)
	b.logger.Error("handler_error", "op", op, "error", err.Error())
	b.ackCallback(ctx, cq.ID, genericFailure)
}

func (b *Bot) ackCallback(ctx context.Context, callbackID, text string) {
	if err := b.api.AnswerCallbackQuery(ctx, callbackID, text, false); err != nil {
		b.logger.Warn("callback_ack_failed", "error", err.Error())
	}
}

func (b *Bot) editCallbackMessage(ctx context.Context, cq *telegram.CallbackQuery, text string) {
	err := b.api.EditMessageText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, text, telegram.SendOptions{
		ParseMode:             telegram.ParseModeMarkdownV2,
		DisableWebPagePreview: true,
	})
	if err != nil {
		b.logger.Warn("edit_failed", "chat", cq.Message.Chat.ID, "error", err.Error())
	}
}
