package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/EpicVillage/Trello-Bot/auth"
	"github.com/EpicVillage/Trello-Bot/session"
	"github.com/EpicVillage/Trello-Bot/telegram"
)

func (b *Bot) handleIdeaStart(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	key := session.KeyFor(identity(msg.From.ID), chatIdent, msg.Chat.IsGroup())

	_, hadSession := b.sessions.Get(key)
	b.sessions.Start(key, session.KindIdeaCapture, chatIdent)

	prompt := "Send me the idea. The first line becomes the card title; extra lines become details and links are picked up automatically."
	if hadSession {
		prompt = "Previous dialog discarded.\n" + prompt
	}
	b.reply(ctx, msg.Chat.ID, prompt)
}

func (b *Bot) handleWorkspaceStart(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	key := session.KeyFor(identity(msg.From.ID), chatIdent, msg.Chat.IsGroup())

	_, hadSession := b.sessions.Get(key)
	b.sessions.Start(key, session.KindWorkspaceSetup, chatIdent)

	prompt := "Send the Trello API key and token for this chat, either as two lines:\n\n<key>\n<token>\n\nor labeled:\n\nkey: <key>\ntoken: <token>"
	if hadSession {
		prompt = "Previous dialog discarded.\n" + prompt
	}
	b.reply(ctx, msg.Chat.ID, prompt)
}

func (b *Bot) handleWorkspaceRemove(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	removed, err := b.resolver.RemoveCredential(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "workspace_remove", err)
		return
	}
	if !removed {
		b.reply(ctx, msg.Chat.ID, "This chat already uses the shared account.")
		return
	}
	// The stored board/list ids belonged to the removed account's
	// namespace and must not survive it.
	if err := b.prefs.ClearConfig(ctx, chatIdent); err != nil {
		b.handlerError(ctx, msg.Chat.ID, "workspace_remove_clear_prefs", err)
		return
	}
	b.reply(ctx, msg.Chat.ID, "Workspace removed. This chat now uses the shared account; pick a board again with /setboard.")
}

func (b *Bot) handleCancel(ctx context.Context, msg *telegram.Message) {
	key := session.KeyFor(identity(msg.From.ID), identity(msg.Chat.ID), msg.Chat.IsGroup())
	if b.sessions.Delete(key) {
		b.reply(ctx, msg.Chat.ID, "Canceled.")
		return
	}
	b.reply(ctx, msg.Chat.ID, "Nothing to cancel.")
}

func (b *Bot) handleBoards(ctx context.Context, msg *telegram.Message) {
	client, _, err := b.resolver.Client(ctx, identity(msg.Chat.ID))
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "boards_resolve", err)
		return
	}
	boards, err := client.ListBoards(ctx)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "boards_list", err)
		return
	}
	b.replyMD(ctx, msg.Chat.ID, formatBoards(boards), nil)
}

func (b *Bot) handleSetBoard(ctx context.Context, msg *telegram.Message) {
	client, _, err := b.resolver.Client(ctx, identity(msg.Chat.ID))
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "setboard_resolve", err)
		return
	}
	boards, err := client.ListBoards(ctx)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "setboard_list", err)
		return
	}
	if len(boards) == 0 {
		b.reply(ctx, msg.Chat.ID, "No open boards on this account.")
		return
	}
	b.replyMD(ctx, msg.Chat.ID, "Pick a board for this chat:", boardChoiceKeyboard(boards))
}

func (b *Bot) handleLists(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	cfg, err := b.prefs.GetConfig(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "lists_config", err)
		return
	}
	if cfg.BoardID == "" {
		b.reply(ctx, msg.Chat.ID, "No board chosen yet. Use /setboard first.")
		return
	}
	client, _, err := b.resolver.Client(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "lists_resolve", err)
		return
	}
	lists, err := client.ListLists(ctx, cfg.BoardID)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "lists_list", err)
		return
	}
	b.replyMD(ctx, msg.Chat.ID, formatLists(lists, cfg.DefaultListID), nil)
}

func (b *Bot) handleSetList(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	cfg, err := b.prefs.GetConfig(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "setlist_config", err)
		return
	}
	if cfg.BoardID == "" {
		b.reply(ctx, msg.Chat.ID, "No board chosen yet. Use /setboard first.")
		return
	}
	client, _, err := b.resolver.Client(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "setlist_resolve", err)
		return
	}
	lists, err := client.ListLists(ctx, cfg.BoardID)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "setlist_list", err)
		return
	}
	if len(lists) == 0 {
		b.reply(ctx, msg.Chat.ID, "The chosen board has no open lists.")
		return
	}
	b.replyMD(ctx, msg.Chat.ID, "Pick the default list for new cards:", setListKeyboard(lists))
}

func (b *Bot) handleCards(ctx context.Context, msg *telegram.Message, query string) {
	chatIdent := identity(msg.Chat.ID)
	cfg, err := b.prefs.GetConfig(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "cards_config", err)
		return
	}
	client, _, err := b.resolver.Client(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "cards_resolve", err)
		return
	}

	query = strings.TrimSpace(query)
	if query != "" {
		if cfg.BoardID == "" {
			b.reply(ctx, msg.Chat.ID, "No board chosen yet. Use /setboard first.")
			return
		}
		cards, err := client.SearchCards(ctx, cfg.BoardID, query)
		if err != nil {
			b.handlerError(ctx, msg.Chat.ID, "cards_search", err)
			return
		}
		b.replyMD(ctx, msg.Chat.ID, formatCards(cards), cardsKeyboard(cards, chatIdent))
		return
	}

	if cfg.DefaultListID == "" {
		b.reply(ctx, msg.Chat.ID, "No default list chosen yet. Use /setlist first, or search with /cards <query>.")
		return
	}
	cards, err := client.ListCards(ctx, cfg.DefaultListID, false)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "cards_list", err)
		return
	}
	b.replyMD(ctx, msg.Chat.ID, formatCards(cards), cardsKeyboard(cards, chatIdent))
}

func (b *Bot) handleStatus(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	stats, err := b.prefs.GetStats(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "status_stats", err)
		return
	}
	cred, err := b.resolver.Resolve(ctx, chatIdent)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "status_resolve", err)
		return
	}
	b.replyMD(ctx, msg.Chat.ID, formatStatus(b.sup.Status(), stats, cred), nil)
}

func (b *Bot) handleAuthorize(ctx context.Context, msg *telegram.Message, args string, grant bool) {
	senderIdent := identity(msg.From.ID)
	if !b.gate.IsAdmin(senderIdent) {
		b.reply(ctx, msg.Chat.ID, "Admin only.")
		return
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(ctx, msg.Chat.ID, "Usage: /authorize <id> [group] or /unauthorize <id> [group]")
		return
	}
	target := fields[0]
	kind := auth.KindUser
	if len(fields) > 1 && strings.EqualFold(fields[1], "group") {
		kind = auth.KindGroup
	}

	var changed bool
	var err error
	if grant {
		changed, err = b.gate.Authorize(ctx, target, kind)
	} else {
		changed, err = b.gate.Unauthorize(ctx, target, kind)
	}
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "authorize_mutate", err)
		return
	}
	switch {
	case changed && grant:
		b.reply(ctx, msg.Chat.ID, "Authorized "+target+".")
	case changed:
		b.reply(ctx, msg.Chat.ID, "Unauthorized "+target+".")
	case grant:
		b.reply(ctx, msg.Chat.ID, "No change: already authorized.")
	case b.gate.IsAdmin(target):
		b.reply(ctx, msg.Chat.ID, "No change: admins cannot be unauthorized.")
	default:
		b.reply(ctx, msg.Chat.ID, "No change: not authorized in the first place.")
	}
}

func (b *Bot) handleRequestAccess(ctx context.Context, msg *telegram.Message) {
	chatIdent := identity(msg.Chat.ID)
	senderIdent := identity(msg.From.ID)
	isGroup := msg.Chat.IsGroup()

	already, err := b.gate.IsAuthorized(ctx, senderIdent, chatIdent, isGroup)
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "request_check", err)
		return
	}
	if already {
		b.reply(ctx, msg.Chat.ID, "You're already authorized.")
		return
	}

	kind := auth.KindUser
	if isGroup {
		kind = auth.KindGroup
	}
	req, err := b.gate.RequestAccess(ctx, auth.AccessRequest{
		RequesterID: senderIdent,
		DisplayName: msg.From.DisplayName(),
		ChatID:      chatIdent,
		ChatTitle:   msg.Chat.Title,
		Kind:        kind,
	})
	if err != nil {
		b.handlerError(ctx, msg.Chat.ID, "request_create", err)
		return
	}
	if req == nil {
		b.reply(ctx, msg.Chat.ID, "Your request is already pending.")
		return
	}

	b.reply(ctx, msg.Chat.ID, "Request sent. An admin will review it.")
	b.notifyAdmins(ctx, req)
}

func (b *Bot) notifyAdmins(ctx context.Context, req *auth.AccessRequest) {
	for _, admin := range b.gate.Admins() {
		adminID, err := strconv.ParseInt(admin, 10, 64)
		if err != nil {
			b.logger.Warn("bad_admin_identity", "identity", admin)
			continue
		}
		_, err = b.api.SendMessage(ctx, adminID, formatAccessRequest(req), telegram.SendOptions{
			ParseMode:   telegram.ParseModeMarkdownV2,
			ReplyMarkup: accessRequestKeyboard(req),
		})
		if err != nil {
			b.logger.Warn("admin_notify_failed", "admin", admin, "error", err.Error())
		}
	}
}
