// Package bot routes inbound Telegram updates to command handlers and
// conversation flows, and supervises the inbound stream.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/EpicVillage/Trello-Bot/auth"
	"github.com/EpicVillage/Trello-Bot/creds"
	"github.com/EpicVillage/Trello-Bot/prefs"
	"github.com/EpicVillage/Trello-Bot/session"
	"github.com/EpicVillage/Trello-Bot/telegram"
)

const genericFailure = "Something went wrong, please try again."

type Bot struct {
	api      *telegram.API
	gate     *auth.Gate
	resolver *creds.Resolver
	prefs    *prefs.Store
	sessions *session.Store
	sup      *Supervisor
	logger   *slog.Logger
	username string
}

type Deps struct {
	API        *telegram.API
	Gate       *auth.Gate
	Resolver   *creds.Resolver
	Prefs      *prefs.Store
	Sessions   *session.Store
	Supervisor *Supervisor
	Logger     *slog.Logger
	Username   string
}

func New(deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      deps.API,
		gate:     deps.Gate,
		resolver: deps.Resolver,
		prefs:    deps.Prefs,
		sessions: deps.Sessions,
		sup:      deps.Supervisor,
		logger:   logger,
		username: deps.Username,
	}
}

// Run consumes updates until ctx is canceled or the channel closes.
// Updates are handled one at a time; each handler is isolated, so a
// failure in one never reaches the next.
func (b *Bot) Run(ctx context.Context, updates <-chan telegram.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate processes one update. Panics and errors are contained
// here: logged, answered with a generic failure, never propagated. A
// panic mid-dialog tears the session down like any other failure.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	chatID, key := updateScope(&u)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler_panic", "panic", r)
			if key != "" {
				b.sessions.Delete(key)
			}
			if chatID != 0 {
				b.reply(ctx, chatID, genericFailure)
			}
		}
	}()

	if u.CallbackQuery != nil {
		b.handleCallback(ctx, u.CallbackQuery)
		return
	}

	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	b.handleMessage(ctx, msg)
}

func identity(id int64) string { return strconv.FormatInt(id, 10) }

// updateScope extracts the chat and session key an update acts on, so
// the panic boundary can fail closed without re-entering handler code.
func updateScope(u *telegram.Update) (chatID int64, sessionKey string) {
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	from := (*telegram.User)(nil)
	if u.CallbackQuery != nil {
		msg = u.CallbackQuery.Message
		from = u.CallbackQuery.From
	} else if msg != nil {
		from = msg.From
	}
	if msg == nil || msg.Chat == nil {
		return 0, ""
	}
	chatID = msg.Chat.ID
	if from != nil {
		sessionKey = session.KeyFor(identity(from.ID), identity(chatID), msg.Chat.IsGroup())
	}
	return chatID, sessionKey
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID
	chatIdent := identity(chatID)
	senderIdent := identity(msg.From.ID)
	isGroup := msg.Chat.IsGroup()

	cmdWord, cmdArgs := splitCommand(text)
	cmd := normalizeSlashCommand(cmdWord)

	switch cmd {
	case "/start", "/help":
		b.reply(ctx, chatID, helpText(b.username))
		return
	case "/id":
		b.reply(ctx, chatID, "chat_id="+chatIdent+" user_id="+senderIdent+" type="+msg.Chat.Type)
		return
	case "/request":
		b.handleRequestAccess(ctx, msg)
		return
	case "/cancel":
		b.handleCancel(ctx, msg)
		return
	case "":
		b.handlePlainText(ctx, msg, text)
		return
	}

	ok, err := b.gate.IsAuthorized(ctx, senderIdent, chatIdent, isGroup)
	if err != nil {
		b.handlerError(ctx, chatID, "authorization_check", err)
		return
	}
	if !ok {
		b.logger.Warn("unauthorized_command", "chat", chatIdent, "sender", senderIdent, "command", cmd)
		b.reply(ctx, chatID, "You're not authorized to use this bot. Send /request to ask for access.")
		return
	}

	switch cmd {
	case "/idea", "/task":
		b.handleIdeaStart(ctx, msg)
	case "/workspace":
		b.handleWorkspaceStart(ctx, msg)
	case "/workspace_remove":
		b.handleWorkspaceRemove(ctx, msg)
	case "/boards":
		b.handleBoards(ctx, msg)
	case "/setboard":
		b.handleSetBoard(ctx, msg)
	case "/lists":
		b.handleLists(ctx, msg)
	case "/setlist":
		b.handleSetList(ctx, msg)
	case "/cards":
		b.handleCards(ctx, msg, cmdArgs)
	case "/status":
		b.handleStatus(ctx, msg)
	case "/authorize":
		b.handleAuthorize(ctx, msg, cmdArgs, true)
	case "/unauthorize":
		b.handleAuthorize(ctx, msg, cmdArgs, false)
	default:
		b.reply(ctx, chatID, "Unknown command. Send /help for the list.")
	}
}

// handlePlainText advances an in-flight session, if the sender owns
// one for this chat scope.
func (b *Bot) handlePlainText(ctx context.Context, msg *telegram.Message, text string) {
	chatIdent := identity(msg.Chat.ID)
	senderIdent := identity(msg.From.ID)
	isGroup := msg.Chat.IsGroup()
	key := session.KeyFor(senderIdent, chatIdent, isGroup)

	sess, ok := b.sessions.Get(key)
	if !ok {
		if !isGroup {
			ok, err := b.gate.IsAuthorized(ctx, senderIdent, chatIdent, isGroup)
			if err == nil && ok {
				b.reply(ctx, msg.Chat.ID, "Send /idea to start capturing, or /help for all commands.")
			}
		}
		return
	}

	// The session only advances on input from its owning scope; the
	// authorization that admitted the entry command is re-checked so
	// revocation mid-dialog takes effect immediately.
	authorized, err := b.gate.IsAuthorized(ctx, senderIdent, chatIdent, isGroup)
	if err != nil {
		b.failSession(ctx, key, msg.Chat.ID, "session_auth_check", err)
		return
	}
	if !authorized {
		return
	}

	if err := b.advanceSession(ctx, msg, key, sess, text); err != nil {
		b.failSession(ctx, key, msg.Chat.ID, "session_advance", err)
	}
}

// failSession enforces fail-closed sessions: whatever went wrong, the
// session is gone before the user hears about it.
func (b *Bot) failSession(ctx context.Context, key string, chatID int64, op string, err error) {
	b.sessions.Delete(key)
	b.handlerError(ctx, chatID, op, err)
}

func (b *Bot) handlerError(ctx context.Context, chatID int64, op string, err error) {
	b.logger.Error("handler_error", "op", op, "error", err.Error())
	b.reply(ctx, chatID, genericFailure)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, chatID, text, telegram.SendOptions{DisableWebPagePreview: true}); err != nil {
		b.logger.Warn("send_failed", "chat", chatID, "error", err.Error())
	}
}

func (b *Bot) replyMD(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
	_, err := b.api.SendMessage(ctx, chatID, text, telegram.SendOptions{
		ParseMode:             telegram.ParseModeMarkdownV2,
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard,
	})
	if err != nil {
		b.logger.Warn("send_failed", "chat", chatID, "error", err.Error())
	}
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// normalizeSlashCommand lowercases a leading slash command and strips
// "@BotName" suffixes. Non-commands normalize to "".
func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
