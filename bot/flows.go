package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/EpicVillage/Trello-Bot/ideatext"
	"github.com/EpicVillage/Trello-Bot/session"
	"github.com/EpicVillage/Trello-Bot/telegram"
)

const (
	payloadTitle       = "title"
	payloadDescription = "description"
)

// advanceSession feeds one message into the sender's in-flight
// dialog. A returned error means the session could not proceed and
// must be torn down by the caller; recoverable user mistakes are
// reported inline and keep the session alive.
func (b *Bot) advanceSession(ctx context.Context, msg *telegram.Message, key string, sess session.Session, text string) error {
	switch {
	case sess.Kind == session.KindIdeaCapture && sess.Step == session.StepWaitingForIdea:
		return b.advanceIdeaCapture(ctx, msg, key, text)
	case sess.Kind == session.KindIdeaCapture && sess.Step == session.StepWaitingForList:
		// The list is chosen via the inline keyboard; free text while
		// waiting is noise, not a state transition.
		b.reply(ctx, msg.Chat.ID, "Pick a list from the buttons above, or /cancel.")
		return nil
	case sess.Kind == session.KindWorkspaceSetup && sess.Step == session.StepWaitingForCredentials:
		return b.advanceWorkspaceSetup(ctx, msg, key, text)
	default:
		return fmt.Errorf("session %q in unknown state %s/%s", key, sess.Kind, sess.Step)
	}
}

func (b *Bot) advanceIdeaCapture(ctx context.Context, msg *telegram.Message, key string, text string) error {
	structured := ideatext.Structure(text)
	if structured.Title == "" {
		b.reply(ctx, msg.Chat.ID, "I couldn't find a title in that. Send the idea again, first line is the title.")
		return nil
	}

	chatIdent := identity(msg.Chat.ID)
	cfg, err := b.prefs.GetConfig(ctx, chatIdent)
	if err != nil {
		return err
	}
	if cfg.BoardID == "" {
		b.sessions.Delete(key)
		b.reply(ctx, msg.Chat.ID, "No board chosen for this chat yet. Use /setboard first, then /idea again.")
		return nil
	}

	client, _, err := b.resolver.Client(ctx, chatIdent)
	if err != nil {
		return err
	}
	lists, err := client.ListLists(ctx, cfg.BoardID)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		b.sessions.Delete(key)
		b.reply(ctx, msg.Chat.ID, "The chosen board has no open lists. Fix the board in Trello, then /idea again.")
		return nil
	}

	updated := b.sessions.Update(key, func(s *session.Session) {
		s.Step = session.StepWaitingForList
		s.Payload[payloadTitle] = structured.Title
		s.Payload[payloadDescription] = structured.RenderedDescription
	})
	if !updated {
		// Session vanished between Get and Update (e.g. /cancel raced
		// in); nothing to do.
		return nil
	}

	b.replyMD(ctx, msg.Chat.ID,
		"Got it: *"+telegram.EscapeMarkdownV2(structured.Title)+"*\nWhich list should it go to?",
		listChoiceKeyboard(lists))
	return nil
}

func (b *Bot) advanceWorkspaceSetup(ctx context.Context, msg *telegram.Message, key string, text string) error {
	apiKey, token, label, ok := parseCredentialBlob(text)
	if !ok {
		b.reply(ctx, msg.Chat.ID, "That doesn't look like credentials. Send the API key and token as two lines, or as \"key: ...\" and \"token: ...\" lines.")
		return nil
	}

	chatIdent := identity(msg.Chat.ID)
	result, err := b.resolver.SetCredential(ctx, chatIdent, apiKey, token, label)
	if err != nil {
		return err
	}
	if !result.Valid {
		reason := result.Reason
		if reason == "" {
			reason = "Trello rejected them"
		}
		b.reply(ctx, msg.Chat.ID, "Those credentials don't work: "+reason+". Send another pair, or /cancel.")
		return nil
	}

	// Board and list ids from the previous account are meaningless in
	// the new one.
	if err := b.prefs.ClearConfig(ctx, chatIdent); err != nil {
		return err
	}

	b.sessions.Delete(key)
	account := result.AccountLabel
	if account == "" {
		account = "the new account"
	}
	b.reply(ctx, msg.Chat.ID, "Workspace connected as "+account+". Board and list choices were reset; pick a board with /setboard.")
	return nil
}

// parseCredentialBlob accepts two layouts: labeled "key:"/"token:"
// (and optional "label:") lines in any order, or exactly two bare
// non-empty lines taken as key then token.
func parseCredentialBlob(text string) (apiKey, token, label string, ok bool) {
	var bare []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "key", "api key", "api_key", "apikey":
				apiKey = value
				continue
			case "token":
				token = value
				continue
			case "label", "workspace", "name":
				label = value
				continue
			}
		}
		bare = append(bare, line)
	}

	if apiKey != "" && token != "" {
		return apiKey, token, label, true
	}
	if apiKey == "" && token == "" && label == "" && len(bare) == 2 {
		return bare[0], bare[1], "", true
	}
	return "", "", "", false
}
