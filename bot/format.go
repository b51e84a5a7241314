package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/EpicVillage/Trello-Bot/auth"
	"github.com/EpicVillage/Trello-Bot/creds"
	"github.com/EpicVillage/Trello-Bot/prefs"
	"github.com/EpicVillage/Trello-Bot/telegram"
	"github.com/EpicVillage/Trello-Bot/trello"
)

const maxKeyboardRows = 8

func helpText(botUsername string) string {
	var b strings.Builder
	b.WriteString("I capture ideas and tasks into Trello.\n\n")
	b.WriteString("/idea - start capturing an idea\n")
	b.WriteString("/cards [query] - list or search cards\n")
	b.WriteString("/boards - show your boards\n")
	b.WriteString("/setboard - choose the board for this chat\n")
	b.WriteString("/lists - show lists on the chosen board\n")
	b.WriteString("/setlist - choose the default list\n")
	b.WriteString("/workspace - connect this chat to its own Trello account\n")
	b.WriteString("/workspace_remove - go back to the shared account\n")
	b.WriteString("/status - connection and usage info\n")
	b.WriteString("/request - ask for access\n")
	b.WriteString("/cancel - abort the current dialog\n")
	if botUsername != "" {
		b.WriteString("\nIn groups, address commands as /idea@" + botUsername + ".")
	}
	return b.String()
}

func formatBoards(boards []trello.Board) string {
	if len(boards) == 0 {
		return "No open boards on this account\\."
	}
	var b strings.Builder
	b.WriteString("*Boards:*\n")
	for _, board := range boards {
		b.WriteString("\\- ")
		b.WriteString(telegram.EscapeMarkdownV2(board.Name))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLists(lists []trello.List, defaultListID string) string {
	if len(lists) == 0 {
		return "No open lists on this board\\."
	}
	var b strings.Builder
	b.WriteString("*Lists:*\n")
	for _, list := range lists {
		b.WriteString("\\- ")
		b.WriteString(telegram.EscapeMarkdownV2(list.Name))
		if list.ID == defaultListID {
			b.WriteString(" \\(default\\)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCards(cards []trello.Card) string {
	if len(cards) == 0 {
		return "No cards found\\."
	}
	var b strings.Builder
	b.WriteString("*Cards:*\n")
	for _, card := range cards {
		b.WriteString("\\- ")
		if card.ShortURL != "" {
			b.WriteString("[")
			b.WriteString(telegram.EscapeMarkdownV2(card.Name))
			b.WriteString("](")
			b.WriteString(card.ShortURL)
			b.WriteString(")")
		} else {
			b.WriteString(telegram.EscapeMarkdownV2(card.Name))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCardCreated(card *trello.Card, listName string) string {
	var b strings.Builder
	b.WriteString("Created *")
	b.WriteString(telegram.EscapeMarkdownV2(card.Name))
	b.WriteString("*")
	if listName != "" {
		b.WriteString(" in *")
		b.WriteString(telegram.EscapeMarkdownV2(listName))
		b.WriteString("*")
	}
	if card.ShortURL != "" {
		b.WriteString("\n")
		b.WriteString(telegram.EscapeMarkdownV2(card.ShortURL))
	}
	return b.String()
}

func formatStatus(health Health, stats prefs.Stats, cred creds.Credential) string {
	var b strings.Builder
	b.WriteString("*Connection:* ")
	switch {
	case health.FatalConflict:
		b.WriteString("stopped \\(another instance is running\\)")
	case health.Failed:
		b.WriteString(fmt.Sprintf("down, gave up after %d attempts", health.ReconnectAttempts))
	case health.Connected:
		b.WriteString("ok")
	default:
		b.WriteString(fmt.Sprintf("reconnecting \\(attempt %d, next delay %s\\)",
			health.ReconnectAttempts,
			telegram.EscapeMarkdownV2(health.ReconnectDelay.String()),
		))
	}
	if !health.LastSuccessfulConnectionAt.IsZero() {
		b.WriteString("\n*Last connected:* ")
		b.WriteString(telegram.EscapeMarkdownV2(
			health.LastSuccessfulConnectionAt.Format(time.RFC3339),
		))
	}
	b.WriteString("\n*Workspace:* ")
	if cred.Default {
		b.WriteString("shared account")
	} else if cred.WorkspaceLabel != "" {
		b.WriteString(telegram.EscapeMarkdownV2(cred.WorkspaceLabel))
	} else {
		b.WriteString("dedicated account")
	}
	b.WriteString(fmt.Sprintf("\n*Ideas created:* %d\n*Cards completed:* %d",
		stats.IdeasCreated, stats.CardsCompleted))
	return b.String()
}

func listChoiceKeyboard(lists []trello.List) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(lists))
	for _, list := range lists {
		if len(rows) >= maxKeyboardRows {
			break
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         list.Name,
			CallbackData: ListChoiceAction{ListID: list.ID}.Token(),
		}})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func boardChoiceKeyboard(boards []trello.Board) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(boards))
	for _, board := range boards {
		if len(rows) >= maxKeyboardRows {
			break
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         board.Name,
			CallbackData: BoardChoiceAction{BoardID: board.ID}.Token(),
		}})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func setListKeyboard(lists []trello.List) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(lists))
	for _, list := range lists {
		if len(rows) >= maxKeyboardRows {
			break
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         list.Name,
			CallbackData: SetListAction{ListID: list.ID}.Token(),
		}})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cardsKeyboard(cards []trello.Card, chatID string) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(cards))
	for _, card := range cards {
		if len(rows) >= maxKeyboardRows {
			break
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text: "Done: " + card.Name,
			CallbackData: CompleteAction{
				CardID: card.ID,
				ListID: card.IDList,
				ChatID: chatID,
			}.Token(),
		}})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func accessRequestKeyboard(req *auth.AccessRequest) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "Approve", CallbackData: ApproveAction{RequestID: req.ID}.Token()},
			{Text: "Reject", CallbackData: RejectAction{RequestID: req.ID}.Token()},
		}},
	}
}

func formatAccessRequest(req *auth.AccessRequest) string {
	var b strings.Builder
	b.WriteString("*Access request*\n")
	b.WriteString("From: ")
	b.WriteString(telegram.EscapeMarkdownV2(req.DisplayName))
	b.WriteString(" \\(")
	b.WriteString(telegram.EscapeMarkdownV2(req.RequesterID))
	b.WriteString("\\)\n")
	if req.Kind == auth.KindGroup {
		b.WriteString("Group: ")
		if req.ChatTitle != "" {
			b.WriteString(telegram.EscapeMarkdownV2(req.ChatTitle))
			b.WriteString(" \\(")
			b.WriteString(telegram.EscapeMarkdownV2(req.ChatID))
			b.WriteString("\\)")
		} else {
			b.WriteString(telegram.EscapeMarkdownV2(req.ChatID))
		}
	} else {
		b.WriteString("Private chat")
	}
	return b.String()
}
