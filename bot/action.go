package bot

import (
	"fmt"
	"strings"
)

// Action is the closed set of callback operations. Tokens are parsed
// once at the boundary into one of these variants; handlers match on
// the type instead of re-splitting strings.
type Action interface {
	Token() string
	isAction()
}

// ListChoiceAction selects the target list during idea capture.
type ListChoiceAction struct{ ListID string }

// BoardChoiceAction sets the chat's board.
type BoardChoiceAction struct{ BoardID string }

// SetListAction sets the chat's default list.
type SetListAction struct{ ListID string }

// ApproveAction / RejectAction resolve a pending access request.
type ApproveAction struct{ RequestID string }
type RejectAction struct{ RequestID string }

// CompleteAction archives a card. The bootstrap form additionally
// carries the list and originating chat so the link keeps working in
// a context with no prior session (e.g. opened fresh via deep link).
type CompleteAction struct {
	CardID string
	ListID string
	ChatID string
}

func (a ListChoiceAction) Token() string  { return "list:" + a.ListID }
func (a BoardChoiceAction) Token() string { return "board:" + a.BoardID }
func (a SetListAction) Token() string     { return "setlist:" + a.ListID }
func (a ApproveAction) Token() string     { return "approve:" + a.RequestID }
func (a RejectAction) Token() string      { return "reject:" + a.RequestID }

func (a CompleteAction) Token() string {
	if a.ListID != "" || a.ChatID != "" {
		token := "complete_" + a.CardID + "_" + a.ListID
		if a.ChatID != "" {
			token += "_" + a.ChatID
		}
		return token
	}
	return "complete:" + a.CardID
}

func (ListChoiceAction) isAction()  {}
func (BoardChoiceAction) isAction() {}
func (SetListAction) isAction()     {}
func (ApproveAction) isAction()     {}
func (RejectAction) isAction()      {}
func (CompleteAction) isAction()    {}

// ParseAction decodes an action token. Tokens are colon-delimited
// "action:param"; the bootstrap completion form is underscore-
// delimited and parsed positionally (card id, list id, optional chat
// identity) because the ids themselves are opaque.
func ParseAction(token string) (Action, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty action token")
	}

	if rest, ok := strings.CutPrefix(token, "complete_"); ok {
		parts := strings.SplitN(rest, "_", 3)
		if parts[0] == "" {
			return nil, fmt.Errorf("malformed completion token %q", token)
		}
		action := CompleteAction{CardID: parts[0]}
		if len(parts) > 1 {
			action.ListID = parts[1]
		}
		if len(parts) > 2 {
			action.ChatID = parts[2]
		}
		return action, nil
	}

	name, param, ok := strings.Cut(token, ":")
	if !ok || param == "" {
		return nil, fmt.Errorf("malformed action token %q", token)
	}
	switch name {
	case "list":
		return ListChoiceAction{ListID: param}, nil
	case "board":
		return BoardChoiceAction{BoardID: param}, nil
	case "setlist":
		return SetListAction{ListID: param}, nil
	case "approve":
		return ApproveAction{RequestID: param}, nil
	case "reject":
		return RejectAction{RequestID: param}, nil
	case "complete":
		return CompleteAction{CardID: param}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", name)
	}
}
