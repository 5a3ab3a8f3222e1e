package ui

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"plaichat/internal/api"
	"plaichat/internal/conversation"
	"plaichat/internal/i18n"
	"plaichat/internal/logger"
	"plaichat/internal/models"
	"plaichat/internal/session"
	"plaichat/internal/tokens"
)

const (
	MaxChatWidth = 100

	ThreadPageSize = 10
)

var ModalWidth = 60

// Rater stores thumbs up/down feedback for an assistant message.
type Rater interface {
	RateMessage(ctx context.Context, token, agentID, messageID string, rating models.Rating) *api.APIError
}

type Options struct {
	Session      *session.Context
	Conversation *conversation.Conversation
	Rater        Rater
	Store        tokens.Store
	Translator   *i18n.Translator
	Logger       *logger.Logger
	Bridge       *Bridge

	// TitleClient resolves titles of cited web sources. Nil disables lookups.
	TitleClient *http.Client

	// InitialPrompt is submitted as soon as the program starts.
	InitialPrompt string
}

// Bridge forwards notifications raised outside the event loop into the
// running program. Sends are asynchronous so callers inside Update never
// block on the program's message channel.
type Bridge struct {
	prog atomic.Pointer[tea.Program]
}

func (b *Bridge) Attach(p *tea.Program) { b.prog.Store(p) }

func (b *Bridge) Send(msg tea.Msg) {
	if p := b.prog.Load(); p != nil {
		go p.Send(msg)
	}
}

// Notify satisfies conversation.Notifier.
func (b *Bridge) Notify(message string) { b.Send(noticeMsg(message)) }

type (
	conversationChangedMsg struct{}
	sessionChangedMsg      struct{ Change session.Change }
	restartMsg             struct{ Req conversation.RestartRequired }
	noticeMsg              string
	clearNoticeMsg         struct{ seq int }
	submitMsg              struct{ Text string }

	sessionReadyMsg struct{ Err error }
	threadLoadedMsg struct {
		Thread *models.Thread
		Err    error
	}
	threadDeletedMsg struct {
		ID  string
		Err error
	}
	ratedMsg struct {
		Rating models.Rating
		Err    error
	}
	titleMsg struct{ URL, Title string }
)

type Model struct {
	Viewport  viewport.Model
	TextInput textarea.Model
	Spinner   spinner.Model
	Renderer  *glamour.TermRenderer

	ctx   context.Context
	sess  *session.Context
	conv  *conversation.Conversation
	rater Rater
	store tokens.Store
	tr    *i18n.Translator
	log   *logger.Logger

	titleClient   *http.Client
	titles        map[string]string
	titlesPending map[string]bool
	initialPrompt string

	WindowWidth  int
	WindowHeight int

	Notice    string
	noticeSeq int

	ThreadsOpen  bool
	ThreadSearch textinput.Model
	ThreadIdx    int
	ThreadPage   int

	ToolsOpen bool
	ToolIdx   int

	ShortcutsOpen bool
}
