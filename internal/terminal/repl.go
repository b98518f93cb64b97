package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/docqa/console/internal/pubsub"
	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/internal/storage/models"
)

const historyLimit = 20

// Archive is the cross-session history search used by /history.
type Archive interface {
	SearchHistory(ctx context.Context, term string, limit int) ([]models.HistoryRecord, error)
}

const helpText = `Commands:
  <text>               ask a question about the selected documents
  /docs                reload and list documents
  /select ID           toggle a document
  /all                 select or deselect all documents
  /delete ID           delete a document
  /upload PATH...      upload files
  /clear               clear the conversation
  /good ID [comment]   rate an answer as helpful
  /bad ID [comment]    rate an answer as unhelpful
  /search TERM         search this conversation
  /history TERM        search archived conversations
  /suggest             show follow-up suggestions
  /use N               ask suggestion N
  /copy ID             print an answer without formatting
  /help                show this help
  /exit                quit`

// REPL drives one session from a line-oriented terminal.
type REPL struct {
	ctrl       *session.Controller
	r          *Renderer
	in         *bufio.Scanner
	archive    Archive
	extensions []string

	// progressMu orders progress lines against the line cleared after an answer.
	progressMu sync.Mutex
}

func NewREPL(ctrl *session.Controller, r *Renderer, in io.Reader) *REPL {
	return &REPL{
		ctrl:       ctrl,
		r:          r,
		in:         bufio.NewScanner(in),
		extensions: models.DefaultUploadExtensions,
	}
}

func (p *REPL) WithArchive(a Archive) *REPL {
	p.archive = a
	return p
}

func (p *REPL) WithExtensions(exts []string) *REPL {
	if len(exts) > 0 {
		p.extensions = exts
	}
	return p
}

// Run reads commands until /exit, end of input or ctx is done.
func (p *REPL) Run(ctx context.Context) error {
	events := p.ctrl.Subscribe(ctx)
	go p.watchProgress(events)

	if err := p.ctrl.EnsureDocumentsLoaded(ctx); err != nil {
		p.r.Warn("Could not load documents: %v", err)
	} else {
		s := p.ctrl.Snapshot()
		p.r.Documents(s.Documents, s.Selected)
	}
	p.r.Info("Type /help for commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}

		p.r.Prompt()
		line, ok := p.readLine()
		if !ok {
			return p.in.Err()
		}

		if quit := p.Handle(ctx, line); quit {
			return nil
		}
	}
}

func (p *REPL) watchProgress(events <-chan pubsub.Event[session.Update]) {
	for ev := range events {
		if ev.Type == pubsub.ProgressEvent {
			p.showProgress(ev.Payload.Progress)
		}
	}
}

// showProgress drops events that arrive after the query finished.
func (p *REPL) showProgress(text string) bool {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()

	if p.ctrl.Snapshot().Phase == session.PhaseIdle {
		return false
	}
	p.r.Progress(text)
	return true
}

func (p *REPL) readLine() (string, bool) {
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

func (p *REPL) confirm(prompt string) bool {
	p.r.Info("%s [y/N]", prompt)
	answer, ok := p.readLine()
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// Handle runs one input line and reports whether the user asked to quit.
func (p *REPL) Handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		p.submit(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		p.r.Info(helpText)
	case "/docs":
		p.reloadDocuments(ctx)
	case "/select":
		p.toggle(args)
	case "/all":
		p.ctrl.ToggleSelectAll()
		s := p.ctrl.Snapshot()
		p.r.Documents(s.Documents, s.Selected)
	case "/delete":
		p.remove(ctx, args)
	case "/upload":
		p.upload(ctx, args)
	case "/clear":
		p.clear(ctx)
	case "/good":
		p.feedback(ctx, models.FeedbackPositive, args)
	case "/bad":
		p.feedback(ctx, models.FeedbackNegative, args)
	case "/search":
		p.search(strings.Join(args, " "))
	case "/history":
		p.history(ctx, strings.Join(args, " "))
	case "/suggest":
		p.suggest()
	case "/use":
		p.useSuggestion(ctx, args)
	case "/copy":
		p.copy(args)
	default:
		p.r.Error("Unknown command %s. Type /help for commands.", cmd)
	}
	return false
}

func (p *REPL) submit(ctx context.Context, text string) {
	res := p.ctrl.Submit(ctx, text)

	if res.Status == session.SubmitNeedsConfirmation {
		if p.confirm("No documents selected. Search all documents?") {
			res = p.ctrl.ConfirmSearchAll(ctx)
		} else {
			p.ctrl.CancelSearchAll()
			p.r.Info("Cancelled. Select documents with /select ID.")
			return
		}
	}

	p.progressMu.Lock()
	p.r.Progress("")
	p.progressMu.Unlock()

	switch res.Status {
	case session.SubmitCompleted:
		p.r.Message(*res.Answer)
		p.r.Suggestions(p.ctrl.Snapshot().Suggestions)
	case session.SubmitIgnored:
		if res.Reason == "busy" {
			p.r.Warn("A query is already running.")
		}
	}
}

func (p *REPL) reloadDocuments(ctx context.Context) {
	if err := p.ctrl.LoadDocuments(ctx); err != nil {
		p.r.Error("Could not load documents: %v", err)
		return
	}
	s := p.ctrl.Snapshot()
	p.r.Documents(s.Documents, s.Selected)
}

func (p *REPL) toggle(args []string) {
	id, ok := p.intArg(args, "document ID")
	if !ok {
		return
	}
	if err := p.ctrl.ToggleSelect(id); err != nil {
		p.r.Error("%v", err)
		return
	}
	s := p.ctrl.Snapshot()
	p.r.Documents(s.Documents, s.Selected)
}

func (p *REPL) remove(ctx context.Context, args []string) {
	id, ok := p.intArg(args, "document ID")
	if !ok {
		return
	}
	if !p.confirm(fmt.Sprintf("Delete document %d?", id)) {
		return
	}
	if err := p.ctrl.RemoveDocument(ctx, id); err != nil {
		p.r.Error("%v", err)
		return
	}
	p.r.Info("Document %d deleted.", id)
	s := p.ctrl.Snapshot()
	p.r.Documents(s.Documents, s.Selected)
}

func (p *REPL) upload(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		p.r.Error("Usage: /upload PATH...")
		return
	}

	files := make([]session.UploadFile, 0, len(paths))
	for _, path := range paths {
		if !models.AllowedExtension(path, p.extensions) {
			p.r.Upload(models.UploadResult{
				Filename: filepath.Base(path),
				Status:   models.UploadError,
				Message:  "Unsupported file type (allowed: " + strings.Join(p.extensions, ", ") + ")",
			})
			continue
		}
		files = append(files, FileUpload(path))
	}

	if len(files) == 0 {
		return
	}

	p.r.Info("Uploading %d file(s)...", len(files))
	for _, res := range p.ctrl.UploadAll(ctx, files) {
		p.r.Upload(res)
	}
}

// FileUpload opens path lazily when the upload reaches it.
func FileUpload(path string) session.UploadFile {
	return session.UploadFile{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

func (p *REPL) clear(ctx context.Context) {
	if err := p.ctrl.ProposeClear(); err != nil {
		p.r.Error("%v", err)
		return
	}
	if !p.confirm("Clear the whole conversation?") {
		p.ctrl.CancelClear()
		return
	}
	if p.ctrl.ConfirmClear(ctx) {
		p.r.Info("Conversation cleared.")
	}
}

func (p *REPL) feedback(ctx context.Context, t models.FeedbackType, args []string) {
	id, ok := p.intArg(args, "message ID")
	if !ok {
		return
	}
	comment := strings.Join(args[1:], " ")

	err := p.ctrl.SetFeedback(ctx, id, t, comment)
	switch {
	case errors.Is(err, session.ErrUnknownMessage):
		p.r.Error("No answer with ID %d.", id)
	case errors.Is(err, session.ErrFeedback):
		// Logged by the controller.
	case err != nil:
		p.r.Error("%v", err)
	default:
		p.r.Info("Thanks for the feedback.")
	}
}

func (p *REPL) search(term string) {
	msgs := p.ctrl.SearchConversation(term)
	if len(msgs) == 0 {
		p.r.Info("No matching messages.")
		return
	}
	for _, m := range msgs {
		p.r.Message(m)
	}
}

func (p *REPL) history(ctx context.Context, term string) {
	if p.archive == nil {
		p.r.Warn("History archive is disabled.")
		return
	}
	if term == "" {
		p.r.Error("Usage: /history TERM")
		return
	}
	records, err := p.archive.SearchHistory(ctx, term, historyLimit)
	if err != nil {
		p.r.Error("History search failed: %v", err)
		return
	}
	p.r.History(records)
}

func (p *REPL) suggest() {
	items := p.ctrl.Snapshot().Suggestions
	if len(items) == 0 {
		p.r.Info("No suggestions right now.")
		return
	}
	p.r.Suggestions(items)
}

func (p *REPL) useSuggestion(ctx context.Context, args []string) {
	n, ok := p.intArg(args, "suggestion number")
	if !ok {
		return
	}
	text, err := p.ctrl.UseSuggestion(int(n) - 1)
	if err != nil {
		p.r.Error("%v", err)
		return
	}
	p.r.Info("%s", text)
	p.submit(ctx, text)
}

func (p *REPL) copy(args []string) {
	id, ok := p.intArg(args, "message ID")
	if !ok {
		return
	}
	content, err := p.ctrl.MessageContent(id)
	if err != nil {
		p.r.Error("No answer with ID %d.", id)
		return
	}
	p.r.Info("%s", content)
}

func (p *REPL) intArg(args []string, what string) (int64, bool) {
	if len(args) == 0 {
		p.r.Error("Missing %s.", what)
		return 0, false
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		p.r.Error("Invalid %s %q.", what, args[0])
		return 0, false
	}
	return n, true
}
