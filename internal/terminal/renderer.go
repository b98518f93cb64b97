package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/storage/models"
)

const (
	defaultWidth = 80
	maxSources   = 3
	previewWidth = 160
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Renderer prints session output for a line-oriented terminal. Colors and
// markdown styling are only used when out is a terminal.
type Renderer struct {
	out      io.Writer
	width    int
	color    bool
	markdown *glamour.TermRenderer
}

// lockedWriter lets progress events print while the prompt loop writes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func New(out io.Writer) *Renderer {
	r := &Renderer{out: &lockedWriter{w: out}, width: defaultWidth}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.color = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			r.width = w
		}
	}

	style := glamour.WithStandardStyle("notty")
	if r.color {
		style = glamour.WithAutoStyle()
	}

	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(r.width-4))
	if err == nil {
		r.markdown = md
	}

	return r
}

func (r *Renderer) Width() int {
	return r.width
}

func (r *Renderer) paint(color, s string) string {
	if !r.color {
		return s
	}
	return color + s + colorReset
}

func (r *Renderer) Info(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Renderer) Warn(format string, args ...interface{}) {
	fmt.Fprintln(r.out, r.paint(colorYellow, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Error(format string, args ...interface{}) {
	fmt.Fprintln(r.out, r.paint(colorRed, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Separator() {
	width := r.width
	if width > 80 {
		width = 80
	}
	fmt.Fprintln(r.out, r.paint(colorDim, strings.Repeat("─", width)))
}

func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, r.paint(colorBold+colorGreen, "❯ "))
}

// Progress overwrites the current line with the latest progress text. It is
// silent when output is not a terminal.
func (r *Renderer) Progress(text string) {
	if !r.color {
		return
	}
	if text == "" {
		fmt.Fprint(r.out, "\r\033[K")
		return
	}
	fmt.Fprintf(r.out, "\r\033[K%s", r.paint(colorDim, text))
}

func (r *Renderer) Markdown(content string) string {
	if r.markdown == nil {
		return content
	}
	out, err := r.markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (r *Renderer) Message(m models.Message) {
	stamp := m.Timestamp.Format("15:04")

	if !m.IsAI() {
		fmt.Fprintf(r.out, "\n%s\n%s\n", r.paint(colorGray, "You · "+stamp), m.Content)
		return
	}

	header := fmt.Sprintf("Assistant · %s · #%d", stamp, m.ID)
	fmt.Fprintf(r.out, "\n%s\n", r.paint(colorGray, header))

	if m.Error {
		fmt.Fprintln(r.out, r.paint(colorRed, m.Content))
		return
	}

	fmt.Fprintln(r.out, r.Markdown(m.Content))
	fmt.Fprintln(r.out, r.paint(colorDim, AnswerMeta(m)))

	if len(m.Sources) > 0 {
		fmt.Fprintln(r.out, r.paint(colorCyan, fmt.Sprintf("Sources (%d)", len(m.Sources))))
		for i, s := range m.Sources {
			if i == maxSources {
				break
			}
			fmt.Fprintf(r.out, "  %s %s\n", r.paint(colorBold, "Source "+s.ChunkID+":"), Preview(s.ContentPreview, previewWidth))
		}
	}
}

// AnswerMeta is the one-line summary under an answer.
func AnswerMeta(m models.Message) string {
	parts := []string{
		fmt.Sprintf("confidence %s", FormatConfidence(m.Confidence)),
		fmt.Sprintf("%.1fs", float64(m.ResponseTimeMS)/1000),
	}

	if m.QueriedDocCount == 0 {
		parts = append(parts, "all documents")
	} else {
		parts = append(parts, fmt.Sprintf("%d document(s)", m.QueriedDocCount))
	}

	if m.Feedback != nil {
		parts = append(parts, "feedback: "+string(m.Feedback.Type))
	}

	return strings.Join(parts, " · ")
}

func FormatConfidence(c float64) string {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return fmt.Sprintf("%.0f%%", c*100)
}

// Preview flattens whitespace and cuts s to at most n runes.
func Preview(s string, n int) string {
	if n < 10 {
		n = 10
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func (r *Renderer) Documents(docs []models.Document, selected []int64) {
	if len(docs) == 0 {
		r.Info("No documents uploaded yet.")
		return
	}

	picked := make(map[int64]bool, len(selected))
	for _, id := range selected {
		picked[id] = true
	}

	r.Info("%s", r.paint(colorBold, fmt.Sprintf("Documents (%d, %d selected)", len(docs), len(selected))))
	for _, d := range docs {
		mark := "[ ]"
		if picked[d.ID] {
			mark = r.paint(colorGreen, "[x]")
		}
		fmt.Fprintf(r.out, "  %s %4d  %s  %s\n", mark, d.ID, d.Filename, r.paint(colorGray, d.CreatedAt.Format("2006-01-02")))
	}
}

func (r *Renderer) Upload(res models.UploadResult) {
	if res.Status == models.UploadSuccess {
		fmt.Fprintf(r.out, "%s %s: %s\n", r.paint(colorGreen, "✓"), res.Filename, res.Message)
		return
	}
	fmt.Fprintf(r.out, "%s %s: %s\n", r.paint(colorRed, "✗"), res.Filename, res.Message)
}

func (r *Renderer) Suggestions(items []string) {
	if len(items) == 0 {
		return
	}
	r.Info("%s", r.paint(colorCyan, "Follow-up suggestions (/use N):"))
	for i, s := range items {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, s)
	}
}

func (r *Renderer) History(records []models.HistoryRecord) {
	if len(records) == 0 {
		r.Info("No matching messages.")
		return
	}
	for _, rec := range records {
		fmt.Fprintf(r.out, "%s %s %s\n",
			r.paint(colorGray, rec.Message.Timestamp.Format("2006-01-02 15:04")),
			r.paint(colorDim, "["+string(rec.Message.Role)+" "+shortID(rec.SessionID)+"]"),
			Preview(rec.Message.Content, r.width-30),
		)
	}
}

func (r *Renderer) Stats(s *backend.Stats) {
	r.Info("Documents: %d", s.Documents)
	r.Info("Chunks:    %d", s.Chunks)
	if s.System != "" {
		r.Info("System:    %s", s.System)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
