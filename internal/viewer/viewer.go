package viewer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"TraceLens/internal/analytics"
	"TraceLens/internal/engine"
)

// Styles define the UI theme
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D9FF")).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 2)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98C379"))

	sampledStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#E5C07B"))

	tokenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#61AFEF"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#61AFEF"))

	topBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98C379"))

	contextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a0a0b0"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d3d5c"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4a4a6a")).
			PaddingLeft(1)
)

const barWidth = 40

// Trace is a loaded trace document of either kind.
type Trace struct {
	Path      string
	Inference *engine.InferenceTrace
	Training  *engine.TrainingTrace
}

// LoadTrace reads a trace document and classifies it by its step array.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace %q: %w", path, err)
	}

	var probe struct {
		GenerationSteps []json.RawMessage `json:"generation_steps"`
		TrainingSteps   []json.RawMessage `json:"training_steps"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse trace %q: %w", path, err)
	}

	t := &Trace{Path: path}
	switch {
	case probe.GenerationSteps != nil:
		var trace engine.InferenceTrace
		if err := json.Unmarshal(data, &trace); err != nil {
			return nil, fmt.Errorf("failed to parse inference trace %q: %w", path, err)
		}
		t.Inference = &trace
	case probe.TrainingSteps != nil:
		var trace engine.TrainingTrace
		if err := json.Unmarshal(data, &trace); err != nil {
			return nil, fmt.Errorf("failed to parse training trace %q: %w", path, err)
		}
		t.Training = &trace
	default:
		return nil, fmt.Errorf("%q is not a trace document", path)
	}
	return t, nil
}

// NumSteps returns how many steps the trace records.
func (t *Trace) NumSteps() int {
	if t.Inference != nil {
		return len(t.Inference.Steps)
	}
	if t.Training != nil {
		return len(t.Training.Steps)
	}
	return 0
}

func (t *Trace) modelName() string {
	if t.Inference != nil {
		return t.Inference.ModelInfo.Name
	}
	if t.Training != nil {
		return t.Training.ModelInfo.Name
	}
	return ""
}

// Model is the bubbletea state for step-by-step trace replay.
type Model struct {
	trace *Trace

	step        int
	showSummary bool

	viewport viewport.Model
	renderer *glamour.TermRenderer
	ready    bool
	width    int
	height   int
}

// New builds the replay model for a loaded trace.
func New(trace *Trace) Model {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	return Model{trace: trace, renderer: renderer}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "right", "l", " ":
			if m.step < m.trace.NumSteps()-1 {
				m.step++
				m.refresh()
			}
			return m, nil
		case "left", "h":
			if m.step > 0 {
				m.step--
				m.refresh()
			}
			return m, nil
		case "g", "home":
			m.step = 0
			m.refresh()
			return m, nil
		case "G", "end":
			if n := m.trace.NumSteps(); n > 0 {
				m.step = n - 1
			}
			m.refresh()
			return m, nil
		case "s":
			m.showSummary = !m.showSummary
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-2)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - 2
		}

		r, _ := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.viewport.Width-4),
		)
		m.renderer = r
		m.refresh()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	if m.showSummary {
		m.viewport.SetContent(m.renderSummary())
	} else {
		m.viewport.SetContent(m.renderStep())
	}
	m.viewport.GotoTop()
}

// renderStep builds the body for the current step.
func (m Model) renderStep() string {
	if m.trace.NumSteps() == 0 {
		return contextStyle.Render("trace has no steps")
	}

	if m.trace.Inference != nil {
		return renderInferenceStep(m.trace.Inference.Steps[m.step])
	}
	return renderTrainingStep(m.trace.Training.Steps[m.step])
}

func renderInferenceStep(step engine.InferenceStep) string {
	var sb strings.Builder

	sb.WriteString(contextStyle.Render("context:") + "\n")
	sb.WriteString(step.InputText + "\n\n")

	sb.WriteString(contextStyle.Render(fmt.Sprintf("top-%d distribution:", step.OutputDistribution.TopK)) + "\n")
	sb.WriteString(renderCandidates(step.OutputDistribution.Candidates, step.SelectedToken.TokenID))

	style := selectedStyle
	if step.SelectedToken.SelectionMethod == engine.SelectionSampling {
		style = sampledStyle
	}
	sb.WriteString("\n" + style.Render(fmt.Sprintf("selected %q (%s)", step.SelectedToken.Token, step.SelectedToken.SelectionMethod)) + "\n")

	return sb.String()
}

func renderTrainingStep(step engine.TrainingStep) string {
	var sb strings.Builder

	sb.WriteString(contextStyle.Render("input so far:") + "\n")
	if len(step.InputTokens) == 0 {
		sb.WriteString(contextStyle.Render("(empty)") + "\n\n")
	} else {
		sb.WriteString(strings.Join(step.InputTokens, " ") + "\n\n")
	}

	sb.WriteString(contextStyle.Render("model predictions:") + "\n")
	sb.WriteString(renderCandidates(step.Predictions, step.TargetTokenID))

	sb.WriteString("\n" + selectedStyle.Render(fmt.Sprintf("target %q", step.TargetToken)))
	sb.WriteString(fmt.Sprintf("  prob %.4f  logprob %.4f  loss %.4f\n", step.TargetProb, step.TargetLogprob, step.Loss))

	return sb.String()
}

func renderCandidates(candidates []engine.TokenCandidate, highlightID int) string {
	var sb strings.Builder
	for i, c := range candidates {
		bar := strings.Repeat("█", int(c.Prob*barWidth))
		style := barStyle
		if i == 0 {
			style = topBarStyle
		}

		marker := "  "
		if c.TokenID == highlightID {
			marker = "▶ "
		}

		sb.WriteString(fmt.Sprintf("%s%s %7.4f  %s\n",
			marker,
			tokenStyle.Render(fmt.Sprintf("%-14q", c.Token)),
			c.Prob,
			style.Render(bar),
		))
	}
	return sb.String()
}

// renderSummary shows per-trace aggregates as rendered markdown.
func (m Model) renderSummary() string {
	var md string
	if m.trace.Inference != nil {
		s := analytics.SummarizeInference(m.trace.Inference)
		md = fmt.Sprintf(`# Trace Summary

- **Model**: %s
- **Steps**: %d
- **Greedy / sampled**: %d / %d
- **Mean top-1 prob**: %.4f
- **Mean entropy**: %.4f nats
`, s.Model, s.Steps, s.GreedySteps, s.SampledSteps, s.MeanTopProb, s.MeanEntropy)
	} else {
		s := analytics.SummarizeTraining(m.trace.Training)
		md = fmt.Sprintf(`# Trace Summary

- **Model**: %s
- **Source**: %s
- **Steps**: %d
- **Mean loss**: %.4f
- **Max loss**: %.4f
- **Mean target prob**: %.4f
`, s.Model, s.Source, s.Steps, s.MeanLoss, s.MaxLoss, s.MeanTargetProb)
	}

	if m.renderer != nil {
		if rendered, err := m.renderer.Render(md); err == nil {
			return rendered
		}
	}
	return md
}

func (m Model) View() string {
	if !m.ready {
		return "\n  Loading trace..."
	}

	kind := "inference"
	if m.trace.Training != nil {
		kind = "training"
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(" TraceLens "),
		subtitleStyle.Render(fmt.Sprintf("%s · %s · step %d/%d", kind, m.trace.modelName(), m.step+1, m.trace.NumSteps())),
	)

	body := borderStyle.Render(m.viewport.View())

	help := helpStyle.Render("←/→ Step | g/G First/Last | s Summary | q Quit")

	return header + "\n" + body + "\n" + help
}

// Run loads a trace file and replays it in the terminal.
func Run(path string) int {
	trace, err := LoadTrace(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if trace.NumSteps() == 0 {
		fmt.Fprintln(os.Stderr, "trace has no steps to replay")
		return 1
	}

	p := tea.NewProgram(New(trace), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "viewer error: %v\n", err)
		return 1
	}
	return 0
}
