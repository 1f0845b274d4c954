package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rubiojr/yatra/pkg/log"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/suggest"
	"github.com/rubiojr/yatra/pkg/voice"
	"github.com/urfave/cli/v3"
)

// SuggestCommand creates the interactive suggest command
func SuggestCommand() *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Interactive search box with live suggestions",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSuggest(ctx, c.String("config"))
		},
	}
}

type viewMsg suggest.View

type noticeMsg notify.Notice

type navigateMsg suggest.Selection

// teaBridge forwards controller callbacks into the bubbletea event loop.
// Callbacks may run on the event loop itself, so sends never block it.
type teaBridge struct {
	p *tea.Program
}

func (b *teaBridge) send(msg tea.Msg) { go b.p.Send(msg) }

func (b *teaBridge) Navigate(sel suggest.Selection) { b.send(navigateMsg(sel)) }

func (b *teaBridge) Notify(n notify.Notice) { b.send(noticeMsg(n)) }

type suggestModel struct {
	ctx     context.Context
	ctrl    *suggest.Controller
	input   textinput.Model
	spinner spinner.Model
	view    suggest.View
	notice  string
	chosen  *suggest.Selection
}

func newSuggestModel(ctx context.Context, ctrl *suggest.Controller) suggestModel {
	ti := textinput.New()
	ti.Placeholder = "Search destinations, hotels, restaurants..."
	ti.Prompt = "🔎 "
	ti.CharLimit = 120
	ti.Width = 50
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return suggestModel{ctx: ctx, ctrl: ctrl, input: ti, spinner: sp, view: ctrl.View()}
}

func (m suggestModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m suggestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case viewMsg:
		// Views are delivered asynchronously; anything not newer than the
		// snapshot taken after the last keystroke is already stale.
		if msg.Version <= m.view.Version {
			return m, nil
		}
		m.view = suggest.View(msg)
		if m.input.Value() != m.view.Query {
			m.input.SetValue(m.view.Query)
			m.input.CursorEnd()
		}
		return m, nil
	case noticeMsg:
		m.notice = msg.Message
		return m, nil
	case navigateMsg:
		sel := suggest.Selection(msg)
		m.chosen = &sel
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m suggestModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "down", "ctrl+n":
		m.ctrl.HandleKey(suggest.KeyDown)
		m.view = m.ctrl.View()
		return m, nil
	case "up", "ctrl+p":
		m.ctrl.HandleKey(suggest.KeyUp)
		m.view = m.ctrl.View()
		return m, nil
	case "enter":
		m.ctrl.HandleKey(suggest.KeyEnter)
		m.syncView()
		return m, nil
	case "esc":
		if !m.view.Open {
			return m, tea.Quit
		}
		m.ctrl.HandleKey(suggest.KeyEscape)
		m.view = m.ctrl.View()
		return m, nil
	case "ctrl+s":
		m.notice = ""
		go m.ctrl.ToggleVoice(m.ctx)
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.notice = ""
		m.ctrl.SetQuery(m.input.Value())
	} else if !m.view.Open {
		m.ctrl.Focus()
	}
	m.view = m.ctrl.View()
	return m, cmd
}

// syncView takes the controller's current view, including a query it set
// itself on commit.
func (m *suggestModel) syncView() {
	m.view = m.ctrl.View()
	if m.input.Value() != m.view.Query {
		m.input.SetValue(m.view.Query)
		m.input.CursorEnd()
	}
}

func (m suggestModel) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	switch {
	case m.view.Listening:
		b.WriteString("  " + warnStyle.Render("🎤 listening..."))
	case m.view.Loading:
		b.WriteString("  " + m.spinner.View())
	}
	b.WriteString("\n\n")

	if m.view.Open {
		b.WriteString(renderSuggestions(m.view))
	}

	if m.notice != "" {
		b.WriteString("\n" + warnStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + metaStyle.Render("↑/↓ move • enter select • esc close • ctrl+s voice • ctrl+c quit"))
	return b.String()
}

func renderSuggestions(v suggest.View) string {
	if len(v.Suggestions) == 0 {
		if v.Mode == suggest.ModeSearch && !v.Loading {
			return noDataStyle.Render("No matches") + "\n"
		}
		return ""
	}

	var b strings.Builder
	var group suggest.Group
	for i, s := range v.Suggestions {
		if s.Group != group {
			group = s.Group
			b.WriteString(headerStyle.Render(groupTitle(group)) + "\n")
		}
		label := s.Label
		if s.Item != nil {
			label = fmt.Sprintf("%s %s", s.Label, metaStyle.Render(fmt.Sprintf("%s · %s", s.Item.Type, s.Item.Location)))
		}
		style := rowStyle
		if i == v.Index {
			style = selectedStyle
		}
		b.WriteString(style.Render(label) + "\n")
	}
	return b.String()
}

func groupTitle(g suggest.Group) string {
	switch g {
	case suggest.GroupHistory:
		return "Recent searches"
	case suggest.GroupPopular:
		return "Popular destinations"
	}
	return "Suggestions"
}

func runSuggest(ctx context.Context, configPath string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// Log lines would corrupt the terminal UI.
	log.SetQuiet(true)

	bridge := &teaBridge{}
	var ctrl *suggest.Controller
	adapter := a.newVoice(func(r voice.Result) { ctrl.HandleVoiceResult(r) })
	ctrl = suggest.New(a.dispatcher, a.history, adapter, suggest.Options{
		Popular:       a.cfg.Search.Popular,
		RecentHistory: a.cfg.History.Recent,
		Navigator:     bridge,
		Notifier:      bridge,
	})
	defer ctrl.Close()

	ctrl.Focus()
	p := tea.NewProgram(newSuggestModel(ctx, ctrl), tea.WithContext(ctx))
	bridge.p = p
	unsub := ctrl.Subscribe(func(v suggest.View) { bridge.send(viewMsg(v)) })
	defer unsub()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running suggest UI: %w", err)
	}

	m, ok := final.(suggestModel)
	if !ok || m.chosen == nil {
		return nil
	}
	printSelection(*m.chosen)
	return nil
}

func printSelection(sel suggest.Selection) {
	if sel.Item == nil {
		fmt.Println(titleStyle.Render("Search: " + sel.Query))
		return
	}
	it := sel.Item
	fmt.Println(titleStyle.Render(it.Name))
	fmt.Println(metaStyle.Render(fmt.Sprintf("%s · %s", it.Type, it.Location)))
	if it.Description != "" {
		fmt.Println(it.Description)
	}
	if len(it.Tags) > 0 {
		fmt.Println(metaStyle.Render("tags: " + it.Tags.String()))
	}
}
