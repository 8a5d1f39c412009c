// Package tui renders a running scenario in the terminal.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/springsim/internal/metrics"
	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/scenario"
	"github.com/san-kum/springsim/internal/scheduler"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const historyLen = 120

type Model struct {
	sc     *scenario.Scenario
	frames int

	paused    bool
	windOff   bool
	speed     float64
	history   []float64
	states    []physics.BoneState
	lastFrame time.Time
	fps       float64
	err       error

	width  int
	height int
}

// New watches sc. frames stops the view after that many frames; zero runs
// until quit.
func New(sc *scenario.Scenario, frames int) Model {
	return Model{
		sc:      sc,
		frames:  frames,
		speed:   1,
		history: make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.err != nil || m.done() {
			return m, nil
		}
		if !m.paused {
			now := time.Time(msg)
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1.0 / dt
				}
			}
			m.lastFrame = now
			steps := max(int(m.speed), 1)
			for i := 0; i < steps && !m.done(); i++ {
				if err := m.step(); err != nil {
					m.err = err
					return m, nil
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) done() bool {
	return m.frames > 0 && m.sc.Frame() >= m.frames
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "p":
		m.paused = !m.paused
	case "+", "=":
		m.speed = math.Min(m.speed*2, 16)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 1)
	case "0":
		m.speed = 1
	case "m":
		if m.sc.Scheduler.Mode() == scheduler.Synchronous {
			m.sc.Scheduler.SetMode(scheduler.Pipelined)
		} else {
			m.sc.Scheduler.SetMode(scheduler.Synchronous)
		}
	case "w":
		m.windOff = !m.windOff
		for _, inst := range m.sc.Rigs {
			off := m.windOff
			_ = inst.Rig.Update(func(p *physics.Params) { p.Wind.Disabled = off })
		}
	}
	return m, nil
}

// step advances one frame and records the mean deflection of every bone.
func (m *Model) step() error {
	if err := m.sc.Step(); err != nil {
		return err
	}
	sum, n := 0.0, 0
	for _, inst := range m.sc.Rigs {
		var err error
		if m.states, err = m.sc.Scheduler.States(inst.Rig, m.states); err != nil {
			return err
		}
		bones := inst.Rig.Setup().Bones
		for i := range m.states {
			sum += metrics.BoneDeflection(&bones[i].Properties, &m.states[i])
			n++
		}
	}
	if n > 0 {
		m.history = append(m.history, sum/float64(n))
	}
	if len(m.history) > historyLen {
		m.history = m.history[len(m.history)-historyLen:]
	}
	return nil
}

func (m Model) View() string {
	cw := max(m.width-6, 40)
	ch := max(m.height-10, 12)

	n := float64(len(m.sc.Rigs))
	c := newCanvas(cw, ch, -0.8, (n-1)*scenario.Spacing+0.8, -0.1, 2.1)
	c.floor(0, '_')

	var states []physics.BoneState
	for _, inst := range m.sc.Rigs {
		c.point(inst.Origin, '+')
		var err error
		if states, err = m.sc.Scheduler.States(inst.Rig, states); err != nil {
			continue
		}
		for _, st := range states {
			c.segment(st.Position, st.Tip, '·')
		}
		for _, st := range states {
			c.point(st.Tip, 'o')
		}
	}

	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("running")
	if m.paused {
		statusIcon = yellow.Render("○")
		statusText = yellow.Render("paused")
	}
	if m.done() {
		statusIcon = dim.Render("■")
		statusText = dim.Render("finished")
	}
	stats := m.sc.Scheduler.Stats()
	b.WriteString(fmt.Sprintf("\n   %s %s  %s  %s\n",
		statusIcon, cyan.Render(m.sc.Name), statusText,
		dim.Render(fmt.Sprintf("%s x%d  %.0ffps  speed %.0fx", stats.Mode, stats.Workers, m.fps, m.speed))))
	b.WriteString(fmt.Sprintf("   %s %s  %s %s  %s %s\n\n",
		dim.Render("frame"), white.Render(fmt.Sprintf("%d", m.sc.Frame())),
		dim.Render("bones"), white.Render(fmt.Sprintf("%d", stats.Bones)),
		dim.Render("anomalies"), magenta.Render(fmt.Sprintf("%d", stats.Anomalies))))

	for _, row := range c.rows() {
		b.WriteString("   " + dimmer.Render("│") + row + "\n")
	}

	if len(m.history) > 1 {
		last := m.history[len(m.history)-1]
		b.WriteString(fmt.Sprintf("\n   %s %s %s\n",
			dim.Render("deflection"), cyan.Render(sparkline(m.history, 40)), white.Render(fmt.Sprintf("%.1f°", last))))
	}
	if m.err != nil {
		b.WriteString("\n   " + magenta.Render(m.err.Error()) + "\n")
	}

	wind := "on"
	if m.windOff {
		wind = "off"
	}
	b.WriteString("\n" + dim.Render(fmt.Sprintf("   space pause  ±speed  m mode  w wind (%s)  q quit", wind)) + "\n")

	return b.String()
}

// Run shows sc until the user quits or frames have been stepped.
func Run(sc *scenario.Scenario, frames int) error {
	p := tea.NewProgram(New(sc, frames), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
