// Package chat provides the interactive TUI companion session for FloraFi.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	companion "florafi/internal/chat"
	"florafi/internal/config"
	"florafi/internal/logging"
	"florafi/internal/sensor"
	"florafi/internal/session"
)

// Message is one rendered history entry.
type Message struct {
	Role    string // "user" or "plant"
	Content string
}

// Model is the bubbletea model for the companion session.
type Model struct {
	mgr       *session.Manager
	plantName string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   Styles

	history   []Message
	thinking  bool
	deviation float64
	err       error

	width  int
	height int
	ready  bool
}

type replyMsg struct {
	text string
	err  error
}

type tickMsg time.Time

func newModel(mgr *session.Manager, plantName string) Model {
	ta := textarea.New()
	ta.Placeholder = "Say something to your plant..."
	ta.Focus()
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		mgr:       mgr,
		plantName: plantName,
		textarea:  ta,
		spinner:   sp,
		styles:    DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, tickCmd())
}

// tickCmd drives the sensor readout refresh.
func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// interactCmd runs the companion exchange off the UI loop.
func (m Model) interactCmd(text string) tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		reply, err := mgr.Interact(context.Background(), text)
		return replyMsg{text: reply, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := m.textarea.Height() + 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.textarea.SetWidth(msg.Width - 2)

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		)
		if err == nil {
			m.renderer = renderer
		}
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// Ends the session; any in-flight reply is abandoned with it.
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.textarea.Value()
			if text == "" || m.thinking {
				break
			}
			m.textarea.Reset()
			m.history = append(m.history, Message{Role: "user", Content: text})
			m.thinking = true
			m.err = nil
			m.refreshViewport()
			cmds = append(cmds, m.interactCmd(text), m.spinner.Tick)
		}

	case replyMsg:
		m.thinking = false
		if msg.err != nil {
			m.err = msg.err
			logging.ChatError("companion exchange failed: %v", msg.err)
		} else {
			m.history = append(m.history, Message{Role: "plant", Content: msg.text})
		}
		m.refreshViewport()

	case tickMsg:
		m.deviation = m.mgr.Deviation()
		cmds = append(cmds, tickCmd())

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// Run starts a full companion session and blocks until the user exits. The
// transcript is finalized and persisted on the way out.
func Run(cfg *config.Config, stateDir string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var mgr *session.Manager
	client, err := companion.New(companion.Config{
		Backend:     cfg.Chat.Backend,
		APIKey:      cfg.Chat.APIKey,
		Model:       cfg.Chat.Model,
		BaseURL:     cfg.Chat.BaseURL,
		Timeout:     cfg.GetChatTimeout(),
		Temperature: cfg.Chat.Temperature,
		MaxRetries:  cfg.Chat.MaxRetries,
		PlantName:   cfg.PlantName,
		Deviation: func() float64 {
			if mgr == nil {
				return 0
			}
			return mgr.Deviation()
		},
	})
	if err != nil {
		return err
	}

	store, err := session.NewStore(cfg.Session.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	source, deviceID := chooseSource(cfg)
	mgr = session.NewManager(session.ManagerConfig{
		PlantName:    cfg.PlantName,
		DeviceID:     deviceID,
		CreatorID:    cfg.CreatorID,
		Source:       source,
		Chat:         client,
		Store:        store,
		BufferSize:   cfg.Sensor.BufferSize,
		SyncInterval: cfg.GetSensorSyncInterval(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	p := tea.NewProgram(newModel(mgr, cfg.PlantName), tea.WithAltScreen())
	_, runErr := p.Run()

	if err := mgr.End(); err != nil {
		logging.SessionError("session shutdown: %v", err)
	}
	if err := mgr.Finalize(); err != nil {
		return err
	}
	fmt.Printf("Session saved: %s\n", mgr.Transcript().ID)
	fmt.Printf("Publish it with: florafi market publish %s\n", mgr.Transcript().ID)
	return runErr
}

// chooseSource opens the configured serial device. Without one the session
// runs on the simulator and hot-attaches a sensor plugged in mid-session.
func chooseSource(cfg *config.Config) (sensor.Source, string) {
	sim := sensor.NewSimSource(50 * time.Millisecond)
	if cfg.Sensor.Simulate {
		return sim, "simulator"
	}
	if cfg.Sensor.Device != "" {
		if src, err := sensor.OpenSerial(cfg.Sensor.Device); err == nil {
			return src, cfg.Sensor.Device
		}
		logging.SensorWarn("device %s unavailable; using simulator", cfg.Sensor.Device)
	}
	hp := sensor.NewHotplugSource(cfg.GetSensorDeviceDir(), sim)
	hp.Attached = func(path string) {
		logging.Sensor("session hot-attached %s", path)
	}
	return hp, "simulator"
}
