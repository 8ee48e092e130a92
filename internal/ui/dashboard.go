package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
)

// DashboardDeps connects the dashboard to the market. Snapshot and Refresh
// are required; the rest may be nil.
//
// The dashboard never polls the chain. It reloads once when it opens and on
// the r key; everything else arrives through the On* feeds, which fire when
// an action's refresh swaps the snapshot, a notification is queued or the
// session changes.
type DashboardDeps struct {
	Snapshot      func() market.Snapshot
	Refresh       func(ctx context.Context) error
	Buy           func(ctx context.Context, c market.Credit) error
	Retire        func(ctx context.Context, c market.Credit) error
	Notifications func() []notify.Notification
	Dismiss       func(id uuid.UUID) bool
	Session       func() session.Session
	Now           func() time.Time

	OnSnapshot     func(fn func(market.Snapshot)) (unsubscribe func())
	OnNotification func(fn func(notify.Notification)) (unsubscribe func())
	OnSession      func(fn func(session.Session)) (unsubscribe func())

	// NoteTTL is how long a notification stays in the pane. Zero keeps
	// them until the dashboard closes.
	NoteTTL time.Duration
}

type dashTab int

const (
	tabMarket dashTab = iota
	tabOwned
	tabStats
)

var tabNames = []string{"Market", "My Credits", "Stats"}

const maxNotes = 5

type dashboardModel struct {
	deps DashboardDeps

	tab     dashTab
	cursor  int
	snap    market.Snapshot
	notes   []notify.Notification
	sess    session.Session
	busy    string
	confirm *pendingAction
	err     string

	quitting bool
}

type pendingAction struct {
	verb   string
	credit market.Credit
}

type changedMsg struct{}
type noteMsg notify.Notification
type dismissMsg uuid.UUID
type refreshedMsg struct{ err error }
type actionDoneMsg struct {
	verb string
	err  error
}

// RunDashboard runs the market dashboard until the user quits.
func RunDashboard(deps DashboardDeps) error {
	p := tea.NewProgram(newDashboardModel(deps), tea.WithAltScreen())
	for _, unsubscribe := range watch(deps, p.Send) {
		defer unsubscribe()
	}
	_, err := p.Run()
	return err
}

// watch forwards the change feeds to send.
func watch(deps DashboardDeps, send func(tea.Msg)) []func() {
	var unsubs []func()
	if deps.OnSnapshot != nil {
		unsubs = append(unsubs, deps.OnSnapshot(func(market.Snapshot) { send(changedMsg{}) }))
	}
	if deps.OnNotification != nil {
		unsubs = append(unsubs, deps.OnNotification(func(n notify.Notification) { send(noteMsg(n)) }))
	}
	if deps.OnSession != nil {
		unsubs = append(unsubs, deps.OnSession(func(session.Session) { send(changedMsg{}) }))
	}
	return unsubs
}

func newDashboardModel(deps DashboardDeps) dashboardModel {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	m := dashboardModel{deps: deps}
	m.sync()
	return m
}

func (m dashboardModel) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m *dashboardModel) sync() {
	m.snap = m.deps.Snapshot()
	if m.deps.Notifications != nil {
		m.notes = m.deps.Notifications()
	}
	if m.deps.Session != nil {
		m.sess = m.deps.Session()
	}
	if n := len(m.rows()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m dashboardModel) rows() []market.Credit {
	switch m.tab {
	case tabMarket:
		return m.snap.ForSale
	case tabOwned:
		return m.snap.Owned
	}
	return nil
}

func (m dashboardModel) selected() (market.Credit, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return market.Credit{}, false
	}
	return rows[m.cursor], true
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg.String())

	case changedMsg:
		m.sync()

	case noteMsg:
		m.sync()
		if m.deps.NoteTTL > 0 && m.deps.Dismiss != nil {
			id := msg.ID
			return m, tea.Tick(m.deps.NoteTTL, func(time.Time) tea.Msg { return dismissMsg(id) })
		}

	case dismissMsg:
		m.deps.Dismiss(uuid.UUID(msg))
		m.sync()

	case refreshedMsg:
		m.sync()
		m.err = ""
		if msg.err != nil {
			m.err = msg.err.Error()
		}

	case actionDoneMsg:
		m.busy = ""
		m.sync()
		m.err = ""
		if msg.err != nil {
			m.err = msg.verb + ": " + firstLine(msg.err.Error())
		}
	}
	return m, nil
}

func (m dashboardModel) key(k string) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		p := m.confirm
		m.confirm = nil
		if k == "y" || k == "enter" {
			return m.start(p)
		}
		return m, nil
	}

	switch k {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab", "right", "l":
		m.tab = (m.tab + 1) % dashTab(len(tabNames))
		m.cursor = 0
	case "shift+tab", "left", "h":
		m.tab = (m.tab + dashTab(len(tabNames)) - 1) % dashTab(len(tabNames))
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows())-1 {
			m.cursor++
		}
	case "r":
		return m, m.refreshCmd()
	case "b":
		if c, ok := m.selected(); ok && m.tab == tabMarket && m.deps.Buy != nil && m.busy == "" {
			m.confirm = &pendingAction{verb: "buy", credit: c}
		}
	case "x":
		if c, ok := m.selected(); ok && m.tab == tabOwned && m.deps.Retire != nil && m.busy == "" && !c.IsRetired {
			m.confirm = &pendingAction{verb: "retire", credit: c}
		}
	}
	return m, nil
}

func (m dashboardModel) start(p *pendingAction) (tea.Model, tea.Cmd) {
	m.busy = p.verb + " " + tokenLabel(p.credit.TokenID)
	run := m.deps.Buy
	if p.verb == "retire" {
		run = m.deps.Retire
	}
	c := p.credit
	return m, func() tea.Msg {
		return actionDoneMsg{verb: p.verb, err: run(context.Background(), c)}
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("🌱 Carbon Credit Market") + "\n")
	sb.WriteString(m.statusLine() + "\n\n")

	for i, name := range tabNames {
		if dashTab(i) == m.tab {
			sb.WriteString(StyleSelected.Render(" "+name+" ") + " ")
		} else {
			sb.WriteString(StyleMeta.Render(" "+name+" ") + " ")
		}
	}
	sb.WriteString("\n\n")

	now := m.deps.Now()
	switch m.tab {
	case tabStats:
		sb.WriteString(StatsBlock(market.ComputeStats(m.snap, now)) + "\n")
	default:
		rows := m.rows()
		if len(rows) == 0 {
			sb.WriteString(StyleMeta.Render(m.emptyText()) + "\n")
		} else {
			sb.WriteString(CreditsTable(rows, now, m.cursor))
		}
	}

	if m.snap.Err != nil {
		sb.WriteString("\n" + Warn("last refresh incomplete: "+firstLine(m.snap.Err.Error())) + "\n")
	}
	if m.err != "" {
		sb.WriteString("\n" + Err(m.err) + "\n")
	}
	if m.confirm != nil {
		c := m.confirm.credit
		q := fmt.Sprintf("Retire %s (%s)? This cannot be undone. [y/N]", tokenLabel(c.TokenID), FormatTonnes(c.CarbonAmount))
		if m.confirm.verb == "buy" {
			q = fmt.Sprintf("Buy %s for %s? [y/N]", tokenLabel(c.TokenID), FormatPrice(c.Price))
		}
		sb.WriteString("\n" + StyleWarning.Render(q) + "\n")
	}

	if len(m.notes) > 0 {
		sb.WriteString("\n" + StyleHeader.Render("Notifications") + "\n")
		notes := m.notes
		if len(notes) > maxNotes {
			notes = notes[len(notes)-maxNotes:]
		}
		for _, n := range notes {
			sb.WriteString(noteLine(n) + "\n")
		}
	}

	sb.WriteString("\n" + StyleMeta.Render("tab switch · ↑↓ select · r refresh · b buy · x retire · q quit") + "\n")
	return sb.String()
}

func (m dashboardModel) statusLine() string {
	parts := []string{m.sess.State.String()}
	if m.sess.State == session.Connected {
		parts = append(parts, TruncateAddr(m.sess.Account.Hex()), fmt.Sprintf("chain %d", m.sess.ChainID))
		if m.sess.ReadOnly() {
			parts = append(parts, "read-only")
		}
	}
	if !m.snap.UpdatedAt.IsZero() {
		parts = append(parts, "updated "+m.snap.UpdatedAt.Format("15:04:05"))
	}
	if m.busy != "" {
		parts = append(parts, StyleWarning.Render(m.busy+"…"))
	}
	return StyleMeta.Render(strings.Join(parts, " · "))
}

func (m dashboardModel) emptyText() string {
	if m.sess.State != session.Connected && m.deps.Session != nil {
		return "Connect a wallet to see credits."
	}
	if m.tab == tabOwned {
		return "You do not hold any credits."
	}
	return "No credits are listed for sale."
}

func noteLine(n notify.Notification) string {
	text := n.Title
	if n.Message != "" {
		text += ": " + n.Message
	}
	stamp := StyleMeta.Render(n.Time.Format("15:04:05"))
	switch n.Kind {
	case notify.KindSuccess:
		return stamp + " " + Success(text)
	case notify.KindWarning:
		return stamp + " " + Warn(text)
	case notify.KindError:
		return stamp + " " + Err(text)
	}
	return stamp + " " + Info(text)
}

func (m dashboardModel) refreshCmd() tea.Cmd {
	refresh := m.deps.Refresh
	return func() tea.Msg {
		return refreshedMsg{err: refresh(context.Background())}
	}
}
