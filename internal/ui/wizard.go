package ui

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Mohsinsiddi/w3carbon/internal/market"
)

// MintAnswers holds what the mint wizard collected.
type MintAnswers struct {
	Recipient    string
	ProjectName  string
	Location     string
	CarbonAmount string
	ValidYears   int
	Description  string
	Cancelled    bool
}

// ErrWizardCancelled is returned by Request for a cancelled wizard.
var ErrWizardCancelled = errors.New("mint wizard cancelled")

// Request converts the answers into a mint request with an expiry measured
// from now.
func (a MintAnswers) Request(now time.Time) (market.MintRequest, error) {
	if a.Cancelled {
		return market.MintRequest{}, ErrWizardCancelled
	}
	amount, ok := new(big.Int).SetString(a.CarbonAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return market.MintRequest{}, fmt.Errorf("carbon amount %q is not a positive whole number", a.CarbonAmount)
	}
	years := a.ValidYears
	if years <= 0 {
		years = 1
	}
	return market.MintRequest{
		Recipient:    a.Recipient,
		CarbonAmount: amount,
		ProjectName:  a.ProjectName,
		Location:     a.Location,
		Expiry:       now.AddDate(years, 0, 0),
		Description:  a.Description,
	}, nil
}

type wizardStep int

const (
	stepRecipient wizardStep = iota
	stepProject
	stepLocation
	stepAmount
	stepValidity
	stepDescription
	stepDone
)

var validityChoices = []int{1, 2, 5, 10}

type wizardModel struct {
	step    wizardStep
	answers MintAnswers
	cursor  int
	input   string
	problem string
}

func initialWizard() wizardModel {
	return wizardModel{step: stepRecipient}
}

func (m wizardModel) Init() tea.Cmd { return nil }

func (m wizardModel) choosing() bool { return m.step == stepValidity }

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.answers.Cancelled = true
		return m, tea.Quit
	case tea.KeyUp:
		if m.choosing() && m.cursor > 0 {
			m.cursor--
		}
	case tea.KeyDown:
		if m.choosing() && m.cursor < len(validityChoices)-1 {
			m.cursor++
		}
	case tea.KeyEnter:
		if m.apply() {
			m.step++
			m.input = ""
			m.cursor = 0
		}
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		if !m.choosing() {
			m.input += " "
		}
	case tea.KeyRunes:
		if !m.choosing() {
			m.input += string(key.Runes)
		}
	}

	if m.step == stepDone {
		return m, tea.Quit
	}
	return m, nil
}

// apply stores the current answer and reports whether it was accepted.
func (m *wizardModel) apply() bool {
	in := strings.TrimSpace(m.input)
	m.problem = ""
	switch m.step {
	case stepRecipient:
		m.answers.Recipient = strings.Trim(in, "[]")
	case stepProject:
		if in == "" {
			m.problem = "project name is required"
			return false
		}
		m.answers.ProjectName = in
	case stepLocation:
		if in == "" {
			m.problem = "location is required"
			return false
		}
		m.answers.Location = in
	case stepAmount:
		v, ok := new(big.Int).SetString(in, 10)
		if !ok || v.Sign() <= 0 {
			m.problem = "enter a positive whole number of tonnes"
			return false
		}
		m.answers.CarbonAmount = v.String()
	case stepValidity:
		m.answers.ValidYears = validityChoices[m.cursor]
	case stepDescription:
		m.answers.Description = in
	}
	return true
}

func (m wizardModel) View() string {
	var s string

	switch m.step {
	case stepRecipient:
		s = inputView("Recipient address", "Leave empty to mint to the connected account.", m.input)
	case stepProject:
		s = inputView("Project name", "The offset project, e.g. Amazon Rainforest Conservation.", m.input)
	case stepLocation:
		s = inputView("Location", "Country or region of the project.", m.input)
	case stepAmount:
		s = inputView("Carbon amount", "Tonnes of CO₂ this credit represents.", m.input)
	case stepValidity:
		labels := make([]string, len(validityChoices))
		for i, y := range validityChoices {
			labels[i] = fmt.Sprintf("%d year(s)", y)
		}
		s = renderMenu("Credit validity:", labels, m.cursor)
	case stepDescription:
		s = inputView("Description", "Optional. Press Enter to skip.", m.input)
	case stepDone:
		s = Success("Ready to mint") + "\n"
	}
	if m.problem != "" {
		s += "\n" + Err(m.problem)
	}

	return StyleBorder.Render(s) + "\n"
}

func inputView(title, help, input string) string {
	s := StyleTitle.Render(title) + "\n\n"
	s += StyleMeta.Render(help) + "\n"
	s += "> " + StyleAddress.Render(input) + "█\n"
	s += "\n" + StyleMeta.Render("Enter confirm · Esc cancel")
	return s
}

func renderMenu(title string, items []string, cursor int) string {
	s := StyleTitle.Render(title) + "\n\n"
	for i, item := range items {
		icon := "  "
		style := lipgloss.NewStyle().Foreground(ColorValue)
		if i == cursor {
			icon = "▸ "
			style = StyleSelected
		}
		s += icon + style.Render(item) + "\n"
	}
	s += "\n" + StyleMeta.Render("↑/↓ navigate · Enter select · Esc cancel")
	return s
}

// RunMintWizard asks for the fields of a new credit.
func RunMintWizard() (MintAnswers, error) {
	p := tea.NewProgram(initialWizard())
	final, err := p.Run()
	if err != nil {
		return MintAnswers{}, fmt.Errorf("wizard error: %w", err)
	}
	return final.(wizardModel).answers, nil
}
