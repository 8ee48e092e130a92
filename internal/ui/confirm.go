package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

// Prompter asks questions on a line-oriented terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

var stdPrompter = NewPrompter(os.Stdin, os.Stdout)

// Confirm prompts the user with a yes/no question. Returns true for yes.
func (p *Prompter) Confirm(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", StyleWarning.Render(prompt))
	return p.yes()
}

// ConfirmDanger is like Confirm but styled with the error color (for
// destructive actions).
func (p *Prompter) ConfirmDanger(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", StyleError.Render("⚠ "+prompt))
	return p.yes()
}

// Input asks for a line of text. An empty answer returns def.
func (p *Prompter) Input(prompt, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s %s: ", StyleValue.Render(prompt), StyleMeta.Render("["+def+"]"))
	} else {
		fmt.Fprintf(p.out, "%s: ", StyleValue.Render(prompt))
	}
	line, _ := p.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func (p *Prompter) yes() bool {
	line, _ := p.in.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

// Confirm prompts on stdin.
func Confirm(prompt string) bool { return stdPrompter.Confirm(prompt) }

// ConfirmDanger prompts on stdin with danger styling.
func ConfirmDanger(prompt string) bool { return stdPrompter.ConfirmDanger(prompt) }

// PromptApprover asks the terminal user to approve wallet requests. It
// implements wallet.Approver.
type PromptApprover struct {
	P *Prompter
}

// Approve describes the request and waits for a yes/no answer.
func (a PromptApprover) Approve(ctx context.Context, req wallet.Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p := a.P
	if p == nil {
		p = stdPrompter
	}
	return p.Confirm(DescribeRequest(req)), nil
}

// DescribeRequest renders a wallet request as a question.
func DescribeRequest(req wallet.Request) string {
	switch req.Kind {
	case wallet.RequestConnect:
		return fmt.Sprintf("Connect wallet %q (%s) to w3carbon?", req.Wallet, TruncateAddr(req.Account.Hex()))
	case wallet.RequestSwitchChain:
		return fmt.Sprintf("Allow w3carbon to switch the network to %s?", networkLabel(req.Network))
	case wallet.RequestAddChain:
		return fmt.Sprintf("Allow w3carbon to add the network %s?", networkLabel(req.Network))
	}
	return "Approve " + req.Kind.String() + "?"
}

func networkLabel(n *chain.Network) string {
	if n == nil {
		return "unknown network"
	}
	name := n.DisplayName
	if name == "" {
		name = n.Name
	}
	return fmt.Sprintf("%s (chain %d)", name, n.ChainID)
}
