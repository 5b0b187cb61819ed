package watch

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/sync"
	"github.com/sidkik/linksync/pkg/trigger"
)

// terminalPrompter asks the coordinator's questions on the terminal. When
// the input isn't a terminal, every question gets the answer that changes
// nothing.
type terminalPrompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newTerminalPrompter(in io.Reader, out io.Writer, interactive bool) *terminalPrompter {
	return &terminalPrompter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

func (p *terminalPrompter) AskAutomatic(plan *sync.Plan, automatic []*config.Link) trigger.Answer {
	if !p.interactive {
		return trigger.Review
	}

	fmt.Fprintln(p.out, "These links are executed automatically whenever their files change:")
	for _, link := range automatic {
		fmt.Fprintf(p.out, "  - %s\n", link.Name())
	}
	fmt.Fprintf(p.out, "\nLink %q is about to be executed:\n%s\n", plan.Link.Name(), plan)
	fmt.Fprintln(p.out, "  [a] Allow automatic execution for the rest of this session")
	fmt.Fprintf(p.out, "  [n] Only notify when %q is out of date\n", plan.Link.Name())
	fmt.Fprintln(p.out, "  [r] Review the changes without executing them")

	for {
		fmt.Fprint(p.out, "Choice [a/n/r]: ")
		resp, err := p.in.ReadString('\n')
		if err != nil && err != io.EOF {
			log.WithError(err).Warn("Failed to read response")
			return trigger.Review
		}

		switch strings.ToLower(strings.TrimSpace(resp)) {
		case "a", "allow":
			return trigger.Allow
		case "n", "notify":
			return trigger.DowngradeToNotify
		case "r", "review":
			return trigger.Review
		}

		if err == io.EOF {
			return trigger.Review
		}
	}
}

func (p *terminalPrompter) AskContinueAutomatic() bool {
	if !p.interactive {
		log.Warn("Links were executed automatically many times in quick " +
			"succession, and might be triggering each other.")
		return false
	}

	fmt.Fprintln(p.out, "Links were executed automatically many times in quick "+
		"succession. They might be triggering each other.")
	fmt.Fprintln(p.out, "If you stop, every Automatic link is switched to Notify.")
	ok, err := util.Confirm(p.in, p.out, "Keep executing links automatically?")
	if err != nil {
		log.WithError(err).Warn("Failed to read response")
		return false
	}
	return ok
}

func (p *terminalPrompter) Review(plan *sync.Plan) {
	fmt.Fprint(p.out, plan)
	fmt.Fprintf(p.out, "Run `linksync execute %s` to apply these changes.\n", plan.Link.Name())
}
