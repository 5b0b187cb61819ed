package execute

import (
	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/linksync/pkg/sync"
)

// progressBar shows the progress of each execution in the terminal. A new
// bar is started for every plan.
type progressBar struct {
	enabled bool
	bar     *pterm.ProgressbarPrinter
}

func newProgress() *progressBar {
	return &progressBar{enabled: stdoutIsTerminal()}
}

func (pb *progressBar) update(p sync.Progress) {
	if !pb.enabled {
		return
	}

	if p.Done == 0 {
		pb.stop()
		bar, err := pterm.DefaultProgressbar.
			WithTotal(p.Total).
			WithTitle("Synchronizing").
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			log.WithError(err).Debug("Failed to start progress bar")
			pb.enabled = false
			return
		}
		pb.bar = bar
	}

	if pb.bar != nil && p.Done > pb.bar.Current {
		pb.bar.Add(p.Done - pb.bar.Current)
	}
}

func (pb *progressBar) stop() {
	if pb.bar == nil {
		return
	}

	if _, err := pb.bar.Stop(); err != nil {
		log.WithError(err).Debug("Failed to stop progress bar")
	}
	pb.bar = nil
}
