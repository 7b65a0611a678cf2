package cli

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

// withSpinner runs fn while a spinner with msg turns on w. Nothing is drawn when quiet is set.
func withSpinner(w io.Writer, quiet bool, msg string, fn func() error) error {
	if quiet {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + msg
	s.Start()
	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("✗ "+msg) + "\n"
	}
	s.Stop()
	return err
}
