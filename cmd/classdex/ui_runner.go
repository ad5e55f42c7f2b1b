package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"classdex/internal/buildpipeline"
	"classdex/internal/driver"
	"classdex/internal/ui"
)

type runOutcome struct {
	result *driver.Result
	err    error
}

// runWithUI runs the driver while a progress view consumes its events.
// Quitting the view cancels the run.
func runWithUI(ctx context.Context, title string, opts driver.Options) (*driver.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan runOutcome, 1)
	go func() {
		opts.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := driver.Run(ctx, opts)
		outcomeCh <- runOutcome{result: res, err: err}
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, nil, events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	cancel()
	// The sink may still be sending after the view quit early.
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
