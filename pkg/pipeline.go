package pkg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// SnapshotSource provides the upstream document for one run.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*SourceSnapshot, error)
}

type RunReport struct {
	CapturedAt time.Time
	Dataset    VaccinationDataset
	Rows       []PersistedRow
	Chart      []byte
}

type RunSummary struct {
	CapturedAt time.Time      `json:"captured_at"`
	Countries  int            `json:"countries"`
	Fallbacks  map[string]int `json:"fallbacks"`
}

func (report *RunReport) Summary() RunSummary {
	fallbacks := make(map[string]int)
	for reason, count := range report.Dataset.FallbackCount() {
		fallbacks[reason.String()] = count
	}
	return RunSummary{
		CapturedAt: report.CapturedAt,
		Countries:  report.Dataset.Len(),
		Fallbacks:  fallbacks,
	}
}

type Pipeline struct {
	Source     SnapshotSource
	Store      Store
	ChartTitle string
	Now        func() time.Time
	Logger     *zerolog.Logger

	running sync.Mutex
	mu      sync.RWMutex
	latest  *RunReport
}

// Run fetches, transforms, persists and charts one snapshot. Runs never overlap.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	started := time.Now()
	snapshot, err := p.Source.FetchSnapshot(ctx)
	if err != nil {
		p.log().Err(err).Msg("Failed to get source snapshot")
		return nil, err
	}

	dataset := BuildDataset(snapshot)
	for _, row := range dataset.Rows {
		if row.Fallback != FallbackNone {
			p.log().Debug().Str("country", row.ISOCode).Stringer("reason", row.Fallback).
				Msg("Using zero percentages for country")
		}
	}

	// A failed run leaves no batch behind, so render before persisting.
	chart, err := ChartDocument(dataset, p.chartTitle())
	if err != nil {
		p.log().Err(err).Msg("Failed to render chart")
		return nil, fmt.Errorf("failed rendering chart: %w", err)
	}

	capturedAt := p.now()
	rows, err := p.Store.AppendBatch(ctx, dataset, capturedAt)
	if err != nil {
		p.log().Err(err).Time("captured_at", capturedAt).Msg("Failed to store percentages")
		return nil, err
	}

	report := &RunReport{
		CapturedAt: capturedAt,
		Dataset:    dataset,
		Rows:       rows,
		Chart:      chart,
	}
	p.mu.Lock()
	p.latest = report
	p.mu.Unlock()

	p.log().Info().Int("countries", dataset.Len()).Int("zeroed", len(dataset.Rows)-countComputed(dataset)).
		Dur("elapsed", time.Since(started)).Msg("Pipeline run finished")
	return report, nil
}

// Latest returns the last successful run, or nil before the first one.
func (p *Pipeline) Latest() *RunReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pipeline) chartTitle() string {
	if p.ChartTitle == "" {
		return DefaultChartTitle
	}
	return p.ChartTitle
}

func countComputed(dataset VaccinationDataset) int {
	computed := 0
	for _, row := range dataset.Rows {
		if row.Fallback == FallbackNone {
			computed++
		}
	}
	return computed
}

func (p *Pipeline) log() *zerolog.Logger {
	if p.Logger == nil {
		return &log.Logger
	}
	return p.Logger
}
