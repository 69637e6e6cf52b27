package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"github.com/multiverse-hardware-labs/nexus-pipeline/bus"
	"github.com/multiverse-hardware-labs/nexus-pipeline/dispatch"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nexusrun"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nxfile"
)

// Config holds the engine's file-layout and timing tunables.
type Config struct {
	LocalTempDir      string // where open runs' .nxs files live
	LocalCompletedDir string // where Flush moves finished runs
	FlushDelay        time.Duration
	InstrumentName    string
	ProgramName       string
	ProgramVersion    string
	Configuration     string
}

// Engine owns the run cache, the per-run file handles, and the bus
// subscription-mode switch.
type Engine struct {
	cfg     Config
	cache   *nexusrun.Cache
	entries map[*nexusrun.Run]*runEntry
	client  bus.Client
	log     zerolog.Logger

	fullMode bool // true once a RunStart has switched subscriptions to Full
}

// New builds an empty Engine. Call Resume before serving traffic if
// resuming from a prior process's local temp directory.
func New(cfg Config, client bus.Client, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		cache:   nexusrun.NewCache(),
		entries: map[*nexusrun.Run]*runEntry{},
		client:  client,
		log:     log,
	}
}

// Resume scans LocalTempDir for existing .nxs files, reopens each, reads
// its run parameters back, appends an internal RunResume log, and adds it
// to the cache.
func (e *Engine) Resume() error {
	entries, err := os.ReadDir(e.cfg.LocalTempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("engine: scanning local temp dir: %w", err)
	}

	now := time.Now()
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != ".nxs" {
			continue
		}
		path := filepath.Join(e.cfg.LocalTempDir, dirEntry.Name())
		if err := e.resumeOne(path, now); err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("failed to resume run from local temp directory")
		}
	}
	return nil
}

func (e *Engine) resumeOne(path string, now time.Time) error {
	writer, err := nxfile.Open(path)
	if err != nil {
		return err
	}
	runName, startTime, periods, err := writer.ReadParameters()
	if err != nil {
		writer.Close()
		return err
	}

	run := nexusrun.New(startTime, runName, path)
	run.Resumed = true
	run.Periods = periods
	entry := &runEntry{run: run, writer: writer, runStartNanos: startTime.UnixNano()}

	e.cache.Add(run)
	e.entries[run] = entry

	if err := dispatch.Dispatch(entry, dispatch.PushInternallyGeneratedLogWarning{
		Warning: dispatch.RunResume{ResumeTime: now},
	}); err != nil {
		e.log.Warn().Err(err).Str("run_name", runName).Msg("failed to append resume warning log")
	}

	e.log.Info().Str("run_name", runName).Str("path", path).Msg("resumed run from local temp directory")
	return nil
}

// HandleRunStart synthesises an abort on the previous unstoped run (if
// any), opens a new .nxs file, initialises its NeXus structure, and
// switches subscriptions to Full.
func (e *Engine) HandleRunStart(rs messages.RunStart) error {
	now := time.Now()
	if last := e.cache.Last(); last != nil && last.Phase() == nexusrun.Running {
		if entry, ok := e.entries[last]; ok {
			if err := dispatch.Dispatch(entry, dispatch.PushInternallyGeneratedLogWarning{
				Warning: dispatch.AbortRun{StopTimeMillis: uint64(rs.Time.UnixMilli())},
			}); err != nil {
				e.log.Warn().Err(err).Msg("failed to append synthesised abort warning log")
			}
		}
	}

	run := nexusrun.New(rs.Time, rs.RunName, filepath.Join(e.cfg.LocalTempDir, rs.RunName+".nxs"))
	if err := e.cache.StartRun(run, rs.Time, now); err != nil {
		return fmt.Errorf("engine: starting run %q: %w", rs.RunName, err)
	}

	writer, err := nxfile.Create(run.FileName)
	if err != nil {
		return err
	}
	entry := &runEntry{run: run, writer: writer, runStartNanos: rs.Time.UnixNano()}
	e.entries[run] = entry

	if err := dispatch.Dispatch(entry, dispatch.InitialiseNewNexusStructure{
		Parameters: nxfile.Parameters{
			RunName:        rs.RunName,
			InstrumentName: e.cfg.InstrumentName,
			StartTime:      rs.Time,
			Periods:        rs.Periods,
			Configuration:  e.cfg.Configuration,
			ProgramName:    e.cfg.ProgramName,
			ProgramVersion: e.cfg.ProgramVersion,
		},
	}); err != nil {
		return err
	}
	if err := dispatch.Dispatch(entry, dispatch.PushRunStart{RunStart: rs}); err != nil {
		return err
	}

	if !e.fullMode {
		if err := e.client.Subscribe(bus.Full); err != nil {
			return fmt.Errorf("engine: switching to full subscription mode: %w", err)
		}
		e.fullMode = true
	}
	return nil
}

// HandleRunStop applies a RunStop to the last run in the cache.
// ErrRunStopUnexpected propagates unchanged.
func (e *Engine) HandleRunStop(stop messages.RunStop) error {
	if err := e.cache.StopRun(stop.Time, time.Now()); err != nil {
		return err
	}
	last := e.cache.Last()
	entry, ok := e.entries[last]
	if !ok {
		return nil
	}
	return dispatch.Dispatch(entry, dispatch.SetEndTime{EndTime: stop.Time})
}

// HandleFrameEventList matches an aggregated frame to its run by
// find_run_containing; a miss is logged and silently dropped.
func (e *Engine) HandleFrameEventList(frame messages.AggregatedFrame) {
	run := e.cache.FindRunContaining(frame.Metadata.Timestamp)
	if run == nil {
		e.log.Debug().Str("frame", spew.Sdump(frame.Metadata)).Msg("no run matches frame event list timestamp")
		return
	}
	entry := e.entries[run]
	if err := dispatch.Dispatch(entry, dispatch.PushFrameEventList{Frame: frame}); err != nil {
		e.log.Error().Err(err).Msg("failed to push frame event list")
	}
}

// HandleRunLog matches an f144 run log by find_run_containing.
func (e *Engine) HandleRunLog(d messages.LogData) {
	run := e.cache.FindRunContaining(d.Timestamp)
	if run == nil {
		e.log.Debug().Str("source", d.SourceName).Msg("no run matches run log timestamp")
		return
	}
	entry := e.entries[run]
	if err := dispatch.Dispatch(entry, dispatch.PushRunLog{LogData: d, Origin: messages.OriginRunLog}); err != nil {
		e.log.Error().Err(err).Msg("failed to push run log")
	}
}

// HandleSampleEnvironmentLog matches an se00 packet using the weaker
// find_run_not_ending_before test.
func (e *Engine) HandleSampleEnvironmentLog(d messages.SampleEnvironmentData) {
	if len(d.Timestamps) == 0 {
		return
	}
	run := e.cache.FindRunNotEndingBefore(d.Timestamps[0])
	if run == nil {
		e.log.Debug().Str("name", d.Name).Msg("no run matches sample environment log timestamp")
		return
	}
	entry := e.entries[run]
	if err := dispatch.Dispatch(entry, dispatch.PushSampleEnvironmentLog{Data: d, Origin: messages.OriginSampleEnvironment}); err != nil {
		e.log.Error().Err(err).Msg("failed to push sample environment log")
	}
}

// HandleAlarm matches an al00 alarm using find_run_not_ending_before.
func (e *Engine) HandleAlarm(a messages.Alarm) {
	run := e.cache.FindRunNotEndingBefore(a.Timestamp)
	if run == nil {
		e.log.Debug().Str("source", a.SourceName).Msg("no run matches alarm timestamp")
		return
	}
	entry := e.entries[run]
	if err := dispatch.Dispatch(entry, dispatch.PushAlarm{Alarm: a}); err != nil {
		e.log.Error().Err(err).Msg("failed to push alarm")
	}
}

// Flush drains every completed run, closes its file, and moves it from
// the local temp directory to the local completed directory by a
// same-volume rename. If the cache becomes empty, subscriptions switch
// to ContinuousOnly.
func (e *Engine) Flush(now time.Time) error {
	completed := e.cache.DrainCompleted(now, e.cfg.FlushDelay)
	for _, run := range completed {
		entry := e.entries[run]
		delete(e.entries, run)
		if entry == nil {
			continue
		}
		if err := entry.writer.Close(); err != nil {
			e.log.Error().Err(err).Str("run_name", run.RunName).Msg("failed to close completed run's file")
			continue
		}
		dest := filepath.Join(e.cfg.LocalCompletedDir, filepath.Base(run.FileName))
		if err := os.Rename(run.FileName, dest); err != nil {
			e.log.Error().Err(err).Str("run_name", run.RunName).Msg("failed to move completed run to local completed directory")
			continue
		}
		e.log.Info().Str("run_name", run.RunName).Str("dest", dest).Msg("run completed and moved to local completed directory")
	}

	if e.cache.Len() == 0 && e.fullMode {
		if err := e.client.Subscribe(bus.ContinuousOnly); err != nil {
			return fmt.Errorf("engine: switching to continuous-only subscription mode: %w", err)
		}
		e.fullMode = false
	}
	return nil
}
