package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/export/metrics"
	"github.com/abdul-hamid-achik/hitrun/packages/history"
	"github.com/abdul-hamid-achik/hitrun/packages/notify"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
)

// reportExtensions names the files written to the output directory for
// reporters beyond the first.
var reportExtensions = map[output.Format]string{
	output.FormatConsole: ".txt",
	output.FormatJSON:    ".json",
	output.FormatJSONL:   ".jsonl",
	output.FormatJUnit:   ".xml",
	output.FormatTAP:     ".tap",
	output.FormatHTML:    ".html",
}

// reporting owns what outlives a single run in watch mode: the metrics
// endpoint, the history database and the notification state.
type reporting struct {
	ctx     context.Context
	cmd     *cobra.Command
	cfg     *config.Config
	logger  *slog.Logger
	formats []output.Format

	prom     *metrics.PrometheusExporter
	store    *history.Store
	notifier *notify.Manager
}

func newReporting(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*reporting, error) {
	r := &reporting{ctx: ctx, cmd: cmd, cfg: cfg, logger: logger}

	reporters := cfg.Reporters
	if len(reporters) == 0 {
		reporters = []string{string(output.FormatConsole)}
	}
	for _, name := range reporters {
		f, err := output.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		r.formats = append(r.formats, f)
	}

	if metricsPortFlag > 0 {
		prom, err := metrics.NewPrometheusExporter(
			metrics.WithPrometheusHTTP(fmt.Sprintf(":%d", metricsPortFlag)),
			metrics.WithPrometheusLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		r.prom = prom
	}

	if historyFlag != "" || cfg.HistoryDB != "" {
		path := cfg.HistoryDB
		if path == "" {
			path = history.DefaultPath
		}
		if dir := filepath.Dir(strings.TrimPrefix(strings.TrimPrefix(path, "sqlite://"), "sqlite:")); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				r.Close()
				return nil, fmt.Errorf("cannot create history directory: %w", err)
			}
		}
		store, err := history.Open(path)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.store = store
	}

	notifier, err := newNotifier()
	if err != nil {
		r.Close()
		return nil, err
	}
	r.notifier = notifier
	return r, nil
}

// newNotifier builds the notification manager the --notify flags ask for,
// or nil.
func newNotifier() (*notify.Manager, error) {
	services := splitList(notifyFlag)
	if len(services) == 0 {
		return nil, nil
	}
	on, err := notify.ParseNotifyOn(notifyOnFlag)
	if err != nil {
		return nil, err
	}

	var notifiers []notify.Notifier
	for _, service := range services {
		switch strings.ToLower(service) {
		case "slack":
			if slackWebhookFlag == "" {
				return nil, fmt.Errorf("--slack-webhook is required when using --notify slack")
			}
			var opts []notify.SlackOption
			if slackChannelFlag != "" {
				opts = append(opts, notify.WithSlackChannel(slackChannelFlag))
			}
			notifiers = append(notifiers, notify.NewSlackNotifier(slackWebhookFlag, opts...))
		case "teams":
			if teamsWebhookFlag == "" {
				return nil, fmt.Errorf("--teams-webhook is required when using --notify teams")
			}
			notifiers = append(notifiers, notify.NewTeamsNotifier(teamsWebhookFlag))
		default:
			return nil, fmt.Errorf("unknown notification service %q (expected slack or teams)", service)
		}
	}
	return notify.NewManager(on, notifiers...), nil
}

func (r *reporting) Close() {
	if r.prom != nil {
		if err := r.prom.Close(); err != nil {
			r.logger.Warn("closing metrics server", "error", err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("closing history database", "error", err)
		}
	}
}

// report is the set of sinks for one pass over the plans.
type report struct {
	*reporting
	sink      *output.Multi
	console   *output.ConsoleSink
	files     []*os.File
	collector *metrics.Collector
	exporters []metrics.Exporter
	history   *history.Sink
	notify    *notify.Sink
}

func (r *reporting) begin() (*report, error) {
	rep := &report{reporting: r, sink: output.NewMulti()}

	stdout := r.cmd.OutOrStdout()
	primary := r.formats[0]
	var w io.Writer = stdout
	if outputFileFlag != "" {
		f, err := rep.create(outputFileFlag)
		if err != nil {
			return nil, err
		}
		w = f
	}

	if primary == output.FormatConsole {
		rep.console = r.newConsole(w, outputFileFlag != "")
		rep.sink.Add(rep.console)
	} else {
		sink, err := r.newSink(primary, w)
		if err != nil {
			rep.closeFiles()
			return nil, err
		}
		rep.sink.Add(sink)
		if outputFileFlag != "" {
			rep.console = r.newConsole(stdout, false)
			rep.sink.Add(rep.console)
		}
	}

	for _, format := range r.formats[1:] {
		dir := r.cfg.OutputDir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			rep.closeFiles()
			return nil, fmt.Errorf("cannot create output directory: %w", err)
		}
		f, err := rep.create(filepath.Join(dir, "hitrun-report"+reportExtensions[format]))
		if err != nil {
			rep.closeFiles()
			return nil, err
		}
		sink, err := r.newSink(format, f)
		if err != nil {
			rep.closeFiles()
			return nil, err
		}
		rep.sink.Add(sink)
	}

	if err := rep.addMetrics(); err != nil {
		rep.closeFiles()
		return nil, err
	}
	if r.store != nil {
		rep.history = history.NewSink(r.ctx, r.store, r.logger)
		rep.sink.Add(rep.history)
	}
	if r.notifier != nil {
		rep.notify = notify.NewSink(r.notifier, envFlag)
		rep.sink.Add(rep.notify)
	}

	if rep.console != nil {
		rep.console.FormatHeader(version)
	}
	return rep, nil
}

func (r *reporting) newConsole(w io.Writer, toFile bool) *output.ConsoleSink {
	return output.NewConsoleSink(
		output.WithWriter(w),
		output.WithVerbose(r.cfg.GetVerbose()),
		output.WithNoColor(r.cfg.GetNoColor() || toFile),
		output.WithDiagnostics(r.cfg.GetDiagnosticMessages()),
		output.WithProgress(progressFlag, time.Second),
	)
}

func (r *reporting) newSink(format output.Format, w io.Writer) (messages.Sink, error) {
	sink, err := output.New(format, w)
	if err != nil {
		return nil, err
	}
	if h, ok := sink.(*output.HTMLSink); ok {
		h.SetVersion(version)
	}
	return sink, nil
}

func (rep *report) create(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create output file: %w", err)
	}
	rep.files = append(rep.files, f)
	return f, nil
}

func (rep *report) addMetrics() error {
	var exporters []metrics.Exporter
	if rep.prom != nil {
		exporters = append(exporters, rep.prom)
	}

	if path := rep.cfg.MetricsFile; path != "" {
		if strings.HasSuffix(path, ".prom") {
			textfile, err := metrics.NewPrometheusExporter(
				metrics.WithPrometheusTextfile(path),
				metrics.WithPrometheusLogger(rep.logger),
			)
			if err != nil {
				return err
			}
			rep.exporters = append(rep.exporters, textfile)
		} else {
			rep.exporters = append(rep.exporters, metrics.NewJSONExporter(
				metrics.WithJSONFile(path),
				metrics.WithJSONVersion(version),
			))
		}
	}

	exporters = append(exporters, rep.exporters...)
	if len(exporters) == 0 {
		return nil
	}
	rep.collector = metrics.NewCollector(exporters...)
	rep.sink.Add(rep.collector)
	return nil
}

// loadError reports a plan that could not be run.
func (rep *report) loadError(file string, err error) {
	err = fmt.Errorf("%s: %w", file, err)
	rep.logger.Error("cannot run plan", "plan", file, "error", err)
	if rep.console != nil {
		rep.console.FormatError(err)
	}
	rep.sink.OnMessage(messages.ErrorMessage{ErrorMetadata: messages.ConvertError(err)})
}

// finish flushes every report, the metrics collector included, and releases
// the per-run resources.
func (rep *report) finish() error {
	var errs []error
	if err := rep.sink.Flush(); err != nil {
		errs = append(errs, err)
	}
	for _, exp := range rep.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rep.history != nil {
		if err := rep.history.Err(); err != nil {
			rep.logger.Warn("run history incomplete", "error", err)
		}
	}
	if rep.notify != nil {
		// An interrupted run is still worth a notification.
		if err := rep.notify.Send(context.WithoutCancel(rep.ctx)); err != nil {
			rep.logger.Warn("notification failed", "error", err)
		}
	}
	errs = append(errs, rep.closeFiles())
	return errors.Join(errs...)
}

func (rep *report) closeFiles() error {
	var errs []error
	for _, f := range rep.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rep.files = nil
	return errors.Join(errs...)
}
