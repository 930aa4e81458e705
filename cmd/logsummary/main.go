// logsummary prints the observability aggregation of the NDJSON telemetry logs:
// error counts by severity and tag, vitals averages, the most recent records and
// the per-path grouping.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"nexus/internal/services"
	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	typeBoth    = "both"
	formatJSON  = "json"
	formatYAML  = "yaml"
	defaultLast = 5
)

type options struct {
	dir    string
	kind   string
	last   int
	path   string
	byPath bool
	format string
}

type errorsOutput struct {
	Summary services.ErrorsSummary              `json:"summary"          yaml:"summary"`
	Recent  []types.ErrorLogEntry               `json:"recent"           yaml:"recent"`
	ByPath  map[string]services.ErrorsPathGroup `json:"byPath,omitempty" yaml:"byPath,omitempty"`
}

type vitalsOutput struct {
	Summary services.VitalsSummary              `json:"summary"          yaml:"summary"`
	Recent  []types.VitalMetricEntry            `json:"recent"           yaml:"recent"`
	ByPath  map[string]services.VitalsPathGroup `json:"byPath,omitempty" yaml:"byPath,omitempty"`
}

type summaryOutput struct {
	Dir    string        `json:"dir"              yaml:"dir"`
	Path   string        `json:"path,omitempty"   yaml:"path,omitempty"`
	Last   int           `json:"last"             yaml:"last"`
	Errors *errorsOutput `json:"errors,omitempty" yaml:"errors,omitempty"`
	Vitals *vitalsOutput `json:"vitals,omitempty" yaml:"vitals,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	log := logger.New("logsummary").Function("run")

	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}
	if opts == nil {
		return nil
	}

	aggregator := services.NewAggregatorService(opts.dir)
	report := aggregator.Query(context.Background(), services.ObservabilityQuery{
		Type: types.LogKindVitals,
		Path: opts.path,
		Last: opts.last,
	})

	output := buildOutput(*opts, report)
	if err := write(stdout, opts.format, output); err != nil {
		return log.Err("failed to write summary", err, "format", opts.format)
	}
	return nil
}

// parseFlags returns nil options when only help was requested
func parseFlags(args []string, stdout io.Writer) (*options, error) {
	opts := options{}

	flagSet := pflag.NewFlagSet("logsummary", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&opts.dir, "dir", "logs", "directory holding errors.ndjson and vitals.ndjson")
	flagSet.StringVar(&opts.kind, "type", typeBoth, "which logs to summarize: both, errors or vitals")
	flagSet.IntVarP(&opts.last, "last", "l", defaultLast, "number of recent records to show")
	flagSet.StringVar(&opts.path, "path", "", "only include records for this page path")
	flagSet.BoolVar(&opts.byPath, "by-path", true, "include the per-path grouping")
	noByPath := flagSet.Bool("no-by-path", false, "omit the per-path grouping")
	flagSet.StringVar(&opts.format, "format", formatJSON, "output format: json or yaml")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, nil
		}
		return nil, err
	}

	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if *noByPath {
		opts.byPath = false
	}

	switch opts.kind {
	case string(types.LogKindErrors), string(types.LogKindVitals):
	default:
		opts.kind = typeBoth
	}

	if opts.last == 0 {
		opts.last = defaultLast
	}
	opts.last = services.ClampRecentLimit(opts.last)

	if opts.format != formatJSON && opts.format != formatYAML {
		return nil, fmt.Errorf("unsupported format %q, want json or yaml", opts.format)
	}

	return &opts, nil
}

func buildOutput(opts options, report services.ObservabilityReport) summaryOutput {
	output := summaryOutput{
		Dir:  opts.dir,
		Path: opts.path,
		Last: opts.last,
	}

	if opts.kind != string(types.LogKindVitals) {
		output.Errors = &errorsOutput{
			Summary: report.Errors.Summary,
			Recent:  report.Errors.Recent,
		}
		if opts.byPath {
			output.Errors.ByPath = report.Errors.Groups
		}
	}

	if opts.kind != string(types.LogKindErrors) {
		output.Vitals = &vitalsOutput{
			Summary: report.Vitals.Summary,
			Recent:  report.Vitals.Recent,
		}
		if opts.byPath {
			output.Vitals.ByPath = report.Vitals.Groups
		}
	}

	return output
}

func write(w io.Writer, format string, output summaryOutput) error {
	if format == formatYAML {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(output); err != nil {
			return err
		}
		return encoder.Close()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
