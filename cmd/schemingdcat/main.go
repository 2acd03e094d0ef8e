// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alexflint/go-arg"
	log "github.com/sirupsen/logrus"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/mjanez/schemingdcat/internal/telemetry"
	"github.com/mjanez/schemingdcat/pkg"
)

type HarvestCmd struct {
	Config string `arg:"positional,required" help:"path to the harvest configuration file"`
	Source string `arg:"--source" help:"restrict the run to one source id"`
}

type ImportCmd struct {
	Config string `arg:"positional,required" help:"path to the harvest configuration file"`
	Source string `arg:"--source" help:"restrict the reimport to one source id"`
}

type CreateInspireTagsCmd struct{}
type DeleteInspireTagsCmd struct{}
type CreateDcatTagsCmd struct{}
type DeleteDcatTagsCmd struct{}
type CreateIsoTopicTagsCmd struct{}
type DeleteIsoTopicTagsCmd struct{}

type DownloadRdfEuVocabsCmd struct {
	OutputDir string `arg:"positional,required" help:"directory the vocabulary files are written to"`
}

type UpdateStatsCmd struct {
	Report  string `arg:"positional,required" help:"harvest report JSON file to ingest"`
	StatsDB string `arg:"--stats-db" default:"schemingdcat_stats.duckdb"`
}

type ExportCmd struct {
	Config string `arg:"positional,required" help:"path to the harvest configuration file"`
	Source string `arg:"--source" help:"restrict the export to one source id"`
	Format string `arg:"--format" default:"nt" help:"output format, nt or jsonld"`
	Output string `arg:"--output" help:"output file; stdout when omitted"`
}

type CleanStatsCmd struct {
	OlderThanDays int    `arg:"--older-than-days" help:"drop runs older than this many days; 0 drops everything"`
	StatsDB       string `arg:"--stats-db" default:"schemingdcat_stats.duckdb"`
}

type Args struct {
	Harvest *HarvestCmd `arg:"subcommand:harvest" help:"run a full harvest cycle for every configured source"`
	Import  *ImportCmd  `arg:"subcommand:import" help:"reimport gathered objects that were never imported"`
	Export  *ExportCmd  `arg:"subcommand:export" help:"serialize the current harvested datasets as DCAT"`

	CreateInspireTags  *CreateInspireTagsCmd  `arg:"subcommand:create-inspire-tags" help:"install the INSPIRE theme vocabulary into the catalog"`
	DeleteInspireTags  *DeleteInspireTagsCmd  `arg:"subcommand:delete-inspire-tags" help:"remove the INSPIRE theme vocabulary from the catalog"`
	CreateDcatTags     *CreateDcatTagsCmd     `arg:"subcommand:create-dcat-tags" help:"install the DCAT type vocabulary into the catalog"`
	DeleteDcatTags     *DeleteDcatTagsCmd     `arg:"subcommand:delete-dcat-tags" help:"remove the DCAT type vocabulary from the catalog"`
	CreateIsoTopicTags *CreateIsoTopicTagsCmd `arg:"subcommand:create-iso-topic-tags" help:"install the ISO 19115 topic vocabulary into the catalog"`
	DeleteIsoTopicTags *DeleteIsoTopicTagsCmd `arg:"subcommand:delete-iso-topic-tags" help:"remove the ISO 19115 topic vocabulary from the catalog"`

	DownloadRdfEuVocabs *DownloadRdfEuVocabsCmd `arg:"subcommand:download-rdf-eu-vocabs" help:"download the EU authority vocabularies as RDF"`
	UpdateStats         *UpdateStatsCmd         `arg:"subcommand:update-stats" help:"append a harvest report to the local stats database"`
	CleanStats          *CleanStatsCmd          `arg:"subcommand:clean-stats" help:"drop old runs from the local stats database"`

	// catalog connection, used by the tag commands
	CatalogURL string `arg:"--catalog-url" help:"CKAN instance the tag commands operate on"`
	APIKey     string `arg:"--api-key"`

	LogLevel     string `arg:"--log-level" default:"INFO"`
	UseOtel      bool   `arg:"--use-otel"`
	OtelEndpoint string `arg:"--otel-endpoint" help:"OpenTelemetry endpoint"`
}

type Runner struct {
	args Args
}

func NewRunner(cliArgs []string) Runner {
	args := Args{}
	const dummyBinaryName = "schemingdcat"
	os.Args = append([]string{dummyBinaryName}, cliArgs...)

	parser := arg.MustParse(&args)
	if subCmd := parser.Subcommand(); subCmd == nil || subCmd == "" {
		log.Error("no subcommand provided")
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}
	return Runner{args: args}
}

func (r Runner) Run(ctx context.Context) (pkg.HarvestReport, error) {
	level, err := log.ParseLevel(r.args.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", r.args.LogLevel, err)
	}
	log.SetLevel(level)

	if r.args.UseOtel || r.args.OtelEndpoint != "" {
		if r.args.OtelEndpoint == "" {
			r.args.OtelEndpoint = telemetry.DefaultTracingEndpoint
		}
		log.Infof("Starting opentelemetry traces and exporting to: %s", r.args.OtelEndpoint)
		telemetry.InitTracer("schemingdcat", r.args.OtelEndpoint)
		var span otelTrace.Span
		argsAsStr := strings.Join(os.Args, "_")
		ctx, span = telemetry.SubSpanFromCtxWithName(ctx, argsAsStr)
		defer telemetry.Shutdown()
		defer span.End()
	}

	switch {
	case r.args.Harvest != nil:
		return runHarvest(ctx, *r.args.Harvest)
	case r.args.Import != nil:
		return nil, runImport(ctx, *r.args.Import)
	case r.args.Export != nil:
		return nil, runExport(ctx, *r.args.Export)
	case r.args.CreateInspireTags != nil:
		return nil, createTags(ctx, r.catalogConfig(), inspireVocabulary())
	case r.args.DeleteInspireTags != nil:
		return nil, deleteTags(ctx, r.catalogConfig(), inspireVocabulary())
	case r.args.CreateDcatTags != nil:
		return nil, createTags(ctx, r.catalogConfig(), dcatVocabulary())
	case r.args.DeleteDcatTags != nil:
		return nil, deleteTags(ctx, r.catalogConfig(), dcatVocabulary())
	case r.args.CreateIsoTopicTags != nil:
		return nil, createTags(ctx, r.catalogConfig(), isoTopicVocabulary())
	case r.args.DeleteIsoTopicTags != nil:
		return nil, deleteTags(ctx, r.catalogConfig(), isoTopicVocabulary())
	case r.args.DownloadRdfEuVocabs != nil:
		return nil, downloadEuVocabs(ctx, r.args.DownloadRdfEuVocabs.OutputDir)
	case r.args.UpdateStats != nil:
		return nil, updateStats(ctx, *r.args.UpdateStats)
	case r.args.CleanStats != nil:
		return nil, cleanStats(ctx, *r.args.CleanStats)
	default:
		return nil, fmt.Errorf("unknown subcommand")
	}
}

func (r Runner) catalogConfig() catalogConnection {
	return catalogConnection{URL: r.args.CatalogURL, APIKey: r.args.APIKey}
}

func main() {
	report, err := NewRunner(os.Args[1:]).Run(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	if report.Failed() {
		log.Warn("at least one source had gather or import failures; check the log for details")
		// not a fatal error that would exit 1, nor a user error that
		// would exit 2
		const nonFatalError = 3
		log.Exit(nonFatalError)
	}
}
