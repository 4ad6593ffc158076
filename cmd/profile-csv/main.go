// Command profile-csv runs the audience pipeline on a local CSV file and
// prints the result as JSON.
//
//	profile-csv -file customers.csv -name "Q3 buyers" -seed 42 -map email=Mail,name="Full Name"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/audience-builder/internal/audience"
	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/logger"
)

type output struct {
	File        string                    `json:"file"`
	Headers     []string                  `json:"headers"`
	RowCount    int                       `json:"row_count"`
	Diagnostics datanorm.Diagnostics      `json:"diagnostics"`
	Validation  datanorm.ValidationResult `json:"validation"`
	Mapping     datanorm.ColumnMapping    `json:"mapping"`
	Mapped      mappedSummary             `json:"mapped"`
	Profile     audience.Profile          `json:"profile"`
	Customers   []datanorm.CustomerRecord `json:"customers,omitempty"`
}

type mappedSummary struct {
	InputRows         int      `json:"input_rows"`
	Customers         int      `json:"customers"`
	DuplicatesSkipped int      `json:"duplicates_skipped"`
	RowsFailed        int      `json:"rows_failed"`
	Diagnostics       []string `json:"diagnostics"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("profile-csv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		file      = fs.String("file", "", "path to the customer CSV (required)")
		name      = fs.String("name", "", "audience name (default: derived from the file name)")
		seed      = fs.Int64("seed", 0, "seed for synthetic ids and size estimation; 0 is random")
		mapFlag   = fs.String("map", "", "mapping overrides, e.g. email=Mail,location=none")
		customers = fs.Bool("customers", false, "include the mapped customer records")
		logLevel  = fs.String("log-level", "warn", "log level written to stderr")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "profile-csv: -file is required")
		fs.Usage()
		return 2
	}
	overrides, err := parseMapping(*mapFlag)
	if err != nil {
		fmt.Fprintf(stderr, "profile-csv: %v\n", err)
		return 2
	}

	log := logger.New(logger.ParseLevel(*logLevel), stderr)
	mapperOpts := []datanorm.MapperOption{datanorm.WithLogger(log)}
	builderOpts := []audience.Option{audience.WithLogger(log)}
	if *seed != 0 {
		mapperOpts = append(mapperOpts, datanorm.WithIDFactory(datanorm.SeededIDs(*seed, time.Unix(0, 0))))
		builderOpts = append(builderOpts, audience.WithRandomSource(audience.NewRandomSource(*seed)))
	}
	builder, err := audience.NewBuilder(builderOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "profile-csv: %v\n", err)
		return 1
	}

	table, err := datanorm.IngestFile(ctx, *file)
	if err != nil {
		fmt.Fprintf(stderr, "profile-csv: %v\n", err)
		return 1
	}
	mapping := datanorm.AutoDetectMapping(table.Headers).Merge(overrides).Resolve(table.Headers)
	res, err := datanorm.NewMapper(mapperOpts...).MapRows(table, mapping)
	if err != nil {
		fmt.Fprintf(stderr, "profile-csv: %v\n", err)
		return 1
	}

	audienceName := *name
	if audienceName == "" {
		base := filepath.Base(*file)
		audienceName = "Lookalike: " + strings.TrimSuffix(base, filepath.Ext(base))
	}

	out := output{
		File:        *file,
		Headers:     table.Headers,
		RowCount:    table.RowCount,
		Diagnostics: table.Diagnostics,
		Validation:  datanorm.Validate(table),
		Mapping:     mapping,
		Mapped: mappedSummary{
			InputRows:         res.InputRows,
			Customers:         len(res.Customers),
			DuplicatesSkipped: res.DuplicatesSkipped,
			RowsFailed:        res.RowsFailed,
			Diagnostics:       res.Diagnostics,
		},
		Profile: builder.BuildProfile(res.Customers, audienceName),
	}
	if *customers {
		out.Customers = res.Customers
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "profile-csv: %v\n", err)
		return 1
	}
	return 0
}

// parseMapping reads "field=Column,field=Column". Field names are matched
// case-insensitively; a column of "none" unmaps the field.
func parseMapping(s string) (datanorm.ColumnMapping, error) {
	m := datanorm.ColumnMapping{}
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	for _, pair := range strings.Split(s, ",") {
		field, column, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("mapping %q: expected field=column", pair)
		}
		key, ok := datanorm.ParseFieldKey(field)
		if !ok {
			return nil, fmt.Errorf("mapping %q: unknown field %q", pair, strings.TrimSpace(field))
		}
		m[key] = strings.Trim(strings.TrimSpace(column), `"`)
	}
	return m, nil
}
