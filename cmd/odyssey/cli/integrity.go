package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

// IntegrityScanner runs a quotation integrity sweep.
type IntegrityScanner interface {
	Scan(ctx context.Context, prefix string) (jobs.IntegrityReport, error)
}

// IntegrityOptions defines flags for the quotations check command.
type IntegrityOptions struct {
	Prefix     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegritySummary is the JSON output of quotations check.
type IntegritySummary struct {
	OK             bool     `json:"ok"`
	Bases          int      `json:"bases"`
	NoneActive     []string `json:"none_active"`
	MultipleActive []string `json:"multiple_active"`
}

// IntegrityCommand runs the sweep synchronously and prints the outcome. It
// exits with 10 when any base diverges.
func IntegrityCommand(ctx context.Context, scanner IntegrityScanner, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	report, err := scanner.Scan(ctx, opts.Prefix)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "quotations check: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		summary := IntegritySummary{
			OK:             report.Clean(),
			Bases:          report.Bases,
			NoneActive:     nonNil(report.NoneActive),
			MultipleActive: nonNil(report.MultipleActive),
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "quotations check: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "scanned %d bases\n", report.Bases)
		for _, base := range report.NoneActive {
			_, _ = fmt.Fprintf(opts.Stdout, "  %s: no active version\n", base)
		}
		for _, base := range report.MultipleActive {
			_, _ = fmt.Fprintf(opts.Stdout, "  %s: more than one active version\n", base)
		}
	}
	if !report.Clean() {
		return 10
	}
	return 0
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
