package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"

	"github.com/yurifrl/exoprep/pkg/csv"
	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
	"github.com/yurifrl/exoprep/pkg/parser"
	"github.com/yurifrl/exoprep/pkg/payload"
	"github.com/yurifrl/exoprep/pkg/plan"
	"github.com/yurifrl/exoprep/pkg/reconcile"
	"github.com/yurifrl/exoprep/pkg/records"
)

type options struct {
	mappingFile  string
	saveMapping  string
	debug        bool
	csv          bool
	completeOnly bool
}

type FileProcessor struct {
	logger *log.Logger
	parser *parser.Parser
	opts   *options
}

func NewFileProcessor(logger *log.Logger, opts *options) *FileProcessor {
	return &FileProcessor{
		logger: logger,
		parser: parser.New(logger),
		opts:   opts,
	}
}

func (p *FileProcessor) filter() csv.FilterFunc {
	if !p.opts.completeOnly {
		return nil
	}
	return csv.Complete
}

// Process prepares a single file, or every file of a directory.
func (p *FileProcessor) Process(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return p.ProcessFile(inputPath)
	}

	entries, err := os.ReadDir(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := p.ProcessFile(filepath.Join(inputPath, entry.Name())); err != nil {
			p.logger.Warn("error processing file", "file", entry.Name(), "error", err)
		}
	}
	return nil
}

// Reconcile parses inputPath and proposes its header mapping, with the saved
// mapping applied on top when one was given.
func (p *FileProcessor) Reconcile(inputPath string) (*parser.Table, *reconcile.Report, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	table, err := p.parser.ProcessBytes(data, filepath.Base(inputPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to process file: %w", err)
	}

	report := reconcile.Build(table.Headers, fields.Required)
	if p.opts.mappingFile != "" {
		saved, err := plan.Load(p.opts.mappingFile)
		if err != nil {
			return nil, nil, err
		}
		m, err := saved.FieldMapping()
		if err != nil {
			return nil, nil, err
		}
		if err := report.Apply(m); err != nil {
			return nil, nil, err
		}
	}
	return table, report, nil
}

func (p *FileProcessor) ProcessFile(inputPath string) error {
	table, report, err := p.Reconcile(inputPath)
	if err != nil {
		return err
	}
	if !p.opts.csv {
		printMapping(inputPath, report)
	}

	recs, err := records.Bulk(table)
	if err != nil {
		return err
	}
	out, err := payload.Assemble(models.Bulk, recs, report.Mapping())
	if err != nil {
		return err
	}

	if p.opts.saveMapping != "" {
		if err := plan.Save(p.opts.saveMapping, filepath.Base(inputPath), out.Mapping); err != nil {
			return err
		}
		p.logger.Info("mapping saved", "path", p.opts.saveMapping)
	}
	if p.opts.debug {
		pp.Println(out)
	}
	if p.opts.csv {
		body, err := csv.Create(out, p.filter())
		if err != nil {
			return err
		}
		fmt.Print(string(body))
	}
	return nil
}

// printMapping shows the reconciled header for every field. Automatic
// matches are gray, manual choices green and missing fields red.
func printMapping(name string, report *reconcile.Report) {
	matchedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	chosenStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	missingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	fmt.Printf("Mapping for %s\n", name)
	for _, e := range report.Entries {
		switch {
		case e.Selected == "":
			fmt.Println(missingStyle.Render(fmt.Sprintf("- %-20s | %s", e.Field, reconcile.UnselectedLabel)))
		case e.Status == reconcile.Matched && reconcile.Normalize(e.Selected) == reconcile.Normalize(string(e.Field)):
			fmt.Println(matchedStyle.Render(fmt.Sprintf("= %-20s | %s", e.Field, e.Selected)))
		default:
			fmt.Println(chosenStyle.Render(fmt.Sprintf("+ %-20s | %s", e.Field, e.Selected)))
		}
	}

	if n := report.UnmappedCount(); n > 0 {
		fmt.Printf("\nMapping: %d field(s) still need a column\n", n)
	} else {
		fmt.Printf("\nMapping: all %d field(s) mapped\n", len(report.Entries))
	}
}
