package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrUnsupportedFile is returned for binary artifacts the parser cannot read.
var ErrUnsupportedFile = errors.New("unsupported file type")

type FileType string

const (
	DelimitedText FileType = "delimited_text"
	WorkbookXLSX  FileType = "workbook_xlsx"
	WorkbookXLS   FileType = "workbook_xls"
)

type Parser struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Parser {
	return &Parser{
		logger: logger,
	}
}

// ProcessBytes tokenizes an uploaded artifact into a Table.
func (p *Parser) ProcessBytes(data []byte, filename string) (*Table, error) {
	fileType, err := DetectType(filename)
	if err != nil {
		p.logger.Debug("unknown file type", "filename", filename)
		return nil, err
	}
	p.logger.Debug("detected file type", "type", fileType, "filename", filename)

	var t *Table
	switch fileType {
	case WorkbookXLSX:
		t, err = p.ParseXLSX(data)
	case WorkbookXLS:
		t, err = p.ParseXLS(data)
	default:
		t, err = Tokenize(string(data))
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info("parsed file", "filename", filename, "headers", len(t.Headers), "rows", len(t.Rows), "delimiter", string(t.Delimiter))
	return t, nil
}

// DetectType maps a filename to the reader that handles it. Anything that is
// not a known binary format is treated as delimited text.
func DetectType(filename string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return WorkbookXLSX, nil
	case ".xls":
		return WorkbookXLS, nil
	case ".pdf", ".zip", ".gz", ".png", ".jpg", ".jpeg":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filename))
	}
	return DelimitedText, nil
}
