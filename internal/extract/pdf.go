package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"bookshelf/pkg/domain"
)

var errNotPDF = errors.New("not a pdf file")

// extractPDF parses the document info dictionary and renders a cover from
// page one. Any failure falls through to the next strategy.
func (e *Extractor) extractPDF(_ context.Context, data []byte, filename string) (*domain.ExtractedMetadata, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, errNotPDF
	}

	info, err := readPDFInfo(data)
	if err != nil {
		return nil, err
	}

	cover, err := renderCover(data)
	if err != nil {
		return nil, fmt.Errorf("render cover: %w", err)
	}

	meta := &domain.ExtractedMetadata{
		Title:         info.title,
		Author:        info.author,
		Pages:         info.pages,
		PublishedYear: info.year,
		Cover:         cover,
	}
	if meta.Title == "" {
		meta.Title = titleFromFilename(filename)
	}
	if meta.PublishedYear == 0 {
		meta.PublishedYear = time.Now().Year()
	}
	return meta, nil
}

type pdfInfo struct {
	title  string
	author string
	pages  int
	year   int
}

// readPDFInfo reads the page count and Info dictionary. The parser panics on
// some malformed inputs, so recover converts those into plain errors.
func readPDFInfo(data []byte) (info pdfInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pdfInfo{}, fmt.Errorf("parse pdf: %w", err)
	}

	info.pages = reader.NumPage()
	dict := reader.Trailer().Key("Info")
	if dict.IsNull() {
		return info, nil
	}
	info.title = strings.TrimSpace(dict.Key("Title").Text())
	info.author = strings.TrimSpace(dict.Key("Author").Text())
	info.year = parsePDFDateYear(dict.Key("CreationDate").Text())
	return info, nil
}

// parsePDFDateYear pulls the year out of a PDF date string such as
// "D:20230115120000Z". Returns 0 when the value is absent or malformed.
func parsePDFDateYear(raw string) int {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "D:")
	if len(raw) < 4 {
		return 0
	}
	year, err := strconv.Atoi(raw[:4])
	if err != nil || year < 1000 || year > time.Now().Year()+1 {
		return 0
	}
	return year
}
