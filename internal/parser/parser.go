package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Extractor pulls the raw text out of one saved file
type Extractor interface {
	Extract(filePath string) (string, error)
}

type ExtractorFunc func(filePath string) (string, error)

func (f ExtractorFunc) Extract(filePath string) (string, error) {
	return f(filePath)
}

// Loader dispatches files to an extractor by their lower-cased extension
type Loader struct {
	extractors map[string]Extractor
}

// NewLoader returns a loader knowing every format this package can read
func NewLoader() *Loader {
	l := &Loader{extractors: make(map[string]Extractor)}
	l.Register(".pdf", ExtractorFunc(parsePDF))
	l.Register(".docx", ExtractorFunc(parseDOCX))
	l.Register(".pptx", ExtractorFunc(parsePPTX))
	l.Register(".xlsx", ExtractorFunc(parseXLSX))
	l.Register(".xlsm", ExtractorFunc(parseWorkbook))
	l.Register(".xltx", ExtractorFunc(parseWorkbook))
	l.Register(".md", ExtractorFunc(parseMarkdown))
	l.Register(".txt", ExtractorFunc(parseText))
	return l
}

func (l *Loader) Register(ext string, e Extractor) {
	l.extractors[strings.ToLower(ext)] = e
}

func (l *Loader) Supports(ext string) bool {
	_, ok := l.extractors[strings.ToLower(ext)]
	return ok
}

// ExtractText concatenates the text of all files in the given order, with no separator
func (l *Loader) ExtractText(filePaths []string) (string, error) {
	var sb strings.Builder
	for _, filePath := range filePaths {
		content, err := l.ExtractFile(filePath)
		if err != nil {
			return "", err
		}
		sb.WriteString(content)
	}
	return sb.String(), nil
}

func (l *Loader) ExtractFile(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	e, ok := l.extractors[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}
	content, err := e.Extract(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(filePath), err)
	}
	return content, nil
}

func parsePDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			log.Debug().Str("file", filepath.Base(filePath)).Int("page", i).Msg("skipping empty page")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Debug().Err(err).Str("file", filepath.Base(filePath)).Int("page", i).Msg("no text on page")
			continue
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// the editable content is the raw document.xml
	return textFromXML(r.Editable().GetContent())
}

func parsePPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var slides []*zip.File
	for _, file := range f.File {
		if slideNumber(file.Name) > 0 {
			slides = append(slides, file)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	var sb strings.Builder
	for _, file := range slides {
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		slideText, err := textFromXML(string(data))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file.Name, err)
		}
		sb.WriteString(slideText)
	}
	return sb.String(), nil
}

// slideNumber returns N for ppt/slides/slideN.xml and 0 for anything else
func slideNumber(name string) int {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
	if err != nil {
		return 0
	}
	return n
}

func parseXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				sb.WriteString(cell.String() + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func parseWorkbook(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Debug().Err(err).Str("sheet", sheetName).Msg("skipping unreadable sheet")
			continue
		}
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func parseText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseMarkdown keeps the readable text of a markdown file and drops its syntax
func parseMarkdown(filePath string) (string, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// textFromXML collects the character data of every <t> run (w:t in docx,
// a:t in pptx) and ends a line at every closing paragraph.
func textFromXML(content string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))
	var sb strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
