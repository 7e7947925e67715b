package browser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

const pdfStyle = `body { font-family: Arial, sans-serif; line-height: 1.6; margin: 40px; }
h1, h2, h3 { color: #333; }
code { background-color: #f4f4f4; padding: 2px 4px; border-radius: 3px; }
pre { background-color: #f4f4f4; padding: 10px; border-radius: 5px; overflow-x: auto; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }`

var pdfMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts markdown to a styled standalone HTML document.
func RenderHTML(md string) (string, error) {
	var body bytes.Buffer
	if err := pdfMarkdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<style>\n" + pdfStyle +
		"\n</style>\n</head>\n<body>\n" + body.String() + "</body>\n</html>\n", nil
}

// pdfRequest is a parsed markdown_to_pdf input.
type pdfRequest struct {
	filename string
	markdown string
}

// parsePDFInput accepts three forms:
//
//	FILENAME:name\n<markdown>    explicit output name
//	notes.md                     a .md or .txt file in the workspace
//	<markdown>                   anything else, with a timestamped name
func parsePDFInput(input string, files *tools.FileTools, now time.Time) (pdfRequest, error) {
	trimmed := strings.TrimSpace(input)
	first, rest, _ := strings.Cut(trimmed, "\n")

	var req pdfRequest
	switch {
	case strings.HasPrefix(first, "FILENAME:"):
		req.filename = strings.TrimSpace(strings.TrimPrefix(first, "FILENAME:"))
		req.markdown = rest
	case isSourceFile(trimmed, files):
		data, err := os.ReadFile(mustResolve(files, trimmed))
		if err != nil {
			return req, fmt.Errorf("read %s: %w", trimmed, err)
		}
		req.markdown = string(data)
		req.filename = strings.TrimSuffix(strings.TrimSuffix(trimmed, ".md"), ".txt")
	default:
		req.markdown = trimmed
	}

	if req.filename == "" {
		req.filename = "markdown_document_" + now.Format("20060102_150405")
	}
	if !strings.HasSuffix(req.filename, ".pdf") {
		req.filename += ".pdf"
	}
	return req, nil
}

func isSourceFile(s string, files *tools.FileTools) bool {
	if strings.Contains(s, "\n") || (!strings.HasSuffix(s, ".md") && !strings.HasSuffix(s, ".txt")) {
		return false
	}
	p, err := files.ResolvePath(s)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func mustResolve(files *tools.FileTools, s string) string {
	p, _ := files.ResolvePath(s)
	return p
}

// RegisterPDF adds markdown_to_pdf to r. Output lands in the workspace.
func RegisterPDF(r *tools.Registry, m *Manager, files *tools.FileTools) {
	if !files.Enabled() {
		return
	}
	r.Register(&tools.Tool{
		Name: "markdown_to_pdf",
		Description: "Convert markdown to a PDF saved in the workspace. Input is one of: " +
			"'notes.md' or 'notes.txt' (reads the workspace file), " +
			"'FILENAME:name\\n<markdown>' (explicit output name), or plain markdown.",
		Parameters: tools.Schema(map[string]any{
			"input": tools.Prop("string", "Markdown, a workspace file name, or FILENAME:name followed by markdown"),
		}, "input"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			input := tools.StringArg(args, "input")
			if strings.TrimSpace(input) == "" {
				return "", fmt.Errorf("input is required")
			}
			req, err := parsePDFInput(input, files, time.Now())
			if err != nil {
				return "", err
			}
			return m.MarkdownToPDF(ctx, files, req.filename, req.markdown)
		},
	})
}

// MarkdownToPDF renders md and writes it to name inside the workspace.
func (m *Manager) MarkdownToPDF(ctx context.Context, files *tools.FileTools, name, md string) (string, error) {
	dst, err := files.ResolvePath(name)
	if err != nil {
		return "", err
	}
	doc, err := RenderHTML(md)
	if err != nil {
		return "", err
	}

	var pdf []byte
	err = m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		var err error
		pdf, err = b.PrintToPDF(ctx, doc)
		return err
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(dst, pdf, 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return "Successfully created PDF: " + name, nil
}
