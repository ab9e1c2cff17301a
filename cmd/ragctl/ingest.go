package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pdfquiz/internal/bootstrap"
	"pdfquiz/internal/rag"
)

var (
	ingestNoOCR     bool
	ingestMinText   int
	ingestKeepBlank bool
	ingestLanguage  string
)

func init() {
	ingestCmd.Flags().BoolVar(&ingestNoOCR, "no-ocr", false, "disable OCR fallback")
	ingestCmd.Flags().IntVar(&ingestMinText, "min-text", -1, "minimum native text length per page (default from config)")
	ingestCmd.Flags().BoolVar(&ingestKeepBlank, "keep-blank", false, "send pages without text to OCR instead of skipping them")
	ingestCmd.Flags().StringVar(&ingestLanguage, "lang", "", "OCR language (default from config)")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>",
	Short: "Extract, chunk, embed and index a PDF",
	Long: `Ingest a PDF into the conversation's namespace.

Examples:
  # Ingest into conversation 42
  ragctl ingest lecture.pdf --chat 42

  # Native text only, accept short pages
  ragctl ingest slides.pdf --chat 42 --no-ocr --min-text 10`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s failed: %w", args[0], err)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	opts := bootstrap.IngestDefaults(s.cfg)
	if ingestNoOCR {
		opts.EnableOCR = false
	}
	if ingestMinText >= 0 {
		opts.MinTextLength = ingestMinText
	}
	if ingestKeepBlank {
		opts.SkipImageOnlyPages = false
	}
	if ingestLanguage != "" {
		opts.OCRLanguage = ingestLanguage
	}

	res, err := s.pipeline.Ingest(ctx, rag.IngestRequest{
		Content:  content,
		ChatID:   chatID,
		FileName: filepath.Base(args[0]),
		Options:  toExtractOptions(opts),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", rag.Describe(err), err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "document %s\n", res.DocumentID)
	fmt.Fprintf(out, "namespace %s\n", res.Namespace)
	fmt.Fprintf(out, "pages %d, chunks %d\n", res.PageCount, res.ChunkCount)
	if !res.Visible {
		fmt.Fprintln(out, "warning: index write not confirmed yet")
	}
	return nil
}
