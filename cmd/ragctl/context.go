package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pdfquiz/internal/extract"
	"pdfquiz/internal/model"
	"pdfquiz/internal/rag"
)

var contextTopK int

func init() {
	contextCmd.Flags().IntVar(&contextTopK, "top-k", 0, "number of passages (default from config)")
}

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Print the context retrieved for a query",
	Long: `Retrieve and assemble context from the conversation's namespace.

Examples:
  ragctl context "what is osmosis" --chat 42
  ragctl context "summarize page 3" --chat 42 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

type contextOutput struct {
	Context          string `json:"context"`
	PageNotAvailable bool   `json:"page_not_available"`
	Page             int    `json:"page,omitempty"`
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	topK := contextTopK
	if topK <= 0 {
		topK = s.cfg.Retrieval.DefaultTopK
	}

	var result contextOutput
	text, err := s.pipeline.GetContext(ctx, args[0], chatID, topK)
	var pageErr *rag.PageNotAvailableError
	switch {
	case errors.As(err, &pageErr):
		result.PageNotAvailable = true
		result.Page = pageErr.Page
	case err != nil:
		return err
	default:
		result.Context = text
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	switch {
	case result.PageNotAvailable:
		fmt.Fprintf(out, "page %d is not available in this conversation\n", result.Page)
	case result.Context == "":
		fmt.Fprintln(out, "no relevant context found")
	default:
		fmt.Fprintln(out, result.Context)
	}
	return nil
}

func toExtractOptions(o model.IngestOptions) extract.Options {
	return extract.Options{
		MinTextLength:      o.MinTextLength,
		OCRLanguage:        o.OCRLanguage,
		EnableOCR:          o.EnableOCR,
		SkipImageOnlyPages: o.SkipImageOnlyPages,
	}
}
