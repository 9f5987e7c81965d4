package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/importer"
	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/sheet"
)

var (
	importFile    string
	importCompany string
	importName    string
	importTags    []string
	importSession string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := sheet.Read(importFile)
		if err != nil {
			return eris.Wrap(err, "read contacts file")
		}

		env, err := initEnv(ctx, "import", importSession)
		if err != nil {
			return err
		}
		defer env.Close()

		name := importName
		if name == "" {
			name = importFile
		}
		summary, err := env.Importer.Run(ctx, importer.Job{
			CompanyID: importCompany,
			Request: model.ImportRequest{
				Contacts:   records,
				ImportName: name,
				GlobalTags: model.TagList(importTags),
			},
		})
		if err != nil {
			return eris.Wrap(err, "import contacts")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.String("import_id", summary.JobID),
			zap.Int("successful", summary.Successful),
			zap.Int("updated", summary.Updated),
			zap.Int("failed", summary.Failed),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importCompany, "company", "", "company id that owns the contacts (required)")
	importCmd.Flags().StringVar(&importName, "name", "", "import name recorded on contacts (default: file path)")
	importCmd.Flags().StringSliceVar(&importTags, "tags", nil, "tags applied to every contact")
	importCmd.Flags().StringVar(&importSession, "session", "", "directory session (default: company's default session)")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(importCmd)
}
