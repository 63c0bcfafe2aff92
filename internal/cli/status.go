package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status [document_id]",
	Short: "Show pipeline status for all documents, or stage detail for one",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if len(args) == 1 {
		showDocument(ctx, db, args[0])
		return
	}

	rows, err := db.QueryContext(ctx, "SELECT id, status, current_stage, updated_at FROM documents ORDER BY updated_at DESC LIMIT 50")
	if err != nil {
		slog.Error("Failed to query documents", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tSTATUS\tSTAGE\tUPDATED")

	for rows.Next() {
		var id, status, stage, updatedAt string
		if err := rows.Scan(&id, &status, &stage, &updatedAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, status, stage, updatedAt)
	}
	_ = w.Flush()
}

func showDocument(ctx context.Context, db *postgres.DB, rawID string) {
	docID, err := domain.ParseDocumentID(rawID)
	if err != nil {
		fmt.Printf("Invalid document id: %v\n", err)
		os.Exit(1)
	}

	repo := postgres.NewStageRepo(db)
	records, err := repo.GetAll(ctx, docID)
	if err != nil {
		slog.Error("Failed to query stage records", "error", err)
		os.Exit(1)
	}
	byStage := make(map[domain.Stage]*domain.StageRecord, len(records))
	for _, rec := range records {
		byStage[rec.Stage] = rec
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STAGE\tSTATUS\tSOURCE\tATTEMPTS\tERROR")

	for _, stage := range domain.Stages() {
		rec, ok := byStage[stage]
		if !ok {
			_, _ = fmt.Fprintf(w, "%s\tpending\t\t0\t\n", stage)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			stage, rec.Status, rec.Source, rec.AttemptCount, rec.ErrorDetail)
	}
	_ = w.Flush()
}
