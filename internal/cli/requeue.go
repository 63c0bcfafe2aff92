package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
	redisclient "github.com/joeott/legal-doc-processor-sub003/internal/infra/redis"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/postgres"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue [document_id]",
	Short: "Reset failed documents and schedule them from their failed stage",
	Long:  `Requeue resets the failed stage record (attempt count and error detail) and re-enqueues the stage with a fresh retry budget. Without an argument every failed document is requeued.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	initLogger(cfg.Logging)

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	redisClient, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	docs := postgres.NewDocumentRepo(db)
	taskq := redisclient.NewTaskQueue(redisClient)

	var failed []*domain.Document
	if len(args) == 1 {
		docID, err := domain.ParseDocumentID(args[0])
		if err != nil {
			fmt.Printf("Invalid document id: %v\n", err)
			os.Exit(1)
		}
		doc, err := docs.Load(ctx, docID)
		if err != nil {
			slog.Error("Failed to load document", "error", err)
			os.Exit(1)
		}
		if doc.Status != domain.DocumentStatusFailed {
			fmt.Printf("Document %s is %s, not failed\n", docID, doc.Status)
			os.Exit(1)
		}
		failed = append(failed, doc)
	} else {
		failed, err = docs.ListByStatus(ctx, domain.DocumentStatusFailed, 0)
		if err != nil {
			slog.Error("Failed to list failed documents", "error", err)
			os.Exit(1)
		}
	}

	for _, doc := range failed {
		if err := requeueDocument(ctx, db, taskq, doc); err != nil {
			slog.Error("Failed to requeue document", "document_id", doc.ID, "error", err)
			continue
		}
		fmt.Printf("Requeued %s at stage %s\n", doc.ID, doc.CurrentStage)
	}
	fmt.Printf("Requeued %d document(s)\n", len(failed))
}

func requeueDocument(ctx context.Context, db *postgres.DB, taskq queue.Queue, doc *domain.Document) error {
	// Reset the failed stage record so the retry budget starts over.
	_, err := db.ExecContext(ctx,
		`UPDATE stage_records SET status = $1, attempt_count = 0, error_detail = ''
		 WHERE document_id = $2 AND stage = $3`,
		string(domain.StageStatusPending), doc.ID.String(), string(doc.CurrentStage))
	if err != nil {
		return fmt.Errorf("failed to reset stage record: %w", err)
	}

	docs := postgres.NewDocumentRepo(db)
	if err := docs.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, "", ""); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	return taskq.Enqueue(ctx, queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: doc.ID.String(),
		Stage:      string(doc.CurrentStage),
		EnqueuedAt: time.Now(),
	}, 0)
}
