package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	redisclient "github.com/joeott/legal-doc-processor-sub003/internal/infra/redis"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/postgres"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/orchestrator"
)

var contentType string

var ingestCmd = &cobra.Command{
	Use:   "ingest [bucket] [key]",
	Short: "Register a stored document and schedule it for processing",
	Args:  cobra.ExactArgs(2),
	Run:   runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&contentType, "content-type", "application/pdf", "MIME type of the source document")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) {
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

	// Intake only touches the document store and the task queue, so a
	// partially wired orchestrator is enough here.
	orch := orchestrator.New(orchestrator.Deps{
		Documents: postgres.NewDocumentRepo(db),
		Queue:     redisclient.NewTaskQueue(redisClient),
	})

	source := domain.SourceRef{Bucket: args[0], Key: args[1]}
	docID, err := orch.Intake(ctx, source, contentType)
	if err != nil {
		slog.Error("Failed to ingest document", "error", err)
		os.Exit(1)
	}

	fmt.Println(docID)
}
