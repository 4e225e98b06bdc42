package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rhoci/rhoci/internal/api"
)

var statusFlags struct {
	address string
	job     string
	limit   int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion progress and the top failing tests of a running agent",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.address, "address", "localhost:50051", "Query API address")
	f.StringVar(&statusFlags.job, "job", "", "Restrict the failing tests ranking to one job")
	f.IntVar(&statusFlags.limit, "limit", 10, "Number of failing tests to show")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	conn, err := grpc.NewClient(statusFlags.address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", statusFlags.address, err)
	}
	defer conn.Close()
	client := api.NewQueryClient(conn)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	ingest, err := client.IngestStatus(ctx, &api.IngestStatusRequest{})
	if err != nil {
		return fmt.Errorf("ingest status: %w", err)
	}
	top, err := client.TopFailingTests(ctx, &api.TopFailingTestsRequest{Job: statusFlags.job, Limit: statusFlags.limit})
	if err != nil {
		return fmt.Errorf("top failing tests: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "builds: %d pending, %d complete, %d abandoned\n", ingest.Pending, ingest.Complete, ingest.Abandoned)
	if len(top.Tests) == 0 {
		fmt.Fprintln(out, "no failing tests recorded")
		return nil
	}
	fmt.Fprintln(out, "top failing tests:")
	for _, t := range top.Tests {
		fmt.Fprintf(out, "  %4d/%-4d %s.%s\n", t.Failures, t.Failures+t.Successes, t.ClassName, t.Name)
	}
	return nil
}
