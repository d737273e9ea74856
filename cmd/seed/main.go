// Command seed records realistic demo batch journeys on a running agriledger server.
//
// Running twice is safe: batches that already exist are skipped, and a
// partially seeded batch resumes from its current stage.
//
// Usage:
//
//	go run ./cmd/seed
//	AGRILEDGER_URL=http://localhost:8080 go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmerrifield20/agriledger/pkg/client"
)

const defaultURL = "http://localhost:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := os.Getenv("AGRILEDGER_URL")
	if base == "" {
		base = defaultURL
	}
	c, err := client.New(base)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ov, err := c.Overview(ctx)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	fmt.Printf("connected to %s (%d blocks)\n", base, ov.Blocks)

	for _, j := range journeys {
		n, err := seedJourney(ctx, c, j)
		if err != nil {
			return fmt.Errorf("seed %s: %w", j.batchID, err)
		}
		fmt.Printf("  %-8s %d stage(s) recorded\n", j.batchID, n)
	}

	report, err := c.Verify(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nseed complete: %d blocks, ledger %s\n", report.Blocks, report.Status)
	return nil
}

// ── Journeys ─────────────────────────────────────────────────────────────────

type step struct {
	action string
	fields client.Fields
}

type journey struct {
	batchID string
	steps   []step // steps[0] opens the batch
}

var journeys = []journey{
	{
		batchID: "SOY-0001",
		steps: []step{
			{"SEED_CREATED", client.Fields{"variety": "JS-9560", "genetics": "non-GMO"}},
			{"HARVEST_SOLD", client.Fields{"farmerId": "FARMER-ujjain-017", "crop": "soybean", "quantity": 1200, "harvestDate": "2024-10-02", "oilContent": 18.4}},
			{"AGGREGATED", client.Fields{"lotId": "LOT-MP-2024-311", "grade": "A"}},
			{"SHIPMENT_CREATED", client.Fields{"trackingId": "TRK-88213", "origin": "Ujjain", "destination": "Indore"}},
			{"PROCESSED", client.Fields{"processorId": "PROC-indore-02", "processingDate": "2024-10-19", "details": "solvent extraction, refined"}},
			{"RETAIL_READY", client.Fields{"retailerId": "RET-bhopal-44", "price": 149.5}},
			{"CONSUMED", client.Fields{"consumerId": "CUST-90211", "purchaseDate": "2024-11-03"}},
		},
	},
	{
		batchID: "SOY-0002",
		steps: []step{
			{"SEED_CREATED", client.Fields{"variety": "JS-335"}},
			{"HARVEST_SOLD", client.Fields{"farmerId": "FARMER-dewas-004", "crop": "soybean", "quantity": 860, "harvestDate": "2024-10-05"}},
			{"AGGREGATED", client.Fields{"lotId": "LOT-MP-2024-311", "grade": "B"}},
		},
	},
	{
		// Sold directly by the farmer with no seed record.
		batchID: "MUS-0001",
		steps: []step{
			{"HARVEST_SOLD", client.Fields{"farmerId": "FARMER-alwar-112", "crop": "mustard", "quantity": 540, "oilContent": 39.2}},
			{"AGGREGATED", client.Fields{"lotId": "LOT-RJ-2024-020", "memberBatchIds": []string{"MUS-0001"}}},
		},
	},
}

// seedJourney records the steps of j the server does not have yet and returns
// how many it recorded.
func seedJourney(ctx context.Context, c *client.Client, j journey) (int, error) {
	have, err := recordedSteps(ctx, c, j.batchID)
	if err != nil {
		return 0, err
	}

	recorded := 0
	if have == 0 {
		open := j.steps[0]
		fields := client.Fields{"batchId": j.batchID}
		for k, v := range open.fields {
			fields[k] = v
		}
		if _, err := c.CreateBatch(ctx, open.action, fields); err != nil {
			return 0, fmt.Errorf("%s: %w", open.action, err)
		}
		have, recorded = 1, 1
	}

	for _, s := range j.steps[min(have, len(j.steps)):] {
		if _, err := c.Submit(ctx, j.batchID, s.action, s.fields); err != nil {
			return recorded, fmt.Errorf("%s: %w", s.action, err)
		}
		recorded++
	}
	return recorded, nil
}

// recordedSteps returns the number of blocks the server holds for batchID.
func recordedSteps(ctx context.Context, c *client.Client, batchID string) (int, error) {
	track, err := c.Track(ctx, batchID)
	if errors.Is(err, client.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(track.History), nil
}
