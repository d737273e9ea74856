// Package client is the Go SDK for the agriledger provenance service.
//
// # Opening a batch
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	created, err := c.CreateBatch(ctx, "SEED_CREATED", client.Fields{
//	    "batchId": "B1",
//	    "variety": "JS-9560",
//	})
//
// Omit batchId to have the server generate one.
//
// # Recording a stage
//
//	res, err := c.Submit(ctx, "B1", "HARVEST_SOLD", client.Fields{
//	    "farmerId": "F1",
//	    "quantity": 50,
//	})
//
// A refused submission returns an *APIError. Use errors.Is with ErrInvalid,
// ErrOutOfOrder, ErrExists or ErrNotFound to branch on the cause:
//
//	if errors.Is(err, client.ErrOutOfOrder) {
//	    // another stakeholder recorded the stage first
//	}
//
// # Tracking and verification
//
//	track, _ := c.Track(ctx, "B1")
//	fmt.Println(track.Stage, track.LedgerIntegrity)
//
//	report, _ := c.Verify(ctx)
//	if report.Status != client.StatusVerified {
//	    fmt.Println("first tampered block:", report.FirstBadIndex)
//	}
package client
