package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/medledger/medledger"
	"github.com/medledger/medledger/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; empty runs in-memory")
	dataPath := flag.String("data", "", "data directory; empty runs in-memory")
	flag.Parse()

	cfg := medledger.Config{}
	if *configPath != "" {
		var err error
		cfg, err = medledger.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config: %s", err)
		}
	}
	if *dataPath != "" {
		cfg.Paths = []string{*dataPath}
	}

	vault, err := medledger.New(cfg)
	if err != nil {
		log.Fatalf("initializing vault: %s", err)
	}
	defer vault.Close()

	ctx := context.Background()
	hospital := session.Actor{ID: "HOSP001", Type: "custodian"}
	patient := session.Actor{ID: "P001", Type: "patient"}
	insurer := session.Actor{ID: "INS001", Type: "insurer"}

	// A custodian uploads a record for the patient; the insurer's
	// consent request is filed in the same step.
	rec, err := vault.UploadRecord(ctx, hospital, medledger.UploadParams{
		SubjectID:     patient.ID,
		Type:          "Blood Test",
		Title:         "CBC Results",
		CustodianID:   hospital.ID,
		Content:       []byte(`{"hemoglobin": 14.2, "wbc": 6.1}`),
		RequesterID:   insurer.ID,
		RequesterType: insurer.Type,
	})
	if err != nil {
		log.Fatalf("uploading record: %s", err)
	}
	fmt.Printf("uploaded record %s\n  address: %s\n  anchored hash: %s\n", rec.ID, rec.Address, rec.ContentHash)

	// The patient approves.
	requests := vault.ListConsentRequests(ctx, patient.ID)
	if len(requests) == 0 {
		log.Fatal("expected a pending consent request")
	}
	req, err := vault.ResolveConsent(ctx, patient, requests[0].ID, medledger.DecisionApprove)
	if err != nil {
		log.Fatalf("approving consent: %s", err)
	}
	fmt.Printf("consent request %s approved\n", req.ID)

	// The insurer verifies and reads the record.
	result, err := vault.VerifyRecord(ctx, insurer, rec.ID)
	if err != nil {
		log.Fatalf("verifying record: %s", err)
	}
	fmt.Printf("verification: valid=%t consent=%t blockRef=%s\n", result.IsValid, result.ConsentGranted, result.BlockRef)

	plaintext, err := vault.OpenRecord(ctx, insurer, rec.ID)
	if err != nil {
		log.Fatalf("opening record: %s", err)
	}
	fmt.Printf("decrypted content: %s\n", plaintext)

	// Everything above is on the trail.
	fmt.Println("audit trail (most recent first):")
	for _, entry := range vault.GetAuditTrail(ctx, medledger.AuditFilter{SubjectID: patient.ID}) {
		fmt.Printf("  %-8s by %s (%s) verified=%t\n", entry.Action, entry.AccessorID, entry.AccessorType, entry.Verified)
	}
}
