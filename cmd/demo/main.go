package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"ledgerkernel"
)

func main() {
	fmt.Println("Accounting Kernel Demo")
	fmt.Println("======================")

	dbFile := "demo_kernel.db"
	os.Remove(dbFile)

	storage, err := ledger.OpenStorage(dbFile)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer storage.Close()
	defer os.Remove(dbFile)

	fmt.Println("\nStep 1: Seeding chart of accounts")
	accounts := ledger.NewAccountBook(storage)
	for _, a := range ledger.BuildExampleAccounts() {
		if err := accounts.Save(a); err != nil {
			log.Fatalf("seed account %s: %v", a.ID, err)
		}
	}
	fmt.Println("accounts seeded")

	fmt.Println("\nStep 2: Compiling the policy pack")
	pack, err := ledger.BuildExamplePack()
	if err != nil {
		log.Fatalf("compile policy pack: %v", err)
	}
	fmt.Printf("pack %s@%s compiled, checksum %s\n", pack.ConfigID, pack.Version, pack.Checksum[:12])

	schemas := ledger.BuildExampleSchemaRegistry()
	dimensionSchema := ledger.BuildExampleDimensionSchema()
	currencyReg := ledger.DefaultCurrencyRegistry()
	rounding := ledger.RoundingPolicy{Version: "round-2026.1", ToleranceMinorUnit: 1}

	audit := ledger.NewAuditLog(storage)
	events := ledger.NewEventStore(storage, schemas, nil)
	periods := ledger.NewPeriodService(storage)
	snapshots := ledger.NewReferenceSnapshotService(ledger.ExampleCOAVersion, dimensionSchema, currencyReg, rounding, pack)
	selector := ledger.NewPolicySelector(pack)
	meaning := ledger.NewMeaningBuilder(dimensionSchema, currencyReg)
	sequences := ledger.NewSequenceAllocator(storage)
	journal := ledger.NewJournalWriter(storage, periods, sequences, audit, pack)
	outcomes := ledger.NewOutcomeRecorder(storage)
	coordinator := ledger.NewInterpretationCoordinator(storage, events, audit, periods, snapshots, selector, meaning, journal, outcomes, pack.Capabilities)

	fmt.Println("\nStep 3: Opening the fiscal period")
	today := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	period := &ledger.FiscalPeriod{
		ID:                "period-2026-07",
		PeriodCode:        "2026-07",
		StartDate:         "2026-07-01",
		EndDate:           "2026-07-31",
		AllowsAdjustments: true,
	}
	if err := periods.Open(period); err != nil {
		log.Fatalf("open period: %v", err)
	}
	fmt.Printf("period %s open\n", period.PeriodCode)

	fmt.Println("\nStep 4: Ingesting an AP invoice")
	invoicePayload, _ := json.Marshal(map[string]interface{}{
		"amount":     "1500.00",
		"vendor_id":  "vendor-acme",
		"department": "OPS",
	})
	invoiceResult, err := coordinator.InterpretAndPost(ledger.Envelope{
		EventID:       "evt-invoice-0001",
		EventType:     "ap.invoice.received",
		SchemaVersion: 1,
		OccurredAt:    today,
		EffectiveDate: today,
		ActorID:       "demo_user",
		Producer:      "demo",
		Payload:       json.RawMessage(invoicePayload),
	})
	if err != nil {
		log.Fatalf("interpret invoice: %v", err)
	}
	fmt.Printf("invoice outcome: %s, journal entries %v\n", invoiceResult.Status, invoiceResult.JournalEntryIDs)

	fmt.Println("\nStep 5: Re-submitting the same invoice (idempotency check)")
	dupResult, err := coordinator.InterpretAndPost(ledger.Envelope{
		EventID:       "evt-invoice-0001",
		EventType:     "ap.invoice.received",
		SchemaVersion: 1,
		OccurredAt:    today,
		EffectiveDate: today,
		ActorID:       "demo_user",
		Producer:      "demo",
		Payload:       json.RawMessage(invoicePayload),
	})
	if err != nil {
		log.Fatalf("resubmit invoice: %v", err)
	}
	fmt.Printf("resubmit outcome: %s (expected ALREADY_POSTED)\n", dupResult.Status)

	fmt.Println("\nStep 6: Disbursing payment against the invoice")
	paymentPayload, _ := json.Marshal(map[string]interface{}{
		"amount":    "1500.00",
		"vendor_id": "vendor-acme",
	})
	paymentResult, err := coordinator.InterpretAndPost(ledger.Envelope{
		EventID:       "evt-payment-0001",
		EventType:     "ap.payment.disbursed",
		SchemaVersion: 1,
		OccurredAt:    today,
		EffectiveDate: today,
		ActorID:       "demo_user",
		Producer:      "demo",
		Payload:       json.RawMessage(paymentPayload),
	})
	if err != nil {
		log.Fatalf("interpret payment: %v", err)
	}
	fmt.Printf("payment outcome: %s, journal entries %v\n", paymentResult.Status, paymentResult.JournalEntryIDs)

	fmt.Println("\nStep 7: Trial balance")
	selectors := ledger.NewSelectors(storage)
	typeIndex, err := accounts.TypeIndex()
	if err != nil {
		log.Fatalf("build account type index: %v", err)
	}
	balances, err := selectors.TrialBalance("2026-07-30", typeIndex)
	if err != nil {
		log.Fatalf("trial balance: %v", err)
	}
	for _, b := range balances {
		fmt.Printf("   %-12s %-4s %10.2f\n", b.AccountID, b.Currency, float64(b.Minor)/100)
	}

	fmt.Println("\nStep 8: Audit trail for the disbursement")
	for _, entryID := range paymentResult.JournalEntryIDs {
		trail, err := selectors.AuditTrailFor("JournalEntry", entryID)
		if err != nil {
			log.Fatalf("audit trail: %v", err)
		}
		for _, e := range trail {
			fmt.Printf("   seq %d: %s %s by %s\n", e.Seq, e.EntityType, e.Action, e.ActorID)
		}
	}

	fmt.Println("\nDemo complete.")
}
