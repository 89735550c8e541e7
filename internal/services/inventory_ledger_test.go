package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

type ledgerFixture struct {
	store  *memoryStore
	audit  *recordingAudit
	ledger InventoryLedger
	clock  *time.Time
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := newMemoryStore()
	audit := &recordingAudit{}
	now := fixtureNow
	seq := 0
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{
		RawMaterials: materialRepo{store},
		Audit:        audit,
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("led_%03d", seq)
		},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new inventory ledger: %v", err)
	}
	return &ledgerFixture{store: store, audit: audit, ledger: ledger, clock: &now}
}

func (f *ledgerFixture) seedMaterial(id string, quantity, minQuantity int64) {
	f.store.materials[id] = domain.RawMaterial{
		ID:           id,
		Name:         "Material " + id,
		Unit:         "sheets",
		Quantity:     quantity,
		MinQuantity:  minQuantity,
		Availability: domain.AvailabilityFor(quantity, minQuantity),
	}
}

func TestInventoryLedgerRecordUsageCrossesIntoLowStock(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 100, 20)

	result, err := fx.ledger.RecordUsage(context.Background(), RecordUsageCommand{
		RawMaterialID: "rm-1",
		QuantityUsed:  85,
		Reason:        "Batch 42 printing",
		Actor:         "staff-1",
	})
	if err != nil {
		t.Fatalf("record usage: %v", err)
	}
	if result.Quantity != 15 || result.Availability != domain.AvailabilityLowStock {
		t.Fatalf("unexpected result %+v", result)
	}

	entries := fx.store.ledger["rm-1"]
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.PreviousQuantity != 100 || entry.Delta != -85 || entry.NewQuantity != 15 || entry.Kind != domain.LedgerEntryKindUsage {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
	if entry.Category != "production" || entry.Actor != "staff-1" {
		t.Fatalf("expected default category and actor, got %+v", entry)
	}
	if len(fx.store.usage) != 1 || fx.store.usage[0].LedgerEntryID != result.LedgerEntryID || fx.store.usage[0].QuantityUsed != 85 {
		t.Fatalf("unexpected usage records %+v", fx.store.usage)
	}
	if actions := fx.audit.actions(); len(actions) != 1 || actions[0] != "raw_material.usage_recorded" {
		t.Fatalf("unexpected audit events %v", actions)
	}
}

func TestInventoryLedgerRejectsOverdrawBeforeWriting(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 10, 2)

	_, err := fx.ledger.RecordUsage(context.Background(), RecordUsageCommand{
		RawMaterialID: "rm-1",
		QuantityUsed:  11,
		Reason:        "overdraw",
		Actor:         "staff-1",
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if fx.store.applyCalls != 0 || len(fx.store.ledger["rm-1"]) != 0 {
		t.Fatalf("expected no write, got %d apply calls", fx.store.applyCalls)
	}
	if fx.store.materials["rm-1"].Quantity != 10 {
		t.Fatalf("quantity must be unchanged")
	}
}

func TestInventoryLedgerRecordUsageValidation(t *testing.T) {
	cases := []struct {
		name   string
		cmd    RecordUsageCommand
		expect error
	}{
		{name: "zero quantity", cmd: RecordUsageCommand{RawMaterialID: "rm-1", QuantityUsed: 0, Reason: "r", Actor: "a"}, expect: ErrInvalidQuantity},
		{name: "negative quantity", cmd: RecordUsageCommand{RawMaterialID: "rm-1", QuantityUsed: -3, Reason: "r", Actor: "a"}, expect: ErrInvalidQuantity},
		{name: "missing material", cmd: RecordUsageCommand{QuantityUsed: 1, Reason: "r", Actor: "a"}, expect: ErrValidation},
		{name: "markup-only reason", cmd: RecordUsageCommand{RawMaterialID: "rm-1", QuantityUsed: 1, Reason: "<b></b>", Actor: "a"}, expect: ErrValidation},
		{name: "no actor", cmd: RecordUsageCommand{RawMaterialID: "rm-1", QuantityUsed: 1, Reason: "r"}, expect: ErrUnauthorized},
		{name: "unknown material", cmd: RecordUsageCommand{RawMaterialID: "rm-9", QuantityUsed: 1, Reason: "r", Actor: "a"}, expect: ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newLedgerFixture(t)
			fx.seedMaterial("rm-1", 10, 2)
			if _, err := fx.ledger.RecordUsage(context.Background(), tc.cmd); !errors.Is(err, tc.expect) {
				t.Fatalf("expected %v, got %v", tc.expect, err)
			}
			if len(fx.store.ledger["rm-1"]) != 0 {
				t.Fatalf("rejected usage must not append to the ledger")
			}
		})
	}
}

func TestInventoryLedgerAvailabilityBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		start  int64
		used   int64
		expect domain.Availability
	}{
		{name: "above minimum", start: 50, used: 29, expect: domain.AvailabilityAvailable},
		{name: "at minimum", start: 50, used: 30, expect: domain.AvailabilityLowStock},
		{name: "one left", start: 50, used: 49, expect: domain.AvailabilityLowStock},
		{name: "depleted", start: 50, used: 50, expect: domain.AvailabilityOutOfStock},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newLedgerFixture(t)
			fx.seedMaterial("rm-1", tc.start, 20)
			result, err := fx.ledger.RecordUsage(context.Background(), RecordUsageCommand{
				RawMaterialID: "rm-1",
				QuantityUsed:  tc.used,
				Reason:        "run",
				Actor:         "staff-1",
			})
			if err != nil {
				t.Fatalf("record usage: %v", err)
			}
			if result.Availability != tc.expect {
				t.Fatalf("expected %s, got %s", tc.expect, result.Availability)
			}
		})
	}
}

func TestInventoryLedgerRestock(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 0, 20)

	result, err := fx.ledger.Restock(context.Background(), RestockCommand{RawMaterialID: "rm-1", Quantity: 200, Actor: "staff-1"})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if result.Quantity != 200 || result.Availability != domain.AvailabilityAvailable {
		t.Fatalf("unexpected result %+v", result)
	}
	entry := fx.store.ledger["rm-1"][0]
	if entry.Delta != 200 || entry.PreviousQuantity != 0 || entry.Reason != "restock" || entry.Kind != domain.LedgerEntryKindRestock {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(fx.store.usage) != 0 {
		t.Fatalf("restock must not write usage records")
	}

	if _, err := fx.ledger.Restock(context.Background(), RestockCommand{RawMaterialID: "rm-1", Quantity: 0, Actor: "staff-1"}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestInventoryLedgerSanitizesText(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 10, 2)

	_, err := fx.ledger.RecordUsage(context.Background(), RecordUsageCommand{
		RawMaterialID: "rm-1",
		QuantityUsed:  1,
		Reason:        `<script>alert(1)</script>Trim & cut`,
		Category:      "<i>sampling</i>",
		Note:          strings.Repeat("n", 1500),
		Actor:         "staff-1",
	})
	if err != nil {
		t.Fatalf("record usage: %v", err)
	}
	entry := fx.store.ledger["rm-1"][0]
	if entry.Reason != "Trim & cut" {
		t.Fatalf("unexpected reason %q", entry.Reason)
	}
	if entry.Category != "sampling" {
		t.Fatalf("unexpected category %q", entry.Category)
	}
	if len(entry.Note) != 1000 {
		t.Fatalf("expected note clipped to 1000 runes, got %d", len(entry.Note))
	}
}

func TestInventoryLedgerReconcile(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 100, 20)
	ctx := context.Background()

	for _, used := range []int64{10, 5} {
		if _, err := fx.ledger.RecordUsage(ctx, RecordUsageCommand{RawMaterialID: "rm-1", QuantityUsed: used, Reason: "run", Actor: "staff-1"}); err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}
	if _, err := fx.ledger.Restock(ctx, RestockCommand{RawMaterialID: "rm-1", Quantity: 40, Actor: "staff-1"}); err != nil {
		t.Fatalf("restock: %v", err)
	}

	result, err := fx.ledger.Reconcile(ctx, "rm-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Consistent || result.Quantity != 125 || result.OpeningBalance != 100 || result.LedgerSum != 25 || result.Entries != 3 {
		t.Fatalf("unexpected reconcile result %+v", result)
	}

	material := fx.store.materials["rm-1"]
	material.Quantity = 130
	fx.store.materials["rm-1"] = material
	result, err = fx.ledger.Reconcile(ctx, "rm-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Consistent || result.Expected != 125 {
		t.Fatalf("expected drift detected, got %+v", result)
	}
}

func TestInventoryLedgerListLedgerNewestFirst(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 100, 20)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		*fx.clock = fixtureNow.Add(time.Duration(i) * time.Minute)
		if _, err := fx.ledger.RecordUsage(ctx, RecordUsageCommand{RawMaterialID: "rm-1", QuantityUsed: int64(i + 1), Reason: "run", Actor: "staff-1"}); err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}

	page, err := fx.ledger.ListLedger(ctx, "rm-1", domain.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Delta != -3 || page.Items[1].Delta != -2 || page.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	next, err := fx.ledger.ListLedger(ctx, "rm-1", domain.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].Delta != -1 || next.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", next)
	}
}

func TestInventoryLedgerListLedgerInvalidTokenIsValidation(t *testing.T) {
	fx := newLedgerFixture(t)
	fx.seedMaterial("rm-1", 100, 20)

	_, err := fx.ledger.ListLedger(context.Background(), "rm-1", domain.Pagination{PageSize: 2, PageToken: "not-a-cursor"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("invalid token must not surface as invalid quantity: %v", err)
	}
}
