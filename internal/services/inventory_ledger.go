package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 200
	maxLedgerReasonLength = 120
	maxLedgerNoteLength   = 1000
	defaultUsageCategory  = "production"
	defaultRestockReason  = "restock"
)

// InventoryLedgerDeps wires the raw material ledger.
type InventoryLedgerDeps struct {
	RawMaterials repositories.RawMaterialRepository
	Audit        AuditSink
	IDGenerator  IDGenerator
	Clock        func() time.Time
	Logger       Logger
}

type inventoryLedger struct {
	materials repositories.RawMaterialRepository
	audit     AuditSink
	newID     IDGenerator
	now       func() time.Time
	logger    Logger
	policy    *bluemonday.Policy
}

// NewInventoryLedger constructs the InventoryLedger.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.RawMaterials == nil {
		return nil, errors.New("inventory ledger: raw material repository is required")
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryLedger{
		materials: deps.RawMaterials,
		audit:     deps.Audit,
		newID:     newID,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}, nil
}

func (l *inventoryLedger) RecordUsage(ctx context.Context, cmd RecordUsageCommand) (LedgerMutationResult, error) {
	materialID := strings.TrimSpace(cmd.RawMaterialID)
	if materialID == "" {
		return LedgerMutationResult{}, fmt.Errorf("%w: rawMaterialId is required", ErrValidation)
	}
	if cmd.QuantityUsed <= 0 {
		return LedgerMutationResult{}, fmt.Errorf("%w: quantityUsed must be greater than zero", ErrInvalidQuantity)
	}
	reason := l.sanitize(cmd.Reason, maxLedgerReasonLength)
	if reason == "" {
		return LedgerMutationResult{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		return LedgerMutationResult{}, ErrUnauthorized
	}
	category := l.sanitize(cmd.Category, maxLedgerReasonLength)
	if category == "" {
		category = defaultUsageCategory
	}
	note := l.sanitize(cmd.Note, maxLedgerNoteLength)

	// Reject before any write; the repository re-checks inside its transaction.
	material, err := l.materials.FindByID(ctx, materialID)
	if err != nil {
		return LedgerMutationResult{}, translateRepositoryError("raw_materials.find", err)
	}
	if cmd.QuantityUsed > material.Quantity {
		return LedgerMutationResult{}, fmt.Errorf("%w: %s has %d %s, requested %d", ErrInsufficientStock, material.ID, material.Quantity, material.Unit, cmd.QuantityUsed)
	}

	now := l.now()
	entry := domain.LedgerEntry{
		ID:            l.newID(),
		RawMaterialID: materialID,
		Kind:          domain.LedgerEntryKindUsage,
		Delta:         -cmd.QuantityUsed,
		Reason:        reason,
		Category:      category,
		Note:          note,
		Actor:         actor,
		CreatedAt:     now,
	}
	usage := &domain.UsageRecord{
		ID:            l.newID(),
		RawMaterialID: materialID,
		QuantityUsed:  cmd.QuantityUsed,
		Reason:        reason,
		Category:      category,
		Note:          note,
		Actor:         actor,
		LedgerEntryID: entry.ID,
		CreatedAt:     now,
	}
	return l.apply(ctx, repositories.RawMaterialMutation{RawMaterialID: materialID, Entry: entry, Usage: usage, Now: now}, "raw_material.usage_recorded")
}

func (l *inventoryLedger) Restock(ctx context.Context, cmd RestockCommand) (LedgerMutationResult, error) {
	materialID := strings.TrimSpace(cmd.RawMaterialID)
	if materialID == "" {
		return LedgerMutationResult{}, fmt.Errorf("%w: rawMaterialId is required", ErrValidation)
	}
	if cmd.Quantity <= 0 {
		return LedgerMutationResult{}, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidQuantity)
	}
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		return LedgerMutationResult{}, ErrUnauthorized
	}
	reason := l.sanitize(cmd.Reason, maxLedgerReasonLength)
	if reason == "" {
		reason = defaultRestockReason
	}

	now := l.now()
	entry := domain.LedgerEntry{
		ID:            l.newID(),
		RawMaterialID: materialID,
		Kind:          domain.LedgerEntryKindRestock,
		Delta:         cmd.Quantity,
		Reason:        reason,
		Note:          l.sanitize(cmd.Note, maxLedgerNoteLength),
		Actor:         actor,
		CreatedAt:     now,
	}
	return l.apply(ctx, repositories.RawMaterialMutation{RawMaterialID: materialID, Entry: entry, Now: now}, "raw_material.restocked")
}

func (l *inventoryLedger) apply(ctx context.Context, mutation repositories.RawMaterialMutation, action string) (LedgerMutationResult, error) {
	result, err := l.materials.ApplyMutation(ctx, mutation)
	if err != nil {
		l.logger(ctx, "inventory.ledger.apply_failed", map[string]any{
			"rawMaterialId": mutation.RawMaterialID,
			"delta":         mutation.Entry.Delta,
			"error":         err.Error(),
		})
		return LedgerMutationResult{}, translateRepositoryError("raw_materials.apply", err)
	}

	l.logger(ctx, "inventory.ledger.applied", map[string]any{
		"rawMaterialId": result.Material.ID,
		"delta":         result.Entry.Delta,
		"quantity":      result.Material.Quantity,
		"availability":  string(result.Material.Availability),
	})
	if l.audit != nil {
		l.audit.Emit(ctx, domain.AuditEvent{
			Action:    action,
			ActorID:   result.Entry.Actor,
			TargetRef: "/raw-materials/" + result.Material.ID,
			Metadata: map[string]any{
				"ledgerEntryId":    result.Entry.ID,
				"previousQuantity": result.Entry.PreviousQuantity,
				"delta":            result.Entry.Delta,
				"newQuantity":      result.Entry.NewQuantity,
				"reason":           result.Entry.Reason,
			},
			OccurredAt: result.Entry.CreatedAt,
		})
	}

	return LedgerMutationResult{
		RawMaterialID: result.Material.ID,
		Quantity:      result.Material.Quantity,
		Availability:  result.Material.Availability,
		LedgerEntryID: result.Entry.ID,
		Entry:         result.Entry,
	}, nil
}

func (l *inventoryLedger) ListLedger(ctx context.Context, rawMaterialID string, pager domain.Pagination) (domain.CursorPage[LedgerEntry], error) {
	materialID := strings.TrimSpace(rawMaterialID)
	if materialID == "" {
		return domain.CursorPage[LedgerEntry]{}, fmt.Errorf("%w: rawMaterialId is required", ErrValidation)
	}
	switch {
	case pager.PageSize <= 0:
		pager.PageSize = defaultLedgerPageSize
	case pager.PageSize > maxLedgerPageSize:
		pager.PageSize = maxLedgerPageSize
	}
	page, err := l.materials.ListLedger(ctx, repositories.LedgerListQuery{RawMaterialID: materialID, Pagination: pager})
	if err != nil {
		return domain.CursorPage[LedgerEntry]{}, translateRepositoryError("raw_materials.ledger", err)
	}
	return page, nil
}

// Reconcile checks that quantity == opening balance + sum(deltas).
func (l *inventoryLedger) Reconcile(ctx context.Context, rawMaterialID string) (ReconcileResult, error) {
	materialID := strings.TrimSpace(rawMaterialID)
	if materialID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: rawMaterialId is required", ErrValidation)
	}
	material, err := l.materials.FindByID(ctx, materialID)
	if err != nil {
		return ReconcileResult{}, translateRepositoryError("raw_materials.find", err)
	}
	totals, err := l.materials.LedgerTotals(ctx, materialID)
	if err != nil {
		return ReconcileResult{}, translateRepositoryError("raw_materials.ledger_totals", err)
	}

	expected := material.Quantity
	if totals.Entries > 0 {
		expected = totals.OpeningBalance + totals.DeltaSum
	}
	result := ReconcileResult{
		RawMaterialID:  material.ID,
		Quantity:       material.Quantity,
		OpeningBalance: totals.OpeningBalance,
		LedgerSum:      totals.DeltaSum,
		Entries:        totals.Entries,
		Expected:       expected,
		Consistent:     expected == material.Quantity,
		CheckedAt:      l.now(),
	}
	if !result.Consistent {
		l.logger(ctx, "inventory.ledger.reconcile_failed", map[string]any{
			"rawMaterialId": material.ID,
			"quantity":      material.Quantity,
			"expected":      expected,
		})
	}
	return result, nil
}

// sanitize strips markup and clips to limit runes.
func (l *inventoryLedger) sanitize(value string, limit int) string {
	cleaned := strings.TrimSpace(html.UnescapeString(l.policy.Sanitize(value)))
	if utf8.RuneCountInString(cleaned) <= limit {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:limit]))
}
