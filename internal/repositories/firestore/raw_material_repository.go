package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/commerce/internal/domain"
	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/platform/pagination"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	rawMaterialsCollection = "rawMaterials"
	ledgerSubcollection    = "ledger"
	usageSubcollection     = "usage"

	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 200
)

type rawMaterialDocument struct {
	Name         string    `firestore:"name"`
	Unit         string    `firestore:"unit"`
	Quantity     int64     `firestore:"quantity"`
	MinQuantity  int64     `firestore:"minQuantity"`
	Availability string    `firestore:"availability"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d rawMaterialDocument) toDomain(id string) domain.RawMaterial {
	availability := domain.Availability(strings.TrimSpace(d.Availability))
	if availability == "" {
		availability = domain.AvailabilityFor(d.Quantity, d.MinQuantity)
	}
	return domain.RawMaterial{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		Unit:         strings.TrimSpace(d.Unit),
		Quantity:     d.Quantity,
		MinQuantity:  d.MinQuantity,
		Availability: availability,
		UpdatedAt:    d.UpdatedAt,
	}
}

type ledgerEntryDocument struct {
	Kind             string    `firestore:"kind"`
	PreviousQuantity int64     `firestore:"previousQuantity"`
	Delta            int64     `firestore:"delta"`
	NewQuantity      int64     `firestore:"newQuantity"`
	Reason           string    `firestore:"reason"`
	Category         string    `firestore:"category,omitempty"`
	Note             string    `firestore:"note,omitempty"`
	Actor            string    `firestore:"actor"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

func newLedgerEntryDocument(entry domain.LedgerEntry) ledgerEntryDocument {
	return ledgerEntryDocument{
		Kind:             string(entry.Kind),
		PreviousQuantity: entry.PreviousQuantity,
		Delta:            entry.Delta,
		NewQuantity:      entry.NewQuantity,
		Reason:           entry.Reason,
		Category:         entry.Category,
		Note:             entry.Note,
		Actor:            entry.Actor,
		CreatedAt:        entry.CreatedAt.UTC(),
	}
}

func (d ledgerEntryDocument) toDomain(materialID, id string) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:               id,
		RawMaterialID:    materialID,
		Kind:             domain.LedgerEntryKind(d.Kind),
		PreviousQuantity: d.PreviousQuantity,
		Delta:            d.Delta,
		NewQuantity:      d.NewQuantity,
		Reason:           d.Reason,
		Category:         d.Category,
		Note:             d.Note,
		Actor:            d.Actor,
		CreatedAt:        d.CreatedAt,
	}
}

type usageRecordDocument struct {
	QuantityUsed  int64     `firestore:"quantityUsed"`
	Reason        string    `firestore:"reason"`
	Category      string    `firestore:"category,omitempty"`
	Note          string    `firestore:"note,omitempty"`
	Actor         string    `firestore:"actor"`
	LedgerEntryID string    `firestore:"ledgerEntryId"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

// RawMaterialRepository stores raw materials with their ledger and usage records as subcollections.
type RawMaterialRepository struct {
	provider  *pfirestore.Provider
	materials *pfirestore.BaseRepository[rawMaterialDocument]
}

func NewRawMaterialRepository(provider *pfirestore.Provider) (*RawMaterialRepository, error) {
	if provider == nil {
		return nil, errors.New("raw material repository requires firestore provider")
	}
	return &RawMaterialRepository{
		provider:  provider,
		materials: pfirestore.NewBaseRepository[rawMaterialDocument](provider, rawMaterialsCollection, nil),
	}, nil
}

func (r *RawMaterialRepository) FindByID(ctx context.Context, rawMaterialID string) (domain.RawMaterial, error) {
	if r == nil || r.materials == nil {
		return domain.RawMaterial{}, errors.New("raw material repository not initialised")
	}
	doc, err := r.materials.Get(ctx, strings.TrimSpace(rawMaterialID))
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.RawMaterial{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "raw material "+rawMaterialID+" not found", err)
		}
		return domain.RawMaterial{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ApplyMutation moves the material quantity by Entry.Delta and appends the ledger entry, plus the usage
// record when present, in the same transaction. The stored quantity never goes negative.
func (r *RawMaterialRepository) ApplyMutation(ctx context.Context, mutation repositories.RawMaterialMutation) (repositories.RawMaterialMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.RawMaterialMutationResult{}, errors.New("raw material repository not initialised")
	}
	if strings.TrimSpace(mutation.Entry.ID) == "" {
		return repositories.RawMaterialMutationResult{}, errors.New("raw material mutation: ledger entry id is required")
	}
	now := mutation.Now.UTC()

	var result repositories.RawMaterialMutationResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.materials.DocumentRef(ctx, mutation.RawMaterialID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "raw material "+mutation.RawMaterialID+" not found", err)
			}
			return err
		}
		doc, err := r.materials.Decode(snap)
		if err != nil {
			return fmt.Errorf("decode raw material %s: %w", mutation.RawMaterialID, err)
		}

		next := doc.Quantity + mutation.Entry.Delta
		if next < 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("raw material %s has %d, change %d", mutation.RawMaterialID, doc.Quantity, mutation.Entry.Delta), nil)
		}

		entry := mutation.Entry
		entry.RawMaterialID = ref.ID
		entry.PreviousQuantity = doc.Quantity
		entry.NewQuantity = next
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}

		doc.Quantity = next
		doc.Availability = string(domain.AvailabilityFor(next, doc.MinQuantity))
		doc.UpdatedAt = now
		if err := tx.Update(ref, []firestore.Update{
			{Path: "quantity", Value: doc.Quantity},
			{Path: "availability", Value: doc.Availability},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		if err := tx.Create(ref.Collection(ledgerSubcollection).Doc(entry.ID), newLedgerEntryDocument(entry)); err != nil {
			return err
		}
		if usage := mutation.Usage; usage != nil {
			if strings.TrimSpace(usage.ID) == "" {
				return errors.New("raw material mutation: usage record id is required")
			}
			if err := tx.Create(ref.Collection(usageSubcollection).Doc(usage.ID), usageRecordDocument{
				QuantityUsed:  usage.QuantityUsed,
				Reason:        usage.Reason,
				Category:      usage.Category,
				Note:          usage.Note,
				Actor:         usage.Actor,
				LedgerEntryID: entry.ID,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}

		result = repositories.RawMaterialMutationResult{Material: doc.toDomain(ref.ID), Entry: entry}
		return nil
	})
	if err != nil {
		return repositories.RawMaterialMutationResult{}, wrapInventoryError("raw_materials.apply_mutation", err)
	}
	return result, nil
}

// ListLedger pages the ledger newest first. Ties on createdAt are broken by document id.
func (r *RawMaterialRepository) ListLedger(ctx context.Context, query repositories.LedgerListQuery) (domain.CursorPage[domain.LedgerEntry], error) {
	ledger, err := r.ledgerCollection(ctx, query.RawMaterialID)
	if err != nil {
		return domain.CursorPage[domain.LedgerEntry]{}, err
	}

	size := query.Pagination.PageSize
	switch {
	case size <= 0:
		size = defaultLedgerPageSize
	case size > maxLedgerPageSize:
		size = maxLedgerPageSize
	}

	q := ledger.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if token := strings.TrimSpace(query.Pagination.PageToken); token != "" {
		createdAt, id, err := pagination.DecodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, fmt.Errorf("raw_materials.list_ledger: %w", err)
		}
		q = q.StartAfter(createdAt, id)
	}
	q = q.Limit(size + 1)

	docs, err := pfirestore.QueryDocuments[ledgerEntryDocument](ctx, q, nil, "raw_materials.list_ledger")
	if err != nil {
		return domain.CursorPage[domain.LedgerEntry]{}, err
	}

	page := domain.CursorPage[domain.LedgerEntry]{}
	if len(docs) > size {
		docs = docs[:size]
		last := docs[len(docs)-1]
		token, err := pagination.EncodeTimeCursor(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, err
		}
		page.NextPageToken = token
	}
	page.Items = make([]domain.LedgerEntry, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(query.RawMaterialID, doc.ID))
	}
	return page, nil
}

// LedgerTotals walks the full ledger oldest first.
func (r *RawMaterialRepository) LedgerTotals(ctx context.Context, rawMaterialID string) (repositories.LedgerTotals, error) {
	ledger, err := r.ledgerCollection(ctx, rawMaterialID)
	if err != nil {
		return repositories.LedgerTotals{}, err
	}
	q := ledger.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	docs, err := pfirestore.QueryDocuments[ledgerEntryDocument](ctx, q, nil, "raw_materials.ledger_totals")
	if err != nil {
		return repositories.LedgerTotals{}, err
	}

	var totals repositories.LedgerTotals
	for i, doc := range docs {
		if i == 0 {
			totals.OpeningBalance = doc.Data.PreviousQuantity
		}
		totals.Entries++
		totals.DeltaSum += doc.Data.Delta
	}
	return totals, nil
}

func (r *RawMaterialRepository) ledgerCollection(ctx context.Context, rawMaterialID string) (*firestore.CollectionRef, error) {
	if r == nil || r.materials == nil {
		return nil, errors.New("raw material repository not initialised")
	}
	ref, err := r.materials.DocumentRef(ctx, strings.TrimSpace(rawMaterialID))
	if err != nil {
		return nil, err
	}
	return ref.Collection(ledgerSubcollection), nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.RawMaterialRepository = (*RawMaterialRepository)(nil)
