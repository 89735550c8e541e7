package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/pagination"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 200
)

// RawMaterialRepository keeps raw material quantities and their append-only ledger.
type RawMaterialRepository struct {
	db *sql.DB
}

func NewRawMaterialRepository(db *sql.DB) (*RawMaterialRepository, error) {
	if db == nil {
		return nil, errors.New("raw material repository requires database")
	}
	return &RawMaterialRepository{db: db}, nil
}

func (r *RawMaterialRepository) FindByID(ctx context.Context, rawMaterialID string) (domain.RawMaterial, error) {
	material, err := scanRawMaterial(r.db.QueryRowContext(ctx, selectRawMaterial+` WHERE id = $1`, strings.TrimSpace(rawMaterialID)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RawMaterial{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "raw material "+rawMaterialID+" not found", err)
	}
	if err != nil {
		return domain.RawMaterial{}, WrapError("raw_materials.find", err)
	}
	return material, nil
}

// ApplyMutation locks the material row, applies Entry.Delta and writes the ledger entry and optional usage
// record before committing.
func (r *RawMaterialRepository) ApplyMutation(ctx context.Context, mutation repositories.RawMaterialMutation) (repositories.RawMaterialMutationResult, error) {
	if strings.TrimSpace(mutation.Entry.ID) == "" {
		return repositories.RawMaterialMutationResult{}, errors.New("raw material mutation: ledger entry id is required")
	}
	now := mutation.Now.UTC()

	var result repositories.RawMaterialMutationResult
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		material, err := scanRawMaterial(tx.QueryRowContext(ctx, selectRawMaterial+` WHERE id = $1 FOR UPDATE`, mutation.RawMaterialID))
		if errors.Is(err, sql.ErrNoRows) {
			return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "raw material "+mutation.RawMaterialID+" not found", err)
		}
		if err != nil {
			return err
		}

		next := material.Quantity + mutation.Entry.Delta
		if next < 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("raw material %s has %d, change %d", material.ID, material.Quantity, mutation.Entry.Delta), nil)
		}

		entry := mutation.Entry
		entry.RawMaterialID = material.ID
		entry.PreviousQuantity = material.Quantity
		entry.NewQuantity = next
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		material.Quantity = next
		material.Availability = domain.AvailabilityFor(next, material.MinQuantity)
		material.UpdatedAt = now

		if _, err := tx.ExecContext(ctx, `
			UPDATE raw_materials SET quantity = $2, availability = $3, updated_at = $4 WHERE id = $1`,
			material.ID, material.Quantity, string(material.Availability), now,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO raw_material_ledger (
				id, raw_material_id, kind, previous_quantity, delta, new_quantity, reason, category, note, actor, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			entry.ID, entry.RawMaterialID, string(entry.Kind), entry.PreviousQuantity, entry.Delta, entry.NewQuantity,
			entry.Reason, entry.Category, entry.Note, entry.Actor, entry.CreatedAt.UTC(),
		); err != nil {
			return err
		}
		if usage := mutation.Usage; usage != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO raw_material_usage (
					id, raw_material_id, quantity_used, reason, category, note, actor, ledger_entry_id, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				usage.ID, material.ID, usage.QuantityUsed, usage.Reason, usage.Category, usage.Note, usage.Actor, entry.ID, now,
			); err != nil {
				return err
			}
		}

		result = repositories.RawMaterialMutationResult{Material: material, Entry: entry}
		return nil
	})
	if err != nil {
		return repositories.RawMaterialMutationResult{}, WrapError("raw_materials.apply_mutation", err)
	}
	return result, nil
}

// ListLedger pages the ledger newest first using a keyset cursor on (created_at, id).
func (r *RawMaterialRepository) ListLedger(ctx context.Context, query repositories.LedgerListQuery) (domain.CursorPage[domain.LedgerEntry], error) {
	size := query.Pagination.PageSize
	switch {
	case size <= 0:
		size = defaultLedgerPageSize
	case size > maxLedgerPageSize:
		size = maxLedgerPageSize
	}

	args := []any{strings.TrimSpace(query.RawMaterialID), size + 1}
	where := `raw_material_id = $1`
	if token := strings.TrimSpace(query.Pagination.PageToken); token != "" {
		createdAt, id, err := pagination.DecodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, fmt.Errorf("raw_materials.list_ledger: %w", err)
		}
		where += ` AND (created_at, id) < ($3, $4)`
		args = append(args, createdAt, id)
	}

	rows, err := r.db.QueryContext(ctx, selectLedger+` WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT $2`, args...)
	if err != nil {
		return domain.CursorPage[domain.LedgerEntry]{}, WrapError("raw_materials.list_ledger", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, size+1)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, WrapError("raw_materials.list_ledger", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.LedgerEntry]{}, WrapError("raw_materials.list_ledger", err)
	}

	page := domain.CursorPage[domain.LedgerEntry]{Items: entries}
	if len(entries) > size {
		page.Items = entries[:size]
		last := page.Items[size-1]
		token, err := pagination.EncodeTimeCursor(last.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r *RawMaterialRepository) LedgerTotals(ctx context.Context, rawMaterialID string) (repositories.LedgerTotals, error) {
	var (
		totals  repositories.LedgerTotals
		opening sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(delta), 0),
		       (SELECT previous_quantity FROM raw_material_ledger
		        WHERE raw_material_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1)
		FROM raw_material_ledger
		WHERE raw_material_id = $1`, strings.TrimSpace(rawMaterialID)).Scan(&totals.Entries, &totals.DeltaSum, &opening)
	if err != nil {
		return repositories.LedgerTotals{}, WrapError("raw_materials.ledger_totals", err)
	}
	totals.OpeningBalance = opening.Int64
	return totals, nil
}

const selectRawMaterial = `SELECT id, name, unit, quantity, min_quantity, availability, updated_at FROM raw_materials`

func scanRawMaterial(row rowScanner) (domain.RawMaterial, error) {
	var (
		m            domain.RawMaterial
		availability string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.Quantity, &m.MinQuantity, &availability, &m.UpdatedAt); err != nil {
		return domain.RawMaterial{}, err
	}
	m.Availability = domain.Availability(availability)
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

const selectLedger = `
	SELECT id, raw_material_id, kind, previous_quantity, delta, new_quantity, reason, category, note, actor, created_at
	FROM raw_material_ledger`

func scanLedgerEntry(row rowScanner) (domain.LedgerEntry, error) {
	var (
		e    domain.LedgerEntry
		kind string
	)
	if err := row.Scan(&e.ID, &e.RawMaterialID, &kind, &e.PreviousQuantity, &e.Delta, &e.NewQuantity,
		&e.Reason, &e.Category, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Kind = domain.LedgerEntryKind(kind)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

var _ repositories.RawMaterialRepository = (*RawMaterialRepository)(nil)
