package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

const failureReasonLimit = 500

type chargeLineJSON struct {
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name"`
	Quantity  int64  `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

func encodeChargeLines(lines []domain.ChargeLine) ([]byte, error) {
	rows := make([]chargeLineJSON, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, chargeLineJSON(line))
	}
	return json.Marshal(rows)
}

func decodeChargeLines(raw []byte) ([]domain.ChargeLine, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []chargeLineJSON
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode charge lines: %w", err)
	}
	lines := make([]domain.ChargeLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, domain.ChargeLine(row))
	}
	return lines, nil
}

// PaymentRecordRepository stores payment intents keyed by gateway order id.
type PaymentRecordRepository struct {
	db *sql.DB
}

func NewPaymentRecordRepository(db *sql.DB) (*PaymentRecordRepository, error) {
	if db == nil {
		return nil, errors.New("payment record repository requires database")
	}
	return &PaymentRecordRepository{db: db}, nil
}

// Create inserts the pending record. A duplicate gateway order id surfaces as a conflict.
func (r *PaymentRecordRepository) Create(ctx context.Context, record domain.PaymentRecord) error {
	id := strings.TrimSpace(record.GatewayOrderID)
	if id == "" {
		return errors.New("payment record repository: gateway order id is required")
	}
	lines, err := encodeChargeLines(record.Lines)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payment_records (
			gateway_order_id, gateway_payment_id, provider, status, source, source_id, user_id, currency,
			amount, subtotal, discount, promo_code_id, lines, receipt, order_id, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		id, strings.TrimSpace(record.GatewayPaymentID), record.Provider, string(record.Status), string(record.Source),
		record.SourceID, record.UserID, record.Currency, record.Amount, record.Subtotal, record.Discount,
		record.PromoCodeID, string(lines), record.Receipt, record.OrderID, record.FailureReason,
		record.CreatedAt.UTC(), record.UpdatedAt.UTC(),
	)
	return WrapError("payment_records.create", err)
}

func (r *PaymentRecordRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PaymentRecord, error) {
	record, err := scanPaymentRecord(r.db.QueryRowContext(ctx, selectPaymentRecord+` WHERE gateway_order_id = $1`, strings.TrimSpace(gatewayOrderID)))
	if err != nil {
		return domain.PaymentRecord{}, WrapError("payment_records.find", err)
	}
	return record, nil
}

// MarkFailed only moves pending records; settled and already failed records are left untouched.
func (r *PaymentRecordRepository) MarkFailed(ctx context.Context, gatewayOrderID string, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_records
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE gateway_order_id = $1 AND status = $5`,
		strings.TrimSpace(gatewayOrderID), string(domain.PaymentStatusFailed), clipReason(reason), at.UTC(),
		string(domain.PaymentStatusPending),
	)
	return WrapError("payment_records.mark_failed", err)
}

const selectPaymentRecord = `
	SELECT gateway_order_id, gateway_payment_id, provider, status, source, source_id, user_id, currency,
	       amount, subtotal, discount, promo_code_id, lines, receipt, order_id, failure_reason, created_at, updated_at
	FROM payment_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentRecord(row rowScanner) (domain.PaymentRecord, error) {
	var (
		rec            domain.PaymentRecord
		status, source string
		lines          []byte
	)
	if err := row.Scan(
		&rec.GatewayOrderID, &rec.GatewayPaymentID, &rec.Provider, &status, &source, &rec.SourceID, &rec.UserID, &rec.Currency,
		&rec.Amount, &rec.Subtotal, &rec.Discount, &rec.PromoCodeID, &lines, &rec.Receipt, &rec.OrderID, &rec.FailureReason,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return domain.PaymentRecord{}, err
	}
	decoded, err := decodeChargeLines(lines)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	rec.Lines = decoded
	rec.Status = domain.PaymentStatus(status)
	rec.Source = domain.PaymentSource(source)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func clipReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= failureReasonLimit {
		return reason
	}
	cut := failureReasonLimit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

var _ repositories.PaymentRecordRepository = (*PaymentRecordRepository)(nil)
