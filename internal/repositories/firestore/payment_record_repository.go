package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/commerce/internal/domain"
	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/repositories"
)

const paymentRecordsCollection = "paymentRecords"

type paymentRecordDocument struct {
	GatewayPaymentID string               `firestore:"gatewayPaymentId,omitempty"`
	Provider         string               `firestore:"provider"`
	Status           string               `firestore:"status"`
	Source           string               `firestore:"source"`
	SourceID         string               `firestore:"sourceId"`
	UserID           string               `firestore:"userId"`
	Currency         string               `firestore:"currency"`
	Amount           int64                `firestore:"amount"`
	Subtotal         int64                `firestore:"subtotal"`
	Discount         int64                `firestore:"discount"`
	PromoCodeID      string               `firestore:"promoCodeId,omitempty"`
	Lines            []chargeLineDocument `firestore:"lines"`
	Receipt          string               `firestore:"receipt"`
	OrderID          string               `firestore:"orderId,omitempty"`
	FailureReason    string               `firestore:"failureReason,omitempty"`
	CreatedAt        time.Time            `firestore:"createdAt"`
	UpdatedAt        time.Time            `firestore:"updatedAt"`
}

type chargeLineDocument struct {
	ProductID string `firestore:"productId,omitempty"`
	Name      string `firestore:"name"`
	Quantity  int64  `firestore:"qty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

func newPaymentRecordDocument(record domain.PaymentRecord) paymentRecordDocument {
	lines := make([]chargeLineDocument, 0, len(record.Lines))
	for _, line := range record.Lines {
		lines = append(lines, chargeLineDocument{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return paymentRecordDocument{
		GatewayPaymentID: strings.TrimSpace(record.GatewayPaymentID),
		Provider:         strings.TrimSpace(record.Provider),
		Status:           string(record.Status),
		Source:           string(record.Source),
		SourceID:         strings.TrimSpace(record.SourceID),
		UserID:           strings.TrimSpace(record.UserID),
		Currency:         strings.ToUpper(strings.TrimSpace(record.Currency)),
		Amount:           record.Amount,
		Subtotal:         record.Subtotal,
		Discount:         record.Discount,
		PromoCodeID:      strings.TrimSpace(record.PromoCodeID),
		Lines:            lines,
		Receipt:          record.Receipt,
		OrderID:          strings.TrimSpace(record.OrderID),
		FailureReason:    record.FailureReason,
		CreatedAt:        record.CreatedAt.UTC(),
		UpdatedAt:        record.UpdatedAt.UTC(),
	}
}

func (d paymentRecordDocument) toDomain(id string) domain.PaymentRecord {
	lines := make([]domain.ChargeLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.ChargeLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return domain.PaymentRecord{
		GatewayOrderID:   id,
		GatewayPaymentID: d.GatewayPaymentID,
		Provider:         d.Provider,
		Status:           domain.PaymentStatus(d.Status),
		Source:           domain.PaymentSource(d.Source),
		SourceID:         d.SourceID,
		UserID:           d.UserID,
		Currency:         d.Currency,
		Amount:           d.Amount,
		Subtotal:         d.Subtotal,
		Discount:         d.Discount,
		PromoCodeID:      d.PromoCodeID,
		Lines:            lines,
		Receipt:          d.Receipt,
		OrderID:          d.OrderID,
		FailureReason:    d.FailureReason,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// PaymentRecordRepository persists gateway payment attempts with the gateway order id as document id.
type PaymentRecordRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentRecordDocument]
}

// NewPaymentRecordRepository constructs a Firestore-backed payment record repository.
func NewPaymentRecordRepository(provider *pfirestore.Provider) (*PaymentRecordRepository, error) {
	if provider == nil {
		return nil, errors.New("payment record repository requires firestore provider")
	}
	return &PaymentRecordRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[paymentRecordDocument](provider, paymentRecordsCollection, nil),
	}, nil
}

// Create inserts the pending record; a second create for the same gateway order id is a conflict.
func (r *PaymentRecordRepository) Create(ctx context.Context, record domain.PaymentRecord) error {
	if r == nil || r.base == nil {
		return errors.New("payment record repository not initialised")
	}
	id := strings.TrimSpace(record.GatewayOrderID)
	if id == "" {
		return errors.New("payment record repository: gateway order id is required")
	}
	return r.base.Create(ctx, id, newPaymentRecordDocument(record))
}

func (r *PaymentRecordRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PaymentRecord, error) {
	if r == nil || r.base == nil {
		return domain.PaymentRecord{}, errors.New("payment record repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(gatewayOrderID))
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// MarkFailed flips a pending record to failed inside a transaction so a concurrent success is never overwritten.
func (r *PaymentRecordRepository) MarkFailed(ctx context.Context, gatewayOrderID string, reason string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("payment record repository not initialised")
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(gatewayOrderID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return fmt.Errorf("decode payment record %s: %w", gatewayOrderID, err)
		}
		if doc.Status != string(domain.PaymentStatusPending) {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.PaymentStatusFailed)},
			{Path: "failureReason", Value: clipReason(reason)},
			{Path: "updatedAt", Value: at.UTC()},
		})
	})
	if err != nil {
		return pfirestore.WrapError("payment_records.mark_failed", err)
	}
	return nil
}

func clipReason(reason string) string {
	const limit = 500
	reason = strings.TrimSpace(reason)
	if len(reason) <= limit {
		return reason
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

var _ repositories.PaymentRecordRepository = (*PaymentRecordRepository)(nil)
