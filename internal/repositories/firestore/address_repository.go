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
	"github.com/hanko-field/commerce/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository reads user addresses stored under users/{uid}/addresses.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// DefaultShipping returns the most recently updated address flagged as default shipping.
func (r *AddressRepository) DefaultShipping(ctx context.Context, userID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	query := coll.Where("defaultShipping", "==", true).OrderBy("updatedAt", firestore.Desc).Limit(1)
	docs, err := pfirestore.QueryDocuments(ctx, query, decodeAddressDocument, "addresses.default_shipping")
	if err != nil {
		return domain.Address{}, err
	}
	if len(docs) == 0 {
		return domain.Address{}, pfirestore.WrapError("addresses.default_shipping", status.Errorf(codes.NotFound, "user %s has no default shipping address", userID))
	}
	address := docs[0].Data
	address.ID = docs[0].ID
	return address, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

type addressDocument struct {
	Recipient       string    `firestore:"recipient"`
	Line1           string    `firestore:"line1"`
	Line2           *string   `firestore:"line2,omitempty"`
	City            string    `firestore:"city"`
	State           *string   `firestore:"state,omitempty"`
	PostalCode      string    `firestore:"postalCode"`
	Country         string    `firestore:"country"`
	Phone           *string   `firestore:"phone,omitempty"`
	DefaultShipping bool      `firestore:"defaultShipping"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		Recipient:       strings.TrimSpace(addr.Recipient),
		Line1:           strings.TrimSpace(addr.Line1),
		Line2:           cloneOptionalString(addr.Line2),
		City:            strings.TrimSpace(addr.City),
		State:           cloneOptionalString(addr.State),
		PostalCode:      strings.TrimSpace(addr.PostalCode),
		Country:         strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:           cloneOptionalString(addr.Phone),
		DefaultShipping: addr.IsDefault,
	}
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      cloneOptionalString(d.Line2),
		City:       d.City,
		State:      cloneOptionalString(d.State),
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      cloneOptionalString(d.Phone),
		IsDefault:  d.DefaultShipping,
	}
}

func cloneOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	cloned := *value
	if strings.TrimSpace(cloned) == "" {
		return nil
	}
	return &cloned
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
