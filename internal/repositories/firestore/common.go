package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/jara-commerce/api/internal/domain"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/platform/pagination"
	"github.com/jara-commerce/api/internal/repositories"
)

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// listPage runs a newest-first cursor query. build adds filters; the createdAt/document-id
// ordering and the cursor are applied here.
func listPage[D any, T any](
	ctx context.Context,
	base *pfirestore.BaseRepository[D],
	pager domain.Pagination,
	build pfirestore.QueryBuilder,
	convert func(D) T,
	cursorOf func(D) pagination.Cursor,
) (domain.CursorPage[T], error) {
	pager = pagination.Normalize(pager)
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	fetch := pager.PageSize + 1

	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		if build != nil {
			q = build(q)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(fetch)
	})
	if err != nil {
		return domain.CursorPage[T]{}, err
	}

	var next string
	if len(docs) == fetch {
		docs = docs[:pager.PageSize]
		next = pagination.EncodeToken(cursorOf(docs[len(docs)-1]))
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		items = append(items, convert(doc))
	}
	return domain.CursorPage[T]{Items: items, NextPageToken: next}, nil
}

type addressDocument struct {
	Type      string `firestore:"type,omitempty"`
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Street    string `firestore:"street"`
	City      string `firestore:"city"`
	Province  string `firestore:"province"`
	Phone     string `firestore:"phone"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		Type:      string(a.Type),
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Street:    a.Street,
		City:      a.City,
		Province:  a.Province,
		Phone:     a.Phone,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Type:      domain.AddressType(d.Type),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Street:    d.Street,
		City:      d.City,
		Province:  d.Province,
		Phone:     d.Phone,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
