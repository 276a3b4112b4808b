package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var savedItemColumns = []string{
	"user_id", "item_id", "created_at",
	"found_item_id", "seller_id", "title", "description", "price",
	"category", "condition", "images", "is_sold", "sold_at", "item_created_at",
	"seller_name", "seller_department", "seller_email", "seller_phone",
}

func TestPostgresSavedItemRepo_ListWithItems(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSavedItemRepo(db)
	now := time.Now()

	rows := sqlmock.NewRows(savedItemColumns).
		AddRow("buyer", "item-1", now,
			"item-1", "seller", "Drafter", "", 500.0, "Tools", "Used", "{}", true, now, now,
			"Asha", "Civil", "asha@crescent.education", "9000").
		AddRow("buyer", "item-2", now,
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM saved_items s`)).
		WithArgs("buyer").
		WillReturnRows(rows)

	saved, err := repo.ListWithItems(context.Background(), "buyer")
	require.NoError(t, err)
	require.Len(t, saved, 2)

	require.NotNil(t, saved[0].Item)
	assert.True(t, saved[0].Item.IsSold)
	assert.Equal(t, "9000", saved[0].Item.Seller.Phone)
	assert.Nil(t, saved[1].Item, "deleted item must not be expanded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSavedItemRepo_SaveIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSavedItemRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id, item_id) DO NOTHING`)).
		WithArgs("buyer", "item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Save(context.Background(), "buyer", "item-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSavedItemRepo_UnsaveError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSavedItemRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM saved_items`)).
		WithArgs("buyer", "item-1").
		WillReturnError(errors.New("permission denied for table saved_items"))

	err := repo.Unsave(context.Background(), "buyer", "item-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unsave item")
}
