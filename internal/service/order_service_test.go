package service

import (
	"testing"

	"delivery-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCalculateTotal(t *testing.T) {
	os := &OrderService{}

	items := []OrderItemRequest{
		{ProductID: 1},
		{ProductID: 2},
	}

	products := map[int64]*models.Product{
		1: {ID: 1, Price: 1500},
		2: {ID: 2, Price: 900},
	}

	total := os.calculateTotal(items, products)

	assert.Equal(t, int64(2400), total)
}

func TestCalculateTotalDuplicateProduct(t *testing.T) {
	os := &OrderService{}

	// Buying the same digital product twice still charges per line item
	items := []OrderItemRequest{
		{ProductID: 1},
		{ProductID: 1},
	}

	products := map[int64]*models.Product{
		1: {ID: 1, Price: 1500},
	}

	assert.Equal(t, int64(3000), os.calculateTotal(items, products))
}
