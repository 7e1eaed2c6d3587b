package models

import "time"

type Product struct {
	ID          string    `json:"id" dynamodbav:"id"`
	FarmerID    string    `json:"farmer_id" dynamodbav:"farmer_id"`
	Name        string    `json:"name" dynamodbav:"name"`
	Description string    `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Category    string    `json:"category" dynamodbav:"category"`
	Price       float64   `json:"price" dynamodbav:"price"`
	Unit        string    `json:"unit" dynamodbav:"unit"`
	Quantity    int       `json:"quantity" dynamodbav:"quantity"`
	Images      []string  `json:"images" dynamodbav:"images,omitempty"`
	IsAvailable bool      `json:"is_available" dynamodbav:"is_available"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

func (p *Product) GetPK() string {
	return "PRODUCT#" + p.ID
}

func (p *Product) GetSK() string {
	return "METADATA"
}

// ProductFilter narrows a product listing; empty fields match everything.
type ProductFilter struct {
	Category string
	FarmerID string
}
