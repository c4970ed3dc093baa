package domain

import "context"

// Service admits orders into the pipeline.
type Service interface {
	// Admit validates, deduplicates and durably accepts an order. A
	// resubmission of the same natural key returns the original order
	// with Created=false.
	Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error)

	// GetOrder returns the order or ErrOrderNotFound. Pure read.
	GetOrder(ctx context.Context, id string) (*Order, error)
}
