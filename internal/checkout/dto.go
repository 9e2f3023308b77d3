package checkout

import (
	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/catalog"
	"github.com/frahmantamala/settlement/internal/core/common/validation"
)

// CheckoutDTO is the body of every checkout route: a list of items or a booking.
type CheckoutDTO struct {
	Items   []catalog.CartLine      `json:"items,omitempty" validate:"omitempty,dive"`
	Booking *catalog.BookingRequest `json:"booking,omitempty"`
	Name    string                  `json:"name,omitempty" validate:"max=200"`
}

func (dto CheckoutDTO) Validate() *errs.AppError {
	return validation.ValidateStruct(dto)
}

func (dto CheckoutDTO) Cart() catalog.Cart {
	return catalog.Cart{Items: dto.Items, Booking: dto.Booking}
}
