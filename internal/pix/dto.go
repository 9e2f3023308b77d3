package pix

import (
	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/catalog"
	"github.com/frahmantamala/settlement/internal/core/common/validation"
)

type IssueCodeDTO struct {
	Items   []catalog.CartLine      `json:"items,omitempty" validate:"omitempty,dive"`
	Booking *catalog.BookingRequest `json:"booking,omitempty"`
}

func (dto IssueCodeDTO) Validate() *errs.AppError {
	return validation.ValidateStruct(dto)
}

func (dto IssueCodeDTO) Cart() catalog.Cart {
	return catalog.Cart{Items: dto.Items, Booking: dto.Booking}
}

type DecodeDTO struct {
	Payload string `json:"payload" validate:"required,max=512"`
}

func (dto DecodeDTO) Validate() *errs.AppError {
	return validation.ValidateStruct(dto)
}
