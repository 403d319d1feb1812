package models

import (
	"context"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/utils"
	"gorm.io/gorm"
)

// Matter is the unit of work line items and invoices hang off. Bar selects the
// jurisdiction rules that govern its invoices.
type Matter struct {
	ID          int       `gorm:"primary_key" json:"id"`
	AdvocateId  string    `gorm:"size:64;index;not null" json:"advocate_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	ClientName  string    `gorm:"size:255;not null" json:"client_name"`
	ClientEmail string    `gorm:"size:255" json:"client_email"`
	Bar         string    `gorm:"size:50;not null" json:"bar"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m Matter) OwnerId() string { return m.AdvocateId }

type NewMatter struct {
	Title       string `json:"title" validate:"required,max=255"`
	ClientName  string `json:"client_name" validate:"required,max=255"`
	ClientEmail string `json:"client_email" validate:"omitempty,email"`
	Bar         string `json:"bar" validate:"required,max=50"`
}

func CreateMatter(ctx context.Context, tx *gorm.DB, input NewMatter) (*Matter, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	matter := Matter{
		AdvocateId:  advocateId,
		Title:       input.Title,
		ClientName:  input.ClientName,
		ClientEmail: input.ClientEmail,
		Bar:         input.Bar,
	}
	if err := tx.WithContext(ctx).Create(&matter).Error; err != nil {
		return nil, err
	}
	return &matter, nil
}

// GetOwnedMatter loads the matter and checks the caller owns it.
func GetOwnedMatter(ctx context.Context, tx *gorm.DB, id int) (*Matter, error) {
	return utils.FetchOwnedModel[Matter](ctx, tx, id, "matter")
}
