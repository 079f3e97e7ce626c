package notification

import (
	"context"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory resolves user ids to contact details.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*Contact, error)
}

type ContactDirectory struct {
	db       *gorm.DB
	contacts repository.Repository[Contact]
}

func NewContactDirectory(db *gorm.DB) *ContactDirectory {
	return &ContactDirectory{
		db:       db,
		contacts: repository.ProvideStore[Contact](db),
	}
}

func (d *ContactDirectory) Lookup(ctx context.Context, userID string) (*Contact, error) {
	contact, err := d.contacts.FindOne(ctx, &Contact{UserID: userID})
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errutil.NotFound("contact not found", nil)
	}
	return contact, nil
}

func (d *ContactDirectory) Upsert(ctx context.Context, contact *Contact) error {
	if contact.UserID == "" {
		return errutil.ValidationFailed("user id is required", nil)
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "full_name", "email", "profile_image", "updated_at"}),
	}).Create(contact).Error
}

func (c *Contact) Recipient() Recipient {
	return Recipient{UserID: c.UserID, Email: c.Email, Name: c.FullName}
}
