package repository

import (
	"errors"
	"time"

	"crm-backend/internal/crm/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepository is the contact side of the CRM store
type ContactRepository interface {
	GetContact(id string) (*domain.Contact, error)
	GetContactByGhlID(ghlID string) (*domain.Contact, error)
	UpsertContactByGhlID(contact *domain.Contact) (*domain.Contact, error)
	DeleteContact(id string) error
	AddTagToContact(contactID, tag string) error
}

type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new instance of contactRepository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) GetContact(id string) (*domain.Contact, error) {
	return r.findOne("id = ?", id)
}

func (r *contactRepository) GetContactByGhlID(ghlID string) (*domain.Contact, error) {
	return r.findOne("ghl_id = ?", ghlID)
}

func (r *contactRepository) findOne(query string, arg interface{}) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.Where(query, arg).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var tags []string
	if err := r.db.Model(&domain.ContactTag{}).
		Where("contact_id = ?", contact.ID).
		Order("tag").
		Pluck("tag", &tags).Error; err != nil {
		return nil, err
	}
	contact.Tags = tags
	return &contact, nil
}

// UpsertContactByGhlID inserts the contact or merges it into the row holding
// the same ghl_id. Empty fields in the projection leave stored values alone.
func (r *contactRepository) UpsertContactByGhlID(contact *domain.Contact) (*domain.Contact, error) {
	if contact.GhlID == nil || *contact.GhlID == "" {
		return nil, errors.New("contact upsert requires a ghl_id")
	}

	now := time.Now()
	row := *contact
	row.ID = uuid.New().String()
	row.CreatedAt = now
	row.UpdatedAt = now
	row.Tags = nil

	columns := []string{"updated_at"}
	if row.Email != "" {
		columns = append(columns, "email")
	}
	if row.Name != "" {
		columns = append(columns, "name")
	}
	if row.CustomFields != nil {
		columns = append(columns, "custom_fields")
	}
	if row.JoinedDate != nil {
		columns = append(columns, "joined_date")
	}
	if row.ContactSource != "" {
		columns = append(columns, "contact_source")
	}

	// Atomic upsert: INSERT ... ON CONFLICT (ghl_id) DO UPDATE
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ghl_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	return r.GetContactByGhlID(*contact.GhlID)
}

func (r *contactRepository) DeleteContact(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contact_id = ?", id).Delete(&domain.ContactTag{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Contact{}).Error
	})
}

// AddTagToContact has set semantics: adding a present tag is a no-op.
func (r *contactRepository) AddTagToContact(contactID, tag string) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.ContactTag{
		ContactID: contactID,
		Tag:       tag,
		CreatedAt: time.Now(),
	}).Error
}
