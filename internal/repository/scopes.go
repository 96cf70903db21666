package repository

import "gorm.io/gorm"

func paginate(p Page) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.Size <= 0 {
			return db
		}
		return db.Offset(p.Offset()).Limit(p.Size)
	}
}

func userFilter(f UserFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Role != nil {
			db = db.Where("role = ?", *f.Role)
		}
		if f.IsVerified != nil {
			db = db.Where("is_verified = ?", *f.IsVerified)
		}
		if f.ActiveOnly {
			db = db.Where("is_active = ?", true)
		}
		return db
	}
}

func creditFilter(f CreditFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Status != nil {
			db = db.Where("status = ?", *f.Status)
		}
		if f.SourceType != nil {
			db = db.Where("source_type = ?", *f.SourceType)
		}
		if f.ProducerID != nil {
			db = db.Where("producer_id = ?", *f.ProducerID)
		}
		if f.CertifierID != nil {
			db = db.Where("certifier_id = ?", *f.CertifierID)
		}
		if f.OwnerID != nil {
			db = db.Where("current_owner_id = ?", *f.OwnerID)
		}
		return db
	}
}

func operationFilter(f OperationFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Status != nil {
			db = db.Where("status = ?", *f.Status)
		}
		if f.Kind != nil {
			db = db.Where("kind = ?", *f.Kind)
		}
		if f.CreditID != nil {
			db = db.Where("credit_id = ?", *f.CreditID)
		}
		return db
	}
}
