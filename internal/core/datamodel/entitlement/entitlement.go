package entitlement

import "time"

// UserProduct grants access to a digital product.
type UserProduct struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:ux_user_products_grant,priority:1"`
	OrderID   int64     `json:"order_id" gorm:"column:order_id;not null;uniqueIndex:ux_user_products_grant,priority:2"`
	ProductID int64     `json:"product_id" gorm:"column:product_id;not null;uniqueIndex:ux_user_products_grant,priority:3"`
	Slug      string    `json:"slug" gorm:"column:slug;not null"`
	GrantedAt time.Time `json:"granted_at" gorm:"column:granted_at;not null"`
}

func (UserProduct) TableName() string {
	return "user_products"
}

type CourseEnrollment struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:ux_course_enrollments_grant,priority:1"`
	OrderID    int64     `json:"order_id" gorm:"column:order_id;not null;uniqueIndex:ux_course_enrollments_grant,priority:2"`
	ProductID  int64     `json:"product_id" gorm:"column:product_id;not null;uniqueIndex:ux_course_enrollments_grant,priority:3"`
	Slug       string    `json:"slug" gorm:"column:slug;not null"`
	EnrolledAt time.Time `json:"enrolled_at" gorm:"column:enrolled_at;not null"`
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}

const ConsultationConfirmed = "confirmed"

type Consultation struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	UserID      string     `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:ux_consultations_grant,priority:1"`
	OrderID     int64      `json:"order_id" gorm:"column:order_id;not null;uniqueIndex:ux_consultations_grant,priority:2"`
	ProductID   int64      `json:"product_id" gorm:"column:product_id;not null;uniqueIndex:ux_consultations_grant,priority:3"`
	Slug        string     `json:"slug" gorm:"column:slug;not null"`
	Status      string     `json:"status" gorm:"column:status;not null"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" gorm:"column:scheduled_at"`
	Topic       string     `json:"topic,omitempty" gorm:"column:topic"`
	ConfirmedAt time.Time  `json:"confirmed_at" gorm:"column:confirmed_at;not null"`
}

func (Consultation) TableName() string {
	return "consultations"
}
