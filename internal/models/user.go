package models

type UserType string

const (
	UserTypePassenger UserType = "passenger"
	UserTypeDriver    UserType = "driver"
	UserTypeAdmin     UserType = "admin"
)

// User is the read-only projection of the users table needed by dispatch:
// contact details for payload shaping and the device token for push.
type User struct {
	ID          string `gorm:"column:id;primaryKey"`
	Username    string `gorm:"column:username"`
	PhoneNumber string `gorm:"column:phone_number"`
	FCMToken    string `gorm:"column:fcm_token"`
	UserType    string `gorm:"column:user_type;not null"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
