package model

// Identity — данные пользователя из справочника, нужные для доставки уведомлений.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
}
