package model

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TelegramCredentialsRequest struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
	Phone   string `json:"phone"`
}

type CreateGroupRequest struct {
	ChatID int64     `json:"chat_id"`
	Title  string    `json:"title"`
	Kind   GroupKind `json:"kind"`
}

// ActionResponse is the gateway's generic acknowledgement body.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
