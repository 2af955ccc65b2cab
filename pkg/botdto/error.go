package botdto

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"ws_clients"`
}
