package models

// User is a backend user record. Customers of the chat are users too.
type User struct {
	ID          string  `json:"id"`
	UserName    string  `json:"userName"`
	Email       string  `json:"email"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
	IsActive    bool    `json:"isActive"`
}

// UserQuery filters the backend user list.
type UserQuery struct {
	SearchName  string `query:"search_name"`
	SearchEmail string `query:"search_email"`
	PageNumber  int    `query:"page_number"`
	PageSize    int    `query:"page_size"`
}

// Response is the backend envelope.
type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Paginated is the backend list envelope.
type Paginated[T any] struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Data            []T    `json:"data"`
	PageNumber      int    `json:"pageNumber"`
	PageSize        int    `json:"pageSize"`
	TotalCount      int    `json:"totalCount"`
	TotalPages      int    `json:"totalPages"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	HasNextPage     bool   `json:"hasNextPage"`
}
