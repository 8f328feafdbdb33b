package client

// User is the account as the backend reports it at login or signup.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Expense is one logged outgoing payment.
type Expense struct {
	ID       string  `json:"id,omitempty"`
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category,omitempty"`
	Date     string  `json:"date,omitempty"`
}

// Income is one logged incoming payment.
type Income struct {
	ID     string  `json:"id,omitempty"`
	Source string  `json:"source"`
	Amount float64 `json:"amount"`
	Date   string  `json:"date,omitempty"`
}

// Goal is a savings target.
type Goal struct {
	ID       string  `json:"id,omitempty"`
	Title    string  `json:"title"`
	Target   float64 `json:"target"`
	Saved    float64 `json:"saved"`
	Deadline string  `json:"deadline,omitempty"`
}

// Bookmark is a saved piece of reference content.
type Bookmark struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Summary is the server-computed analytics overview.
type Summary struct {
	TotalIncome  float64            `json:"totalIncome"`
	TotalExpense float64            `json:"totalExpense"`
	Balance      float64            `json:"balance"`
	ByCategory   map[string]float64 `json:"byCategory,omitempty"`
}

// authResponse is returned by login and signup.
type authResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}
