package model

// User is the signed in athlete as returned by the API.
type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// Exercise is a single exercise of a muscle group.
type Exercise struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Series      int    `json:"series"`
	Repetitions int    `json:"repetitions"`
	Group       string `json:"group"`
	Demo        string `json:"demo"`
	Thumb       string `json:"thumb"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// History is one exercise marked as done.
type History struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Group      string `json:"group"`
	Hour       string `json:"hour"`
	CreatedAt  string `json:"created_at,omitempty"`
	ExerciseID int64  `json:"exercise_id,omitempty"`
}

// HistoryByDay groups history entries under a day title.
type HistoryByDay struct {
	Title string    `json:"title"`
	Data  []History `json:"data"`
}

// ----------------------------------------------------------------------
// Request / response shapes
// ----------------------------------------------------------------------

// SignInRequest is the body of POST /sessions.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by POST /sessions.
type SessionResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshRequest is the body of POST /sessions/refresh-token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by POST /sessions/refresh-token.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// SignUpRequest is the body of POST /users.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate is the body of PUT /users. Password changes require the
// previous password.
type ProfileUpdate struct {
	Name        string `json:"name"`
	Password    string `json:"password,omitempty"`
	OldPassword string `json:"old_password,omitempty"`
}

// HistoryRequest is the body of POST /history.
type HistoryRequest struct {
	ExerciseID int64 `json:"exercise_id"`
}

// ErrorBody is the structured error the API returns.
type ErrorBody struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}
