package engine

import "fmt"

// AppError is the wire form of every pipeline fault. Status picks the HTTP
// code; Code names the fault class.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// ConnectivityFault reports a database that could not be reached at
// startup; the stored adapter fault surfaces here on every request.
func ConnectivityFault(msg string) *AppError {
	return &AppError{Code: "CONNECTIVITY_FAULT", Status: 503, Message: msg}
}

func CompileFault(err error) *AppError {
	return &AppError{Code: "COMPILE_FAULT", Status: 400, Message: fmt.Sprintf("invalid query template: %v", err)}
}

func BindFault(msg string) *AppError {
	return &AppError{Code: "BIND_FAULT", Status: 400, Message: msg}
}

// MissingParameter is the hard-fault policy for a placeholder no source can
// satisfy: silently shrinking the argument list would misalign positional
// binding.
func MissingParameter(name string) *AppError {
	return BindFault(fmt.Sprintf("no value for parameter %q", name))
}

func ExecutionFault(err error) *AppError {
	return &AppError{Code: "EXECUTION_FAULT", Status: 400, Message: err.Error()}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "AUTH_FAULT", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func NotFoundError(name string) *AppError {
	return &AppError{Code: "NOT_FOUND", Status: 404, Message: fmt.Sprintf("no endpoint %q", name)}
}

func WebhookFault(status int, msg string) *AppError {
	if status < 400 || status > 599 {
		status = 400
	}
	return &AppError{Code: "WEBHOOK_FAULT", Status: status, Message: msg}
}
