package service

import "errors"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var (
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrReportNotFound     = errors.New("report not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrExpenseNotEditable = errors.New("expense is not editable")
	ErrInvalidExpense     = errors.New("invalid expense")
	ErrInvalidDimension   = errors.New("invalid dimension")
	ErrInvalidRange       = errors.New("invalid date range")
)
