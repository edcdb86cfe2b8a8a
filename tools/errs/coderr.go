package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Gateway error codes. 1xxx auth, 2xxx storage, 3xxx protocol.
const (
	CodeTokenInvalid   = 1001
	CodeTokenExpired   = 1002
	CodeAuthFailed     = 1003
	CodeRecordNotFound = 2001
	CodeDuplicateKey   = 2002
	CodeBadFrame       = 3001
	CodeInternal       = 5000
)

var (
	ErrTokenInvalid   = NewCodeError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired   = NewCodeError(CodeTokenExpired, "token expired")
	ErrAuthFailed     = NewCodeError(CodeAuthFailed, "authentication failed")
	ErrRecordNotFound = NewCodeError(CodeRecordNotFound, "record not found")
	ErrDuplicateKey   = NewCodeError(CodeDuplicateKey, "record already exists")
	ErrBadFrame       = NewCodeError(CodeBadFrame, "malformed frame")
	ErrInternal       = NewCodeError(CodeInternal, "internal server error")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	return e.Code == codeErr.Code
}

const initialCapacity = 3

func (e *CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}
