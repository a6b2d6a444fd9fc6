package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
	CodeInternal           = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeResourceExhausted:  http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeInternal:           http.StatusInternalServerError,
}

// Reasons are stable machine-readable identifiers for the game-specific
// failure modes; clients branch on these rather than on messages.
const (
	ReasonNotFound            = "NOT_FOUND"
	ReasonWrongPhase          = "WRONG_PHASE"
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonForbidden           = "FORBIDDEN"
	ReasonLobbyLocked         = "LOBBY_LOCKED"
	ReasonLobbyFull           = "LOBBY_FULL"
	ReasonNotEnoughPlayers    = "NOT_ENOUGH_PLAYERS"
	ReasonPromptMismatch      = "PROMPT_MISMATCH"
	ReasonDuplicateSubmission = "DUPLICATE_SUBMISSION"
	ReasonInvalidVoteChoice   = "INVALID_VOTE_CHOICE"
)

type Error struct {
	Code    Code   `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// HasReason reports whether err carries the given reason identifier.
func HasReason(err error, reason string) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == reason
}

// Game-specific constructors; each pins the code and reason so callers only
// supply context.

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, WithReason(ReasonNotFound), WithMessagef(format, args...))
}

func WrongPhase(current any, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return New(CodeFailedPrecondition, WithReason(ReasonWrongPhase),
		WithMessagef("%s (phase=%v)", msg, current))
}

func Unauthorized(format string, args ...any) *Error {
	return New(CodeUnauthenticated, WithReason(ReasonUnauthorized), WithMessagef(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(CodePermissionDenied, WithReason(ReasonForbidden), WithMessagef(format, args...))
}

func LobbyLocked() *Error {
	return New(CodeFailedPrecondition, WithReason(ReasonLobbyLocked), WithMessagef("lobby is locked"))
}

func LobbyFull(max int) *Error {
	return New(CodeResourceExhausted, WithReason(ReasonLobbyFull),
		WithMessagef("lobby is full (max_players=%d)", max))
}

func NotEnoughPlayers(have, want int) *Error {
	return New(CodeFailedPrecondition, WithReason(ReasonNotEnoughPlayers),
		WithMessagef("need at least %d players, have %d", want, have))
}

func PromptMismatch(got string) *Error {
	return New(CodeFailedPrecondition, WithReason(ReasonPromptMismatch),
		WithMessagef("prompt %q is not the current assignment", got))
}

func DuplicateSubmission(format string, args ...any) *Error {
	return New(CodeAlreadyExists, WithReason(ReasonDuplicateSubmission), WithMessagef(format, args...))
}

func InvalidVoteChoice(format string, args ...any) *Error {
	return New(CodeInvalidArgument, WithReason(ReasonInvalidVoteChoice), WithMessagef(format, args...))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithReason(reason string) Option {
	return optionFunc(func(e *Error) {
		e.Reason = reason
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
