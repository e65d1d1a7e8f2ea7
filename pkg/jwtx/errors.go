package jwtx

import "errors"

var (
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("jwtx: decode error")

	ErrNoKey       = errors.New("jwtx: key not found")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrWrongIssuer = errors.New("jwtx: token issued for another project")
)

// DecodeError reports a JWT that could not be turned into a Token.
type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "jwtx: " + e.Message + ": " + e.Err.Error()
	}
	return "jwtx: " + e.Message
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErr(msg string, err error) error {
	return &DecodeError{Message: msg, Err: err}
}
