package ipc

import (
	"errors"
	"fmt"
)

// ResultCode is the status every response frame carries ahead of its payload.
type ResultCode int32

const (
	ResultOK ResultCode = iota
	ResultNotConnected
	ResultInvalidParameter
	ResultOutOfMemory
	ResultTransportFailure
	ResultPermissionDenied
	ResultNotSupported
	ResultNoData
	ResultDatabaseFailure
	ResultSystem
)

var (
	ErrNotConnected     = errors.New("contacts: not connected")
	ErrInvalidParameter = errors.New("contacts: invalid parameter")
	ErrOutOfMemory      = errors.New("contacts: out of memory")
	ErrTransport        = errors.New("contacts: ipc transport failure")
	ErrPermissionDenied = errors.New("contacts: permission denied")
	ErrNotSupported     = errors.New("contacts: not supported")
	ErrNoData           = errors.New("contacts: no data")
	ErrDatabase         = errors.New("contacts: database failure")
	ErrSystem           = errors.New("contacts: system error")
)

var codeErrors = map[ResultCode]error{
	ResultNotConnected:     ErrNotConnected,
	ResultInvalidParameter: ErrInvalidParameter,
	ResultOutOfMemory:      ErrOutOfMemory,
	ResultTransportFailure: ErrTransport,
	ResultPermissionDenied: ErrPermissionDenied,
	ResultNotSupported:     ErrNotSupported,
	ResultNoData:           ErrNoData,
	ResultDatabaseFailure:  ErrDatabase,
	ResultSystem:           ErrSystem,
}

var codeNames = map[ResultCode]string{
	ResultOK:               "OK",
	ResultNotConnected:     "NOT_CONNECTED",
	ResultInvalidParameter: "INVALID_PARAMETER",
	ResultOutOfMemory:      "OUT_OF_MEMORY",
	ResultTransportFailure: "IPC",
	ResultPermissionDenied: "PERMISSION_DENIED",
	ResultNotSupported:     "NOT_SUPPORTED",
	ResultNoData:           "NO_DATA",
	ResultDatabaseFailure:  "DB",
	ResultSystem:           "SYSTEM",
}

func (c ResultCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RESULT(%d)", int32(c))
}

// Err maps a result code back to its sentinel error, nil for ResultOK.
func (c ResultCode) Err() error {
	if c == ResultOK {
		return nil
	}
	if err, ok := codeErrors[c]; ok {
		return err
	}
	return fmt.Errorf("%w: unknown result code %d", ErrSystem, int32(c))
}

// CodeOf maps an error to the result code sent on the wire.
func CodeOf(err error) ResultCode {
	if err == nil {
		return ResultOK
	}
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ResultSystem
}
