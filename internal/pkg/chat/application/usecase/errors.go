package usecase

import "fmt"

// ErrValidation indicates the request itself was malformed; callers surface
// it to the client and never retry.
var ErrValidation = fmt.Errorf("chat use case validation error")

// ErrPersistence indicates an infrastructure/repository failure inside a use case
var ErrPersistence = fmt.Errorf("chat use case persistence error")
