// Package repository implements data access over database/sql.  Sentinel
// errors defined here let handlers and the auth service distinguish failure
// modes without inspecting driver errors.
package repository

import "errors"

// ErrEmailExists is returned when an insert violates the unique email index.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when an insert violates the unique username
// index.
var ErrUsernameExists = errors.New("username already exists")
