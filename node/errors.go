// Copyright 2025 The meridian Authors
// This file is part of the meridian library.
//
// The meridian library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The meridian library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the meridian library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBuilt is returned by builder methods after Build has
	// produced a service. The first build result stays valid.
	ErrAlreadyBuilt = errors.New("service already built")

	// ErrServiceRunning is returned by Start on a running service.
	ErrServiceRunning = errors.New("service already running")

	// ErrServiceStopped is returned by operations on a closed service.
	ErrServiceStopped = errors.New("service not started")
)

// MissingDependencyError reports a builder registration whose upstream
// collaborators are not set yet. Registration order is part of the builder
// contract, so this is a configuration error and fatal at startup.
type MissingDependencyError struct {
	Component string // component being registered
	Requires  string // dependency that is missing
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("component %q requires %q to be registered first", e.Component, e.Requires)
}

// DuplicateComponentError reports a second registration of the same
// collaborator. The first registration is retained unchanged.
type DuplicateComponentError struct {
	Component string
}

func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("component %q already registered", e.Component)
}

// StartError wraps a component startup failure, e.g. an RPC listener that
// could not bind. It aborts assembly before any long-running task is
// spawned; already-started components are torn down in reverse order.
type StartError struct {
	Component string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %q: %v", e.Component, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError aggregates per-component teardown failures so a single bad
// collaborator does not hide the others.
type StopError struct {
	Errors map[string]error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("service teardown: %v", e.Errors)
}
