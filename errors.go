package simcore

import "errors"

var (
	// ErrPoolShutdown indicates tasks cannot be submitted because the pool
	// has shut down.
	ErrPoolShutdown = errors.New("simcore: thread pool shut down")
	// ErrNilSystem is returned when AddSystem receives a nil system.
	ErrNilSystem = errors.New("simcore: nil system")
	// ErrSystemExists indicates an attempt to register a duplicate system name.
	ErrSystemExists = errors.New("simcore: system already registered")
	// ErrSystemNotFound signals lookup of an unknown system name.
	ErrSystemNotFound = errors.New("simcore: system not found")
	// ErrManagerShutdown indicates the manager no longer accepts systems.
	ErrManagerShutdown = errors.New("simcore: manager shut down")
	// ErrNilStore is returned when the access manager is built without a store.
	ErrNilStore = errors.New("simcore: nil entity store")
)
