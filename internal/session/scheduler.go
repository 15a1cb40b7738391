package session

import (
	"time"

	"digibattle/internal/storage"
)

// Scheduler runs f once after d. Scheduled tasks cannot be cancelled; the
// session guards them against stale state instead.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Directory records the rooms sessions have open. *storage.Store
// implements it.
type Directory interface {
	PutRoom(r storage.RoomRow) error
	UpdateRoomState(sessionID, state string) error
	CodeTaken(code string) (bool, error)
	DeleteRoom(sessionID string) error
}

type noDirectory struct{}

func (noDirectory) PutRoom(storage.RoomRow) error {
	return nil
}

func (noDirectory) UpdateRoomState(string, string) error {
	return nil
}

func (noDirectory) CodeTaken(string) (bool, error) {
	return false, nil
}

func (noDirectory) DeleteRoom(string) error {
	return nil
}
