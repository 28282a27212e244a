package planner

import "github.com/google/uuid"

func newBlockID() string {
	return uuid.NewString()
}
