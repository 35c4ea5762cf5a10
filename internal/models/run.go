package models

import (
	"errors"
	"time"

	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/uncertainty"
)

// Run is the metadata of one experiment: the constants fixed at its start and where its
// samples came from.
type Run struct {
	ID         string             `json:"id" yaml:"id"`
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`
	Distance   float64            `json:"distance" yaml:"distance"` // m, path length travelled by the pulse
	Model      physics.Model      `json:"model" yaml:"model"`
	BudgetName string             `json:"budget_name,omitempty" yaml:"budget_name,omitempty"`
	Budget     uncertainty.Budget `json:"budget" yaml:"budget"`
	Source     string             `json:"source" yaml:"source"`
}

// Validate checks that all run fields are valid
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.StartedAt.IsZero() {
		return errors.New("run start time must be set")
	}
	if r.StartedAt.After(time.Now()) {
		return errors.New("run start time must not be in the future")
	}
	if !(r.Distance > 0) {
		return errors.New("distance must be positive")
	}
	if _, err := physics.ParseModel(string(r.Model.Gas), string(r.Model.EOS)); err != nil {
		return err
	}
	return r.Budget.Validate()
}
