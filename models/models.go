package models

import (
	"fmt"
	"time"
)

// User represents a registered portal account.
type User struct {
	ID           int64
	Email        string
	Password     string // This will be a bcrypt hash
	Token        string // empty when no token has been issued
	TokenCreated time.Time
	Approved     bool
	Created      time.Time
}

// Group is a named set of users.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Status is the lifecycle state of an experiment. The numeric values are part of the API.
type Status int

const (
	Submitted Status = 0
	Queued    Status = 1
	Completed Status = 2
	Failed    Status = 3
)

func (s Status) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Queued:
		return "queued"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// AsStatus converts a stored integer into a Status.
func AsStatus(v int) (Status, error) {
	s := Status(v)
	switch s {
	case Submitted, Queued, Completed, Failed:
		return s, nil
	}
	return 0, fmt.Errorf("%d is not an experiment status", v)
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// CanTransitionTo reports whether s -> next is a legal step.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case Submitted:
		return next == Queued || next == Failed
	case Queued:
		return next == Completed || next == Failed
	}
	return false
}

// Experiment is a user-submitted job.
type Experiment struct {
	ID      int64
	UserID  int64
	Label   string
	Host    string
	Status  Status
	Created time.Time
	Updated time.Time
}

// File is an uploaded input stored on disk.
type File struct {
	ID   int64
	Path string
}

// Reserved setting names, split out of the generic parameter bag.
const (
	SettingApp                   = "app"
	SettingExperimentDescription = "experimentDescription"
	SettingExperimentName        = "experimentName"
)

// IsReservedSetting reports whether name is one of the reserved setting names.
func IsReservedSetting(name string) bool {
	switch name {
	case SettingApp, SettingExperimentDescription, SettingExperimentName:
		return true
	}
	return false
}

// JobDescriptor is handed to the worker by a queue drain.
type JobDescriptor struct {
	ID                    int64             `json:"id"`
	Owner                 int64             `json:"owner"`
	Host                  string            `json:"host"`
	App                   string            `json:"app"`
	ExperimentName        string            `json:"experimentName"`
	ExperimentDescription string            `json:"experimentDescription"`
	Params                map[string]string `json:"params"`
}

// ExperimentView is what a user sees when listing experiments.
type ExperimentView struct {
	ID                    int64             `json:"id"`
	Label                 string            `json:"label"`
	Host                  string            `json:"host"`
	Created               time.Time         `json:"created"`
	StatusCode            Status            `json:"status_code"`
	Status                string            `json:"status"`
	App                   string            `json:"app"`
	ExperimentName        string            `json:"experimentName"`
	ExperimentDescription string            `json:"experimentDescription"`
	Params                map[string]string `json:"params"`
	Inputs                []string          `json:"inputs"`
	Outputs               []string          `json:"outputs"`
}

// SplitSettings separates the reserved settings from the rest.
// The returned map never contains reserved names.
func SplitSettings(settings map[string]string) (app, name, description string, params map[string]string) {
	params = make(map[string]string, len(settings))
	for k, v := range settings {
		switch k {
		case SettingApp:
			app = v
		case SettingExperimentName:
			name = v
		case SettingExperimentDescription:
			description = v
		default:
			params[k] = v
		}
	}
	return app, name, description, params
}
