// Package agent defines the specialist agents and the router that picks one
// for a classified message.
package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/agent-squad/internal/intent"
	"github.com/suPer8Hu/agent-squad/internal/session"
)

type ID string

const (
	Leo   ID = "leo"
	Max   ID = "max"
	Lia   ID = "lia"
	Geral ID = "geral"
)

// IDs is the closed set of agents. A Registry must implement every one.
var IDs = []ID{Leo, Max, Lia, Geral}

var (
	ErrUnknownAgent = errors.New("agent: unknown agent")
	ErrEmptyReply   = errors.New("agent: empty reply")
)

func ParseID(s string) (ID, bool) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range IDs {
		if id == known {
			return id, true
		}
	}
	return "", false
}

// ForIntent maps a primary intent to the agent that owns it.
func ForIntent(in intent.Intent) (ID, bool) {
	switch in {
	case intent.Financeiro:
		return Leo, true
	case intent.Marketing:
		return Max, true
	case intent.RH:
		return Lia, true
	case intent.Geral:
		return Geral, true
	}
	return "", false
}

type Descriptor struct {
	ID           ID       `yaml:"id" json:"id"`
	DisplayName  string   `yaml:"displayName" json:"displayName"`
	Description  string   `yaml:"description" json:"description"`
	Tone         string   `yaml:"tone" json:"tone"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
	Instructions string   `yaml:"instructions" json:"-"`
}

func (d Descriptor) Can(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

type Request struct {
	UserID         string
	SessionID      string
	Message        string
	Classification intent.Classification
	History        []session.ContextMessage
	Preferences    map[string]any
}

type Reply struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SpecialistAgent interface {
	ID() ID
	Descriptor() Descriptor
	Handle(ctx context.Context, req Request) (Reply, error)
}
