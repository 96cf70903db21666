package models

import (
	"fmt"
	"strings"
)

// Role is the closed set of participant roles. Authorization points switch on
// it exhaustively.
type Role string

const (
	RoleProducer  Role = "PRODUCER"
	RoleCertifier Role = "CERTIFIER"
	RoleConsumer  Role = "CONSUMER"
	RoleRegulator Role = "REGULATOR"
)

var Roles = []Role{RoleProducer, RoleCertifier, RoleConsumer, RoleRegulator}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleProducer, RoleCertifier, RoleConsumer, RoleRegulator:
		return true
	default:
		return false
	}
}

// LedgerName is the role identifier granted on the settlement contract.
func (r Role) LedgerName() string {
	return string(r) + "_ROLE"
}
