package models

import "time"

type CommandGroup string

const (
	CommandGroupUser   CommandGroup = "USER"
	CommandGroupSystem CommandGroup = "SYSTEM"
)

// CommandAudit records a command that changed a CA. CAVersion is the version
// the CA reached through the command.
type CommandAudit struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	CAID         uint         `json:"ca_id" gorm:"column:ca_id;index"`
	CAVersion    int64        `json:"ca_version" gorm:"column:ca_version"`
	CommandType  CommandType  `json:"command_type"`
	CommandGroup CommandGroup `json:"command_group"`
	Summary      string       `json:"summary"`
	ExecutedAt   time.Time    `json:"executed_at"`
}

func (CommandAudit) TableName() string {
	return "command_audits"
}
