package model

// CommunicationSlaPolicy defines how long an incident may stay
// unacknowledged before escalation notifications fire.
//
// Duration and AlertTime are expressed in minutes. AlertTime is the
// remaining time at which the pre-breach warning is sent, so it must be
// smaller than Duration.
type CommunicationSlaPolicy struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	AlertTime float64 `json:"alert_time"`
	IsDefault bool    `json:"is_default"`
	Deleted   bool    `json:"deleted"`
}

// CountdownSeconds returns the initial countdown for a timer armed with
// this policy.
func (p *CommunicationSlaPolicy) CountdownSeconds() int {
	return int(p.Duration * 60)
}

// AlertSeconds returns the countdown value at which the warning fires.
func (p *CommunicationSlaPolicy) AlertSeconds() int {
	return int(p.AlertTime * 60)
}
