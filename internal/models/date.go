package models

import "time"

// TargetDateLayout is the daily note date format
const TargetDateLayout = "2006-01-02"

// targetZone is the fixed zone daily notes are filed under (KST, no DST)
var targetZone = time.FixedZone("UTC+9", 9*60*60)

// TargetDate returns the daily note date t falls on
func TargetDate(t time.Time) string {
	return t.In(targetZone).Format(TargetDateLayout)
}
