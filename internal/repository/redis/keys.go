package redis

import "fmt"

const ns = "raffle:v1"

func KeyCompetitionSummary(competitionID int64) string {
	return fmt.Sprintf("%s:competition:%d:summary", ns, competitionID)
}

func KeyCompetitionAvailability(competitionID int64) string {
	return fmt.Sprintf("%s:competition:%d:availability", ns, competitionID)
}

func KeyCompetitionDraw(competitionID int64) string {
	return fmt.Sprintf("%s:competition:%d:draw", ns, competitionID)
}

func ChannelCompetitionsChanged() string {
	return ns + ":competitions:changed"
}

func ListRefundInstructions() string {
	return ns + ":refunds:pending"
}
