package domain

const (
	EventNameQuizJoined         = "quiz.joined"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuizJoined struct {
	Entry   LeaderboardEntry
	Created bool
}

func (EventQuizJoined) Name() string { return EventNameQuizJoined }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
