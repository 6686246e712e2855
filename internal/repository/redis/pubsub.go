package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type CompetitionsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewCompetitionsPubSub(rdb *redis.Client) *CompetitionsPubSub {
	return &CompetitionsPubSub{
		rdb:     rdb,
		channel: ChannelCompetitionsChanged(),
	}
}

type competitionChangedMsg struct {
	Type          string `json:"type"`
	CompetitionID int64  `json:"competition_id"`
	TsUnix        int64  `json:"ts_unix"`
}

func (p *CompetitionsPubSub) PublishCompetitionChanged(ctx context.Context, competitionID int64) error {
	msg := competitionChangedMsg{
		Type:          "competition_changed",
		CompetitionID: competitionID,
		TsUnix:        time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *CompetitionsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, competitionID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev competitionChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.CompetitionID != 0 {
				handler(ctx, ev.CompetitionID)
			}
		}
	}
}
