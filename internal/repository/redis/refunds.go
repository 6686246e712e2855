package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/raffle-go/internal/payment"
)

// RefundQueue is the outbound channel to the payment collaborator.
// Instructions are pushed onto a Redis list and drained by the external
// refund worker with BRPOP.
type RefundQueue struct {
	rdb *redis.Client
	key string
}

func NewRefundQueue(rdb *redis.Client) *RefundQueue {
	return &RefundQueue{
		rdb: rdb,
		key: ListRefundInstructions(),
	}
}

func (q *RefundQueue) Enqueue(ctx context.Context, instructions ...payment.RefundInstruction) error {
	const op = "redis.RefundQueue.Enqueue"

	if len(instructions) == 0 {
		return nil
	}

	vals := make([]any, 0, len(instructions))
	for _, in := range instructions {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		vals = append(vals, b)
	}

	if err := q.rdb.LPush(ctx, q.key, vals...).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (q *RefundQueue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
