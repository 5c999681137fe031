package quota

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore counts requests in redis using one key per fixed window.
// Keys expire shortly after their window ends so the keyspace stays flat.
type RedisStore struct {
	client *redis.Client
	window time.Duration
}

func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisStore{client: client, window: window}
}

// takeScript increments only while the counter is under the limit, so a
// denied request never moves the stored count past it.
var takeScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if used >= limit then
	return {used, 0}
end
used = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {used, 1}
`)

func (s *RedisStore) Take(ctx context.Context, userID, endpoint string, windowStart time.Time, limit int64) (int64, bool, error) {
	key := "quota:" + userID + ":" + endpoint + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	reply, err := takeScript.Run(ctx, s.client, []string{key}, limit, (s.window * 2).Milliseconds()).Slice()
	if err != nil {
		return 0, false, err
	}
	if len(reply) != 2 {
		return 0, false, errors.New("unexpected quota script reply")
	}
	used, _ := reply[0].(int64)
	admitted, _ := reply[1].(int64)
	return used, admitted == 1, nil
}
