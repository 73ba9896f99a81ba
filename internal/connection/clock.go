package connection

import (
	"time"

	"github.com/armyboard/connection-service/internal/model"
)

// Clock supplies the server time.  Tests pin it; production uses UTC wall
// time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Expired reports whether c is past its stage deadline at now.  Stages
// without a deadline never expire.
func Expired(c *model.Connection, now time.Time) bool {
	if c.Stage.Terminal() || c.Stage == model.StageChatOpen || c.StageExpiresAt == nil {
		return false
	}
	return now.After(*c.StageExpiresAt)
}

// enterStage moves c into stage s at now and recomputes the deadline.
func enterStage(c *model.Connection, v Variant, s model.Stage, now time.Time) {
	c.Stage = s
	c.StageStartedAt = now
	if d, ok := v.Timeout(s); ok {
		exp := now.Add(d)
		c.StageExpiresAt = &exp
	} else {
		c.StageExpiresAt = nil
	}
}
