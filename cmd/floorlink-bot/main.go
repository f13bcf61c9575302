// The floorlink-bot binary runs a handful of simulated clients against an
// in-process channel broker and logs their proximity, chat and duel
// transitions. Useful for eyeballing the interpolation and hysteresis
// behavior without a browser front-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/floorlink/floorlink/internal/backend"
	"github.com/floorlink/floorlink/internal/chat"
	"github.com/floorlink/floorlink/internal/config"
	"github.com/floorlink/floorlink/internal/session"
	"github.com/floorlink/floorlink/internal/spatial"
	"github.com/floorlink/floorlink/internal/transport"
	"github.com/floorlink/floorlink/pkg/wire"
)

// localChat is a toy join-or-create implementation good enough to drive the
// chat state machine in a demo. Everybody lands in the same room.
type localChat struct{ seq int }

func (l *localChat) JoinOrCreate(_ context.Context, _ string, _ wire.Position, nearby []string) (backend.ChatRoom, error) {
	return backend.ChatRoom{ChatID: "demo-room", MemberIDs: nearby}, nil
}
func (l *localChat) Leave(context.Context, string) error { return nil }
func (l *localChat) SendMessage(context.Context, string, string) (string, error) {
	l.seq++
	return fmt.Sprintf("msg-%d", l.seq), nil
}
func (l *localChat) History(context.Context, string, int) ([]wire.ChatMessage, error) {
	return nil, nil
}

func main() {
	var (
		bots = flag.Int("bots", 3, "number of simulated clients")
		dur  = flag.Duration("for", 30*time.Second, "how long to run")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zl, _ := zap.NewDevelopment()
	log := zl.Sugar()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *dur)
	defer cancel()

	broker := transport.NewMemBroker(ctx)
	defer broker.Close()
	chatSvc := &localChat{}

	for i := 0; i < *bots; i++ {
		id := fmt.Sprintf("bot-%d", i)
		s, err := session.New(session.Config{
			SessionID:       "demo",
			Local:           wire.Entity{ID: id, Name: id},
			Transport:       broker.Client(id),
			Chat:            chatSvc,
			CombatRadius:    cfg.CombatRadius,
			ChatJoinRadius:  cfg.ChatJoinRadius,
			ChatLeaveRadius: cfg.ChatLeaveRadius,
			BroadcastHz:     cfg.BroadcastHz,
			ProximityHz:     cfg.ProximityHz,
			LeaveDebounce:   cfg.LeaveDebounce,
			Logger:          log.With("bot", id),
		})
		if err != nil {
			log.Fatalw("build session", "bot", id, "err", err)
		}

		botLog := log.With("bot", id)
		s.Nearby.Subscribe(func(n []spatial.Neighbor) {
			ids := make([]string, len(n))
			for i, nb := range n {
				ids[i] = fmt.Sprintf("%s@%.0f", nb.ID, nb.Distance)
			}
			botLog.Infow("combat range changed", "nearby", ids)
		})
		s.Chat().Joined.Subscribe(func(e chat.JoinedEvent) {
			botLog.Infow("joined chat", "chat", e.ChatID, "members", e.Members)
		})
		s.Chat().Left.Subscribe(func(e chat.LeftEvent) {
			botLog.Infow("left chat", "chat", e.ChatID)
		})
		s.Chat().Message.Subscribe(func(m wire.ChatMessage) {
			botLog.Infow("chat message", "from", m.AuthorID, "content", m.Content)
		})

		if err := s.Start(ctx); err != nil {
			log.Fatalw("start session", "bot", id, "err", err)
		}
		s.StartPositionBroadcast()
		go wander(ctx, s, rand.New(rand.NewSource(int64(i))))
		defer func() {
			stopCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			_ = s.Stop(stopCtx)
		}()
	}

	<-ctx.Done()
	log.Infow("demo finished")
}

// wander drives a bot on a slow random walk around the floor at the
// simulation rate, leaving the broadcast cadence to the session.
func wander(ctx context.Context, s *session.Session, rng *rand.Rand) {
	x := rng.Float64() * 400
	y := rng.Float64() * 400
	heading := rng.Float64() * 360

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			heading += (rng.Float64() - 0.5) * 40
			heading = math.Mod(heading+360, 360)
			rad := heading * math.Pi / 180
			x += math.Cos(rad) * 4
			y += math.Sin(rad) * 4
			s.SetLocalPosition(x, y, heading)
		}
	}
}
