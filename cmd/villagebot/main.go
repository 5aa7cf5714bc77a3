package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"villagesync/client"
	"villagesync/protocol"
	"villagesync/server"
)

// villagebot 无界面客户端：加入村庄后随机走动，同时镜像其他成员并记录出现与离开
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := client.LoadBotConfig()
	if err != nil {
		return err
	}
	log, err := server.NewLogger(server.LogConfig{FilePath: cfg.LogFile, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		return err
	}
	defer server.SyncLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	profiles := client.NewHTTPProfileFetcher(cfg.ServerURL, 5*time.Second)
	if cfg.UID != "" {
		p := client.Profile{Username: cfg.Username, Avatar: cfg.Avatar}
		if err := profiles.PutProfile(ctx, cfg.UID, p); err != nil {
			log.Warnf("profile not published: %v", err)
		}
	}

	conn, err := client.Dial(ctx, cfg.WebSocketURL(), client.ConnOptions{Logger: log.Named("conn")})
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("connected: session=%s village=%s uid=%q", conn.SessionID(), cfg.Village, cfg.UID)

	mirror := client.NewMirror(ctx, client.MirrorOptions{
		Fetcher:  profiles,
		Viewport: client.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		Logger:   log.Named("mirror"),
		OnSpawn: func(a *client.RemoteActor) {
			log.Infof("villager appeared: %s (%s) at %.0f,%.0f", a.Username, a.ID, a.Pos.X, a.Pos.Y)
		},
		OnDespawn: func(a *client.RemoteActor) {
			log.Infof("villager left: %s (%s)", a.Username, a.ID)
		},
	})
	mirror.SetSelf(cfg.UID, conn.SessionID())

	if err := conn.Join(cfg.Village, cfg.UID); err != nil {
		return err
	}

	updates := make(chan protocol.PlayerUpdate, 16)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := conn.Run(gctx, updates); err != nil {
			return err
		}
		if gctx.Err() == nil {
			// 服务端主动关闭：结束主循环
			return client.ErrClosed
		}
		return nil
	})
	g.Go(func() error {
		return loop(gctx, cfg, log, conn, mirror, updates)
	})
	return g.Wait()
}

// loop 客户端主循环：独占 Mirror，按固定频率推进本地角色并发布状态
func loop(ctx context.Context, cfg client.BotConfig, log *zap.SugaredLogger, conn *client.Conn,
	mirror *client.Mirror, updates <-chan protocol.PlayerUpdate) error {
	rng := rand.New(rand.NewSource(cfg.Seed))
	pub := client.NewPublisher(conn, cfg.Village)
	pub.SetEpsilon(cfg.PosEpsilon, cfg.NormEpsilon)
	mirror.SetRoom(cfg.Village)
	room := cfg.Village
	w := &walker{
		x:      cfg.ViewportWidth / 2,
		y:      cfg.ViewportHeight * 0.85,
		width:  cfg.ViewportWidth,
		height: cfg.ViewportHeight,
		speed:  cfg.Speed,
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickHz))
	defer ticker.Stop()
	var hop <-chan time.Time
	if cfg.Hops() {
		hopTicker := time.NewTicker(cfg.HopEvery)
		defer hopTicker.Stop()
		hop = hopTicker.C
	}
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			// 尽力而为：连接可能已被读循环关闭，服务端仍会按断开处理
			if err := conn.Leave(); err != nil {
				log.Debugf("leave: %v", err)
			}
			return nil
		case u := <-updates:
			mirror.Apply(u, time.Now())
		case <-hop:
			next := cfg.HopVillage
			if room == cfg.HopVillage {
				next = cfg.Village
			}
			if err := client.SwitchRoom(conn, pub, mirror, next, cfg.UID); err != nil {
				log.Warnf("switch room: %v", err)
				continue
			}
			log.Infof("switched room: %s -> %s", room, next)
			room = next
		case now := <-ticker.C:
			w.step(rng, now.Sub(last))
			last = now
			if _, err := pub.Sample(w.state()); err != nil {
				log.Warnf("publish move: %v", err)
			}
			mirror.Update(now)
		}
	}
}

// walker 随机游走：每隔一段时间在左、右、停之间切换
type walker struct {
	x, y          float64
	vx            float64
	flipX         bool
	width, height float64
	speed         float64
	untilTurn     time.Duration
}

func (w *walker) step(rng *rand.Rand, dt time.Duration) {
	w.untilTurn -= dt
	if w.untilTurn <= 0 {
		w.vx = float64(rng.Intn(3)-1) * w.speed
		w.untilTurn = time.Duration(1+rng.Intn(3)) * time.Second
	}
	w.x += w.vx * dt.Seconds()
	if w.x < 0 {
		w.x, w.vx = 0, w.speed
	}
	if w.x > w.width {
		w.x, w.vx = w.width, -w.speed
	}
	if w.vx != 0 {
		w.flipX = w.vx < 0
	}
}

func (w *walker) state() client.ActorState {
	return client.ActorState{
		X:     w.x,
		Y:     w.y,
		YNorm: protocol.Float(w.y / w.height),
		FlipX: w.flipX,
		VX:    w.vx,
	}
}
