package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlink/voxlink"
	"github.com/voxlink/voxlink/pkg/capture"
	"github.com/voxlink/voxlink/pkg/config"
	"github.com/voxlink/voxlink/pkg/logger"
	"github.com/voxlink/voxlink/pkg/signaling"
	"github.com/voxlink/voxlink/pkg/token"
	"github.com/voxlink/voxlink/pkg/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	mode := flag.String("mode", "room", "Session mode: call, room or join")
	userID := flag.String("user", "", "Local user identifier")
	name := flag.String("name", "", "Local display name")
	peerID := flag.String("peer", "", "Callee user identifier (call mode)")
	sessionID := flag.String("session", "", "Session to join (join mode)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Voxlink %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(1)
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := signaling.NewRedisService(
		cfg.Signaling.RedisAddress,
		cfg.Signaling.RedisPassword,
		cfg.Signaling.RedisDB,
		log,
	)
	defer signals.Close()

	if err := signals.Ping(ctx); err != nil {
		log.Error("Signaling store unreachable", logger.Err(err))
		os.Exit(1)
	}

	tokens := token.NewHMACProvider(cfg.Token.APIKey, cfg.Token.APISecret, cfg.Token.TTL)

	sdk, err := voxlink.New(cfg, signals, tokens, capture.NewStaticProvider(), func() transport.Client {
		return transport.NewLoopback()
	})
	if err != nil {
		log.Error("SDK initialization failed", logger.Err(err))
		os.Exit(1)
	}

	local := signaling.ParticipantDeclared{
		ID:          *userID,
		DisplayName: *name,
	}

	coord, err := startSession(ctx, sdk, local, *mode, *peerID, *sessionID)
	if err != nil {
		log.Error("Session start failed", logger.Err(err))
		os.Exit(1)
	}

	go printViewUpdates(ctx, coord, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Shutting down")
		if err := coord.Close(ctx); err != nil {
			log.Warn("Session close failed", logger.Err(err))
		}
		<-coord.Done()
	case <-coord.Done():
		if err := coord.Err(); err != nil {
			log.Error("Session ended with error", logger.Err(err))
			os.Exit(1)
		}
	}

	log.Info("Session finished",
		logger.String("status", string(coord.Status())),
		logger.String("duration", coord.FormattedDuration()),
	)
}

func printViewUpdates(ctx context.Context, coord *voxlink.Session, log logger.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-coord.Done():
			return
		case <-ticker.C:
			view := coord.View()
			speaking := 0
			for _, p := range view.Participants {
				if p.IsSpeaking {
					speaking++
				}
			}
			log.Info("Session view",
				logger.String("status", coord.StatusText()),
				logger.Int("participants", len(view.Participants)),
				logger.Int("speaking", speaking),
				logger.Bool("mic", view.MicAvailable),
				logger.Bool("camera", view.CameraAvailable),
			)
		}
	}
}

func startSession(ctx context.Context, sdk *voxlink.SDK, local signaling.ParticipantDeclared, mode, peerID, sessionID string) (coord *voxlink.Session, err error) {
	switch mode {
	case "call":
		if peerID == "" {
			return nil, fmt.Errorf("-peer is required in call mode")
		}
		target := signaling.ParticipantDeclared{ID: peerID}
		return sdk.StartCall(ctx, local, target, signaling.KindVideo)

	case "room":
		return sdk.CreateRoom(ctx, local, signaling.KindVideo)

	case "join":
		if sessionID == "" {
			return nil, fmt.Errorf("-session is required in join mode")
		}
		local.IsMuted = true
		return sdk.JoinRoom(ctx, sessionID, local, signaling.KindVideo)

	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}
