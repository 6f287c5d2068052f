package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uclip/receiverd/cmd/uclip-receiverd/internal/mdns"
	"github.com/uclip/receiverd/internal/clipboard"
	"github.com/uclip/receiverd/internal/devicestore"
	"github.com/uclip/receiverd/internal/identity"
	"github.com/uclip/receiverd/internal/noiseops"
	"github.com/uclip/receiverd/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "uclip-receiverd",
	Short: "Peer-to-peer encrypted clipboard synchronization receiver daemon",
	RunE:  runDaemon,
}

var (
	flagPort    int
	flagDataDir string
	flagName    string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntVar(&flagPort, "port", defaultIntEnv("UCLIP_PORT", 9876), "TCP port to listen on (env: UCLIP_PORT)")
	flags.StringVar(&flagDataDir, "data-dir", os.Getenv("UCLIP_DATA_DIR"), "directory for identity.json and paired_devices.json (env: UCLIP_DATA_DIR)")
	flags.StringVar(&flagName, "name", defaultName(), "device name advertised over mDNS (env: UCLIP_NAME)")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("[main] execute root command")
	}
}

func defaultIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func defaultName() string {
	if v := os.Getenv("UCLIP_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "uclip-receiver"
	}
	return hostname
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir := flagDataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("[main] resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".uclip-receiverd")
	}

	store, err := devicestore.Open(dataDir)
	if err != nil {
		return fmt.Errorf("[main] open device store: %w", err)
	}

	id, err := store.LoadIdentity()
	if err != nil {
		log.Fatal().Err(err).Msg("[main] load identity")
	}
	if id == nil {
		id, err = identity.Generate()
		if err != nil {
			log.Fatal().Err(err).Msg("[main] generate identity")
		}
		if err := store.SaveIdentity(id); err != nil {
			log.Fatal().Err(err).Msg("[main] persist identity")
		}
		log.Info().Msg("[main] generated new device identity")
	}

	pairingCode, err := noiseops.GeneratePairingCode()
	if err != nil {
		log.Fatal().Err(err).Msg("[main] generate pairing code")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", flagPort))
	if err != nil {
		return fmt.Errorf("[main] listen on port %d: %w", flagPort, err)
	}
	defer listener.Close()

	advertiser, err := mdns.NewAdvertiser(flagName, flagPort)
	if err != nil {
		log.Warn().Err(err).Msg("[main] mDNS advertiser unavailable, continuing without LAN discovery")
	} else {
		go advertiser.Serve(ctx)
		defer advertiser.Close()
	}

	events := session.NewEventBus()
	defer events.Close()
	handle := &session.OutboundHandle{}
	peer := &session.ConnectedPeer{}
	clip := clipboard.NewMemory()
	var imageLock atomic.Bool

	events.Emit(session.Event{Kind: session.EventServerStarted, Port: flagPort, PairingCode: pairingCode})
	log.Info().Int("port", flagPort).Str("pairing_code", pairingCode).Str("public_key", id.PublicKeyHex()).Msg("[main] receiver listening")

	dispatcher := noiseops.NewDispatcher(id, store, pairingCode)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("[main] accept")
			continue
		}

		runSession(ctx, dispatcher, conn, clip, events, handle, peer, &imageLock)
	}
}

func runSession(ctx context.Context, dispatcher *noiseops.Dispatcher, conn net.Conn, clip *clipboard.Memory, events *session.EventBus, handle *session.OutboundHandle, peer *session.ConnectedPeer, imageLock *atomic.Bool) {
	transport, name, paired, err := dispatcher.Accept(conn)
	if err != nil {
		events.Emit(session.Event{Kind: session.EventHandshakeFailed, Addr: conn.RemoteAddr().String(), Reason: err.Error()})
		log.Warn().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("[main] handshake failed")
		conn.Close()
		return
	}
	if paired {
		events.Emit(session.Event{Kind: session.EventDevicePaired, Name: name})
	}

	loop := session.NewLoop(transport, clip, events, name, handle, peer, imageLock)
	if err := loop.Run(ctx); err != nil {
		log.Info().Err(err).Str("peer", name).Msg("[main] session ended")
	}
}
