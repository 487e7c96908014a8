package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/busws"
	"main/internal/coordinator"
	"main/internal/intentstore"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/rest"
	"main/internal/safety"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	pyroscopeAddr := flag.String("pyroscope", "http://localhost:4040", "Pyroscope server address")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if loaded.Features.EnableProfiling {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "order-terminal",
			ServerAddress:   *pyroscopeAddr,
			Tags: map[string]string{
				"session": loaded.SessionID,
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loaded); err != nil && err != context.Canceled {
		log.Fatalf("terminal failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded) error {
	store, closeStore, err := buildStore(loaded)
	if err != nil {
		return err
	}
	defer closeStore()

	client := rest.New(rest.Config{
		BaseURL: loaded.RestBaseURL,
		UserID:  loaded.UserID,
		Timeout: loaded.RestTimeout,
	})
	tracker := safety.NewTracker(client, loaded.SafetySubmitTimeout, loaded.SafetyInitTimeout)

	var coord *coordinator.Coordinator
	bus := busws.New(busws.Config{
		URL:              loaded.BusURL,
		HandshakeTimeout: loaded.HandshakeTimeout,
		Backoff: busws.Backoff{
			Min:    loaded.ReconnectMin,
			Max:    loaded.ReconnectMax,
			Factor: 2.0,
			Jitter: 0.2,
		},
	}, func(channel string, payload []byte) {
		coord.HandleMessage(channel, payload)
	}, func(state enum.ConnectionState) {
		coord.HandleConnectionState(state)
	})

	coord = coordinator.New(coordinator.Options{
		SessionID:          loaded.SessionID,
		UserID:             loaded.UserID,
		Policy:             loaded.Staleness,
		QueueCapacity:      loaded.QueueCapacity,
		PositionsRefresh:   loaded.PositionsRefresh,
		BuyingPowerRefresh: loaded.BuyingPowerRefresh,
		EnableFills:        loaded.Features.EnableFills,
	}, bus, tracker, client, store, obs.NewMetrics())

	busDone := make(chan error, 1)
	go func() {
		busDone <- bus.Run(ctx)
	}()

	if err := coord.Init(ctx); err != nil {
		bus.Close()
		return err
	}
	logs.Infof("terminal session %s up for user %s", loaded.SessionID, loaded.UserID)

	<-ctx.Done()
	logs.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), loaded.RestTimeout)
	defer cancel()
	coord.Dispose(shutdownCtx)
	bus.Close()
	<-busDone
	return ctx.Err()
}

func buildStore(loaded ops.Loaded) (intentstore.Store, func(), error) {
	if loaded.StoreConnString == "" {
		return intentstore.NewMemory(), func() {}, nil
	}
	pg, err := intentstore.NewPostgres(intentstore.Option{ConnString: loaded.StoreConnString})
	if err != nil {
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logs.Errorf("close draft store, err: %s", err.Error())
		}
	}, nil
}
