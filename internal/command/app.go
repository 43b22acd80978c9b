package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"

	"github.com/mynul56/smart-parking-ai/internal/config"
	"github.com/mynul56/smart-parking-ai/internal/iot"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/realtime"
	"github.com/mynul56/smart-parking-ai/internal/repository"
	"github.com/mynul56/smart-parking-ai/internal/repository/memory"
	"github.com/mynul56/smart-parking-ai/internal/repository/postgresql"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type storage struct {
	users        repository.UserRepository
	lots         repository.ParkingLotRepository
	slots        repository.ParkingSlotRepository
	slotState    repository.SlotStateStore
	reservations repository.ReservationRepository
	aiEvents     repository.AIEventRepository
	close        func() error
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logging.Warn(ctx, "using in-memory storage; data is lost on exit")
		m := memory.New()
		return &storage{
			users:        m.Users(),
			lots:         m.Lots(),
			slots:        m.Slots(),
			slotState:    m.SlotState(),
			reservations: m.Reservations(),
			aiEvents:     m.AIEvents(),
			close:        func() error { return nil },
		}, nil
	}

	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := postgresql.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logging.Info(ctx, "connected to postgres", slog.String("host", cfg.DBHost), slog.String("database", cfg.DBName))
	return &storage{
		users:        postgresql.NewPgUserRepository(db),
		lots:         postgresql.NewPgParkingLotRepository(db),
		slots:        postgresql.NewPgParkingSlotRepository(db),
		slotState:    postgresql.NewPgSlotStateStore(db),
		reservations: postgresql.NewPgReservationRepository(db),
		aiEvents:     postgresql.NewPgAIEventRepository(db),
		close:        db.Close,
	}, nil
}

// app is the fully wired server process.
type app struct {
	cfg     *config.Config
	store   *storage
	hub     *realtime.Hub
	signage *iot.SignagePublisher
	awsCfg  *aws.Config

	auth         *service.AuthService
	parking      *service.ParkingService
	slots        *service.SlotService
	reservations *service.ReservationService
	detections   *service.DetectionService
	lpr          *service.LPRService
	reconciler   *service.Reconciler
}

func newApp(ctx context.Context, cfg *config.Config, store *storage) (*app, error) {
	a := &app{cfg: cfg, store: store, hub: realtime.NewHub(realtime.NewRegistry())}

	if needsAWS(cfg) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		a.awsCfg = &awsCfg
	}

	var observers []service.LotObserver
	if cfg.IoTDataEndpoint != "" {
		client := iotdataplane.NewFromConfig(*a.awsCfg, func(o *iotdataplane.Options) {
			endpoint := cfg.IoTDataEndpoint
			if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		})
		a.signage = iot.NewSignagePublisher(client, cfg.IoTSignageTopicPrefix, 0)
		observers = append(observers, a.signage)
	}

	notifier := service.NewNotifier(a.hub, observers...)
	a.auth = service.NewAuthService(store.users, cfg.JWTSecret, cfg.JWTExpiration)
	a.slots = service.NewSlotService(store.slotState, notifier)
	a.parking = service.NewParkingService(store.lots, store.slots, store.reservations, cfg.DefaultHourlyRate)
	a.reservations = service.NewReservationService(store.reservations, store.slots, store.lots, a.slots, cfg.DefaultHourlyRate)
	a.detections = service.NewDetectionService(a.slots, store.slots, store.aiEvents, cfg.AnomalyConfidence)
	a.reconciler = service.NewReconciler(store.lots, store.slotState, notifier)
	if cfg.LPREnabled {
		a.lpr = service.NewLPRService(rekognition.NewFromConfig(*a.awsCfg), a.slots, store.aiEvents)
	} else {
		a.lpr = service.NewLPRService(nil, a.slots, store.aiEvents)
	}
	return a, nil
}

func needsAWS(cfg *config.Config) bool {
	return cfg.SQSDetectionQueueURL != "" || cfg.IoTDataEndpoint != "" || cfg.LPREnabled
}
