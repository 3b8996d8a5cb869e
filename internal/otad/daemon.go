package otad

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/otad/internal/otad/command"
	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/internal/otad/fetch"
	"github.com/autopeer-io/otad/internal/otad/hub"
	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/internal/otad/server"
	grpcserver "github.com/autopeer-io/otad/internal/otad/server/grpc"
	httpserver "github.com/autopeer-io/otad/internal/otad/server/http"
	"github.com/autopeer-io/otad/internal/otad/slot"
	"github.com/autopeer-io/otad/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/otad/pkg/log"
	"github.com/autopeer-io/otad/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/otad/pkg/mqtt/topic"
)

var (
	errRestartPending = errors.New("restart into a committed image is pending")
	errNoTransport    = errors.New("no update transport enabled, enable --http.enabled or --mqtt.enabled")
)

// Daemon runs the update engine and every enabled transport.
type Daemon struct {
	cfg      *Config
	hal      core.HAL
	deviceID string

	mu   sync.Mutex
	stop context.CancelFunc
}

func (d *Daemon) requestStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		log.Info("Stopping the daemon so it restarts from the new boot slot")
		d.stop()
	}
}

// Run blocks until ctx is done, a server fails or a dry-run reboot stops
// the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.cfg.HttpOptions.Enabled && !d.cfg.MqttOptions.Enabled {
		return errNoTransport
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.stop = cancel
	d.mu.Unlock()

	log.Info("Starting otad", "deviceID", d.deviceID, "version", d.hal.FirmwareVersion())

	slots, closeSlots, err := OpenSlots(d.cfg.SlotOptions)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSlots(); err != nil {
			log.Warn("Failed to close slot medium", "error", err)
		}
	}()

	boot, err := slots.BootTarget()
	if err != nil {
		return fmt.Errorf("slot table is inconsistent: %w", err)
	}
	log.Info("Slot table loaded", "boot", boot.ID, "generation", slots.Generation())

	engine := ota.NewEngine(slots, d.hal, ota.WithRestartDelay(d.cfg.EngineOptions.RestartDelay))

	mgr := server.NewManager()

	if d.cfg.HttpOptions.Enabled {
		ready := func() error {
			if engine.Status().RestartPending {
				return errRestartPending
			}
			return nil
		}
		handler := httpserver.NewHandler(engine, slots, d.cfg.EngineOptions.ChunkSize, ready)
		mgr.Add(httpserver.NewServer(d.cfg.HttpOptions, handler))
	}

	if d.cfg.GrpcOptions.Enabled {
		gs := grpcserver.NewServer(d.cfg.GrpcOptions)
		engine.AddObserver(gs)
		mgr.Add(gs)
	}

	var puller *fetch.Puller
	if d.cfg.S3Options.Enabled {
		source, err := fetch.NewMinIOSource(d.cfg.S3Options)
		if err != nil {
			return err
		}
		puller = fetch.NewPuller(source, engine, d.cfg.EngineOptions.ChunkSize)
	}

	if d.cfg.MqttOptions.Enabled {
		h, err := d.newHub()
		if err != nil {
			return fmt.Errorf("failed to init mqtt hub: %w", err)
		}
		notifier := hub.NewNotifier(h)
		engine.AddObserver(notifier)

		var cmdPuller command.Puller
		if puller != nil {
			cmdPuller = puller
		}
		if err := h.Use(ctx, command.New(d.deviceID, engine, cmdPuller)); err != nil {
			return err
		}

		mgr.Add(server.NewFunc("mqtt", func(ctx context.Context) error {
			if err := h.Start(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			defer h.Stop()

			// Sent once; QoS 1 handles delivery.
			d.register(ctx, h, boot.ID)
			return notifier.Run(ctx)
		}))
	}

	err = mgr.Start(ctx)
	log.Info("otad shutting down...")
	return err
}

func (d *Daemon) newHub() (*hub.Hub, error) {
	topics := mqtttopic.NewBuilder(d.cfg.MqttOptions.TopicRoot)

	mqttConfig := d.cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("otad-%s", d.deviceID)
	}

	mqttConfig.WillTopic = topics.Build(paths.Online, d.deviceID)
	mqttConfig.WillPayload = hub.OfflineWill(d.deviceID)
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	client, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, err
	}
	return hub.New(d.deviceID, client, topics), nil
}

// register sends the registration packet to the fleet hub.
func (d *Daemon) register(ctx context.Context, h *hub.Hub, boot slot.ID) {
	reg := core.Registration{
		DeviceID:        d.deviceID,
		FirmwareVersion: d.hal.FirmwareVersion(),
		BootSlot:        string(boot),
		Description:     "otad auto-registration",
		Timestamp:       time.Now().UTC(),
	}
	if err := h.SendJSON(ctx, core.EventRegister, reg); err != nil {
		log.Error(err, "Failed to send registration request")
		return
	}
	log.Info("Sent registration request", "version", reg.FirmwareVersion)
}
