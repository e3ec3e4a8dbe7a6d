// Package worker consumes device sync commands from the database queue.
// One goroutine, one command at a time: commands for the same person must
// not race each other on the device.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hikbridge/internal/config"
	"hikbridge/internal/imaging"
	"hikbridge/internal/models"
)

// imagePathOption is the config_options key holding the photo directory.
const imagePathOption = "person_image_path"

const deleteTimeout = 10 * time.Second

// QueueStore is the command queue collaborator.
type QueueStore interface {
	NextPending(ctx context.Context) (*models.QueueCommand, error)
	Delete(ctx context.Context, id int64) error
}

// DeviceStore resolves device connection settings by IP.
type DeviceStore interface {
	GetByIP(ctx context.Context, ip string) (*models.DeviceConfig, error)
}

// OptionStore reads runtime configuration values.
type OptionStore interface {
	GetValue(ctx context.Context, name string) (string, error)
}

// Worker 队列工作器：轮询命令队列并逐条执行设备同步
type Worker struct {
	queue      QueueStore
	devices    DeviceStore
	options    OptionStore
	persons    PersonStore
	newGateway GatewayFactory

	pollInterval time.Duration
	limits       imaging.Limits
	logger       *zap.Logger

	executor *Executor
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWorker 创建队列工作器
func NewWorker(
	queue QueueStore,
	devices DeviceStore,
	options OptionStore,
	persons PersonStore,
	newGateway GatewayFactory,
	cfg *config.Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:        queue,
		devices:      devices,
		options:      options,
		persons:      persons,
		newGateway:   newGateway,
		pollInterval: time.Duration(cfg.Worker.PollIntervalSec) * time.Second,
		limits: imaging.Limits{
			MaxWidth:  cfg.Image.MaxWidth,
			MaxHeight: cfg.Image.MaxHeight,
			MaxSizeKB: cfg.Image.MaxSizeKB,
		},
		logger: logger,
	}
}

// Start resolves the photo directory and launches the poll loop. The
// directory is mandatory: without it no face image can ever be located.
func (w *Worker) Start(ctx context.Context) error {
	imageDir, err := w.options.GetValue(ctx, imagePathOption)
	if err != nil {
		return fmt.Errorf("load %s option: %w", imagePathOption, err)
	}
	if imageDir == "" {
		return fmt.Errorf("option %s is not configured", imagePathOption)
	}

	w.executor = NewExecutor(w.persons, w.newGateway, imageDir, w.limits, w.logger)

	loopCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(loopCtx)

	w.logger.Info("Queue worker started",
		zap.String("image_dir", imageDir),
		zap.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight command, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	select {
	case <-w.done:
		w.logger.Info("Queue worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue worker did not stop in time: %w", ctx.Err())
	}
}

// run drains the queue back to back, then sleeps one poll interval when it
// comes up empty.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		processed := w.pollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// pollOnce fetches and handles at most one command. Reports whether a
// command was consumed so the loop can skip the idle sleep.
func (w *Worker) pollOnce(ctx context.Context) bool {
	cmd, err := w.queue.NextPending(ctx)
	if err != nil {
		w.logger.Error("Failed to fetch pending command", zap.Error(err))
		return false
	}
	if cmd == nil {
		return false
	}

	w.processCommand(cmd)
	return true
}

// processCommand handles one queue row. The row is deleted exactly once,
// whatever the outcome: a command that fails is consumed, not retried.
// The whole body runs on a background context: shutdown only prevents the
// next fetch, it never aborts an in-flight device call.
func (w *Worker) processCommand(qc *models.QueueCommand) {
	ctx := context.Background()
	defer func() {
		// Deletion must survive shutdown cancellation, otherwise the same
		// command would run again on the next start.
		delCtx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		if err := w.queue.Delete(delCtx, qc.ID); err != nil {
			w.logger.Error("Failed to delete queue command",
				zap.Int64("queue_id", qc.ID),
				zap.Error(err),
			)
		}
	}()

	cmd, err := ParseCommand(qc.Payload)
	if err != nil {
		w.logger.Warn("Discarding malformed command",
			zap.Int64("queue_id", qc.ID),
			zap.String("payload", qc.Payload),
			zap.Error(err),
		)
		return
	}

	device, err := w.devices.GetByIP(ctx, cmd.DeviceIP)
	if err != nil {
		w.logger.Error("Device lookup failed",
			zap.String("device_ip", cmd.DeviceIP),
			zap.Error(err),
		)
		return
	}
	if device == nil {
		w.logger.Warn("Discarding command for unknown device",
			zap.String("device_ip", cmd.DeviceIP),
		)
		return
	}
	if !device.Enabled {
		w.logger.Warn("Discarding command for disabled device",
			zap.String("device_ip", cmd.DeviceIP),
		)
		return
	}

	result := w.executor.Execute(ctx, cmd, *device)
	if result.OK {
		w.logger.Info("Command completed",
			zap.Int64("queue_id", qc.ID),
			zap.String("operation", string(cmd.Operation)),
			zap.String("device_ip", cmd.DeviceIP),
			zap.String("person_id", cmd.PersonID),
			zap.String("message", result.Message),
		)
	} else {
		w.logger.Error("Command failed",
			zap.Int64("queue_id", qc.ID),
			zap.String("operation", string(cmd.Operation)),
			zap.String("device_ip", cmd.DeviceIP),
			zap.String("person_id", cmd.PersonID),
			zap.String("message", result.Message),
		)
	}
}
