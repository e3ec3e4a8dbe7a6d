package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"hikbridge/internal/gateway"
	"hikbridge/internal/imaging"
	"hikbridge/internal/models"
)

// photoExtensions are tried in order when resolving a person's photo.
var photoExtensions = []string{".jpg", ".jpeg"}

// Gateway is the device-side surface the executor drives. Implemented by
// gateway.Client; faked in tests.
type Gateway interface {
	UserExists(ctx context.Context, employeeID string) (bool, error)
	CreateUser(ctx context.Context, spec gateway.UserSpec) error
	UpdateUser(ctx context.Context, spec gateway.UserSpec) error
	DeleteUser(ctx context.Context, employeeID string) error
	EnsureFaceLibrary(ctx context.Context)
	UploadFace(ctx context.Context, employeeID, name string, image []byte) error
}

// GatewayFactory builds a gateway client for one device.
type GatewayFactory func(cfg models.DeviceConfig) Gateway

// PersonStore is the person lookup collaborator.
type PersonStore interface {
	GetByID(ctx context.Context, personID string) (*models.PersonRecord, error)
}

// Result is the per-command outcome: success or failure plus a message.
// Never an error type; a failed sync is a logged result, not a fault.
type Result struct {
	OK      bool
	Message string
}

// Executor runs one parsed command against a device.
type Executor struct {
	persons    PersonStore
	newGateway GatewayFactory
	imageDir   string
	limits     imaging.Limits
	logger     *zap.Logger
}

// NewExecutor 创建设备同步执行器
func NewExecutor(persons PersonStore, newGateway GatewayFactory, imageDir string, limits imaging.Limits, logger *zap.Logger) *Executor {
	return &Executor{
		persons:    persons,
		newGateway: newGateway,
		imageDir:   imageDir,
		limits:     limits,
		logger:     logger,
	}
}

// Execute runs the command against the given device. Exactly one attempt;
// retry policy (none) belongs to the queue layer.
func (e *Executor) Execute(ctx context.Context, cmd models.Command, device models.DeviceConfig) Result {
	gw := e.newGateway(device)

	if cmd.Operation == models.OpDelete {
		return e.executeDelete(ctx, gw, cmd)
	}
	return e.executeUpsert(ctx, gw, cmd)
}

// executeDelete needs no existence check: the device's delete is idempotent
// and deleting an absent user is not an error here.
func (e *Executor) executeDelete(ctx context.Context, gw Gateway, cmd models.Command) Result {
	if err := gw.DeleteUser(ctx, cmd.PersonID); err != nil {
		return Result{OK: false, Message: fmt.Sprintf("delete failed: %v", err)}
	}
	return Result{OK: true, Message: "user deleted from device"}
}

func (e *Executor) executeUpsert(ctx context.Context, gw Gateway, cmd models.Command) Result {
	person, err := e.persons.GetByID(ctx, cmd.PersonID)
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("person lookup failed: %v", err)}
	}
	if person == nil {
		return Result{OK: false, Message: fmt.Sprintf("person %s not found", cmd.PersonID)}
	}

	// Photo is optional: absence is tolerated, the upsert proceeds without it.
	image, cleanup, photoWarn := e.resolvePhoto(cmd.PersonID)
	defer cleanup()

	spec := gateway.UserSpec{
		EmployeeID: person.ID,
		Name:       person.DisplayName(),
		Enabled:    true,
		ValidFrom:  person.ValidFrom,
		ValidTo:    person.ValidTo,
	}

	exists, err := gw.UserExists(ctx, cmd.PersonID)
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("existence check failed: %v", err)}
	}

	var op string
	if exists {
		op = "updated"
		err = gw.UpdateUser(ctx, spec)
	} else {
		op = "created"
		err = gw.CreateUser(ctx, spec)
	}
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("user upsert failed: %v", err)}
	}

	if image == nil {
		msg := fmt.Sprintf("user %s (no photo)", op)
		if photoWarn != "" {
			msg += ": " + photoWarn
		}
		return Result{OK: true, Message: msg}
	}

	// A failed face upload does not invalidate a successful upsert.
	gw.EnsureFaceLibrary(ctx)
	if err := gw.UploadFace(ctx, person.ID, person.DisplayName(), image); err != nil {
		return Result{OK: true, Message: fmt.Sprintf("user %s but face upload failed: %v", op, err)}
	}
	return Result{OK: true, Message: fmt.Sprintf("user %s with face image", op)}
}

// resolvePhoto finds and normalizes the person photo. Returns the image
// bytes (nil when no usable photo), a cleanup func for any temporary file,
// and a human-readable warning when something degraded along the way.
func (e *Executor) resolvePhoto(personID string) (image []byte, cleanup func(), warn string) {
	cleanup = func() {}

	var srcPath string
	for _, ext := range photoExtensions {
		candidate := filepath.Join(e.imageDir, personID+ext)
		if _, err := os.Stat(candidate); err == nil {
			srcPath = candidate
			break
		}
	}
	if srcPath == "" {
		e.logger.Warn("No photo found for person", zap.String("person_id", personID))
		return nil, cleanup, ""
	}

	uploadPath := srcPath
	res, err := imaging.Optimize(srcPath, e.limits, e.logger)
	if err != nil {
		// Keep going with the original file, matching photo-optional semantics.
		e.logger.Warn("Image optimization failed, using original",
			zap.String("path", srcPath),
			zap.Error(err),
		)
		warn = fmt.Sprintf("optimization failed: %v", err)
	} else {
		uploadPath = res.Path
		warn = res.Warning
		if res.Temporary {
			tempPath := res.Path
			cleanup = func() {
				if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
					e.logger.Warn("Failed to remove temporary image",
						zap.String("path", tempPath),
						zap.Error(err),
					)
				}
			}
		}
	}

	data, err := os.ReadFile(uploadPath)
	if err != nil {
		e.logger.Warn("Failed to read photo", zap.String("path", uploadPath), zap.Error(err))
		return nil, cleanup, fmt.Sprintf("photo unreadable: %v", err)
	}
	return data, cleanup, warn
}
