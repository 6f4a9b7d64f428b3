package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/epoc-ed/go-simpletem/hw"
)

// Ping checks that the server answers within the ping timeout.
func (c *Client) Ping(ctx context.Context) error {
	var reply string
	if err := c.call(ctx, c.cfg.pingTimeout, &reply, "ping"); err != nil {
		return err
	}
	if reply != "pong" {
		return fmt.Errorf("ping: %w: %q", ErrUnexpectedReply, reply)
	}

	return nil
}

// Version returns the version string of the server.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, c.cfg.timeout, &v, "version")

	return v, err
}

// ExitServer stops the motion worker of the server and ends its request loop.
func (c *Client) ExitServer(ctx context.Context) error {
	var reply string
	return c.call(ctx, c.cfg.timeout, &reply, "exit_server")
}

// StagePosition returns (x, y, z, tiltX, tiltY).
func (c *Client) StagePosition(ctx context.Context) (hw.StagePosition, error) {
	var pos hw.StagePosition
	err := c.call(ctx, c.cfg.timeout, &pos, "GetStagePosition")

	return pos, err
}

// StageStatus returns the drive state of every stage axis.
func (c *Client) StageStatus(ctx context.Context) (hw.StageStatus, error) {
	var st hw.StageStatus
	err := c.call(ctx, c.cfg.timeout, &st, "GetStageStatus")

	return st, err
}

func (c *Client) SetXRel(ctx context.Context, delta float64) error {
	return c.call(ctx, c.cfg.timeout, nil, "SetXRel", delta)
}

func (c *Client) SetYRel(ctx context.Context, delta float64) error {
	return c.call(ctx, c.cfg.timeout, nil, "SetYRel", delta)
}

func (c *Client) SetZRel(ctx context.Context, delta float64) error {
	return c.call(ctx, c.cfg.timeout, nil, "SetZRel", delta)
}

type tiltOptions struct {
	async    bool
	maxSpeed bool
}

// TiltOption modifies a tilt command.
type TiltOption func(*tiltOptions)

// Async makes the server queue the rotation and reply at once instead of replying when it ends.
func Async() TiltOption {
	return func(o *tiltOptions) { o.async = true }
}

// MaxSpeed runs the rotation at the fastest drive rate; the previous rate is restored afterwards.
func MaxSpeed() TiltOption {
	return func(o *tiltOptions) { o.maxSpeed = true }
}

// SetTiltXAngle rotates the stage around X to angle degrees.
//
// Without Async the call blocks until the rotation ends, so the timeout must cover it.
func (c *Client) SetTiltXAngle(ctx context.Context, angle float64, opts ...TiltOption) error {
	return c.tilt(ctx, "SetTiltXAngle", angle, opts)
}

// SetTXRel rotates the stage around X by delta degrees.
func (c *Client) SetTXRel(ctx context.Context, delta float64, opts ...TiltOption) error {
	return c.tilt(ctx, "SetTXRel", delta, opts)
}

func (c *Client) tilt(ctx context.Context, cmd string, value float64, opts []TiltOption) error {
	var o tiltOptions
	for _, opt := range opts {
		opt(&o)
	}

	return c.call(ctx, c.cfg.timeout, nil, cmd, value, o.async, o.maxSpeed)
}

// TiltXAngle returns the tilt angle around X in degrees.
func (c *Client) TiltXAngle(ctx context.Context) (float64, error) {
	var angle float64
	err := c.call(ctx, c.cfg.timeout, &angle, "GetTiltXAngle")

	return angle, err
}

// DriveRate returns the tilt drive-rate index, 0 being the fastest.
func (c *Client) DriveRate(ctx context.Context) (int, error) {
	var index int
	err := c.call(ctx, c.cfg.timeout, &index, "Getf1OverRateTxNum")

	return index, err
}

// SetDriveRate selects the tilt drive-rate index.
func (c *Client) SetDriveRate(ctx context.Context, index int) error {
	return c.call(ctx, c.cfg.timeout, nil, "Setf1OverRateTxNum", index)
}

func (c *Client) MeasurementMethod(ctx context.Context) (hw.MeasurementMethod, error) {
	var m hw.MeasurementMethod
	err := c.call(ctx, c.cfg.timeout, &m, "GetMovementValueMeasurementMethod")

	return m, err
}

// StopStage halts the rotation in progress. Queued rotations are not cancelled.
func (c *Client) StopStage(ctx context.Context) error {
	return c.call(ctx, c.cfg.timeout, nil, "StopStage")
}

// IsRotating reports whether a tilt around X is in flight.
//
// The status query is retried on transport failures, up to the configured number of attempts,
// since a momentary drop during a motion is not a fault. ERROR replies are not retried.
func (c *Client) IsRotating(ctx context.Context) (bool, error) {
	var st hw.StageStatus

	op := func() error {
		var err error
		st, err = c.StageStatus(ctx)

		var remoteErr *RemoteCommandError
		if errors.As(err, &remoteErr) {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.cfg.logger.Debug("stage status query failed, retrying", "error", err)
		}

		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.retryDelay), uint64(c.cfg.retryAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return false, err
	}

	return st.TiltXMoving(), nil
}

// WaitForStage polls IsRotating at the poll interval until the tilt axis stops moving.
func (c *Client) WaitForStage(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(c.cfg.pollInterval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		rotating, err := c.IsRotating(ctx)
		if err != nil {
			return err
		}
		if !rotating {
			return nil
		}
	}
}

// Magnification returns the current magnification, camera length or rocking angle.
func (c *Client) Magnification(ctx context.Context) (hw.Magnification, error) {
	var m hw.Magnification
	err := c.call(ctx, c.cfg.timeout, &m, "GetMagValue")

	return m, err
}

func (c *Client) FunctionMode(ctx context.Context) (hw.FunctionMode, error) {
	var f hw.FunctionMode
	err := c.call(ctx, c.cfg.timeout, &f, "GetFunctionMode")

	return f, err
}

func (c *Client) SelectFunctionMode(ctx context.Context, index int) error {
	return c.call(ctx, c.cfg.timeout, nil, "SelectFunctionMode", index)
}

// SetSelector selects the magnification step within the current function mode.
func (c *Client) SetSelector(ctx context.Context, value int) error {
	return c.call(ctx, c.cfg.timeout, nil, "SetSelector", value)
}

func (c *Client) SpotSize(ctx context.Context) (int, error) {
	var v int
	err := c.call(ctx, c.cfg.timeout, &v, "GetSpotSize")

	return v, err
}

func (c *Client) Alpha(ctx context.Context) (int, error) {
	var v int
	err := c.call(ctx, c.cfg.timeout, &v, "GetAlpha")

	return v, err
}

// ApertureSize returns the selected hole of an aperture, 0 when open.
func (c *Client) ApertureSize(ctx context.Context, kind hw.ApertureKind) (int, error) {
	var v int
	err := c.call(ctx, c.cfg.timeout, &v, "GetAperatureSize", int(kind))

	return v, err
}

func (c *Client) SetILFocus(ctx context.Context, value uint16) error {
	return c.call(ctx, c.cfg.timeout, nil, "SetILFocus", value)
}

// Lens returns the register value of a lens.
func (c *Client) Lens(ctx context.Context, id hw.LensID) (uint16, error) {
	var v uint16
	err := c.call(ctx, c.cfg.timeout, &v, "Get"+string(id))

	return v, err
}

// Deflector returns the register pair of a deflector.
func (c *Client) Deflector(ctx context.Context, id hw.DeflectorID) (hw.XY, error) {
	var v hw.XY
	err := c.call(ctx, c.cfg.timeout, &v, "Get"+string(id))

	return v, err
}

func (c *Client) SetILs(ctx context.Context, value hw.XY) error {
	return c.call(ctx, c.cfg.timeout, nil, "SetILs", value[0], value[1])
}

// BeamBlank reports whether the beam is blanked.
func (c *Client) BeamBlank(ctx context.Context) (bool, error) {
	var v int
	err := c.call(ctx, c.cfg.timeout, &v, "GetBeamBlank")

	return v != 0, err
}

// SetBeamBlank blanks or unblanks the beam.
func (c *Client) SetBeamBlank(ctx context.Context, on bool) error {
	v := 0
	if on {
		v = 1
	}

	return c.call(ctx, c.cfg.timeout, nil, "SetBeamBlank", v)
}
