package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-plantbot/internal/log"
)

// Config holds the serial bridge settings.
type Config struct {
	Port     string        // e.g. /dev/ttyACM0
	BaudRate int           // bridge firmware uses 115200
	MaxAge   time.Duration // readings older than this are ignored
}

// DefaultConfig returns the settings for the USB bridge.
func DefaultConfig() Config {
	return Config{
		Port:     "/dev/ttyACM0",
		BaudRate: 115200,
		MaxAge:   10 * time.Minute,
	}
}

// Stats counts received frames.
type Stats struct {
	Frames       uint64 `json:"frames"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// Receiver reads payload lines and feeds the store.
type Receiver struct {
	store  *Store
	logger *slog.Logger

	frames       atomic.Uint64
	decodeErrors atomic.Uint64
}

// NewReceiver creates a receiver writing into store.
func NewReceiver(store *Store) *Receiver {
	return &Receiver{store: store, logger: log.Component("radio")}
}

// Stats returns the frame counters.
func (r *Receiver) Stats() Stats {
	return Stats{Frames: r.frames.Load(), DecodeErrors: r.decodeErrors.Load()}
}

// Listen consumes newline-delimited payloads until r is exhausted or ctx is
// done. Undecodable payloads are logged and skipped.
func (r *Receiver) Listen(ctx context.Context, src io.Reader) error {
	reader := bufio.NewReader(src)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			r.handle(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("radio: read: %w", err)
		}
	}
}

func (r *Receiver) handle(line []byte) {
	r.frames.Add(1)
	samples, err := Decode(line)
	if err != nil {
		r.decodeErrors.Add(1)
		r.logger.Warn("dropping payload", "error", err)
		return
	}
	r.store.Update(samples...)
	for _, s := range samples {
		r.logger.Debug("humidity received", "plant", s.PlantIndex, "humidity", s.Humidity)
	}
}

// Run opens the serial port and listens until ctx is done.
func (r *Receiver) Run(ctx context.Context, cfg Config) error {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("radio: open %s: %w", cfg.Port, err)
	}

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	r.logger.Info("listening", "port", cfg.Port, "baud", cfg.BaudRate)
	return r.Listen(ctx, port)
}
