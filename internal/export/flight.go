package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wx-b/cockpit/internal/logger"
)

// FlightExporter pushes series batches to an Arrow Flight server.
type FlightExporter struct {
	addr    string
	client  flight.Client
	timeout time.Duration
}

// NewFlightExporter creates the exporter; call Connect before Push.
func NewFlightExporter(addr string) (*FlightExporter, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty flight address")
	}
	return &FlightExporter{
		addr:    addr,
		timeout: 30 * time.Second,
	}, nil
}

// Connect establishes the connection to the Flight server
func (fe *FlightExporter) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddleware(fe.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	fe.client = client
	logger.Log.Info("flight exporter connected", "addr", fe.addr)
	return nil
}

// Close disconnects from the Flight server
func (fe *FlightExporter) Close() error {
	if fe.client != nil {
		return fe.client.Close()
	}
	return nil
}

// Push writes one series batch as a record stream under the path
// cockpit/<run_id>/<series>.
func (fe *FlightExporter) Push(ctx context.Context, batch SeriesBatch) error {
	if fe.client == nil {
		return fmt.Errorf("client not connected, call Connect() first")
	}
	if len(batch.Steps) == 0 {
		return fmt.Errorf("series %s: nothing to push", batch.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, fe.timeout)
	defer cancel()

	rec, err := batch.Record(memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()

	stream, err := fe.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"cockpit", batch.RunID, batch.Name},
	})

	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record for %s: %w", batch.Name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer for %s: %w", batch.Name, err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close stream for %s: %w", batch.Name, err)
	}

	// drain the server acks
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("push of %s not acknowledged: %w", batch.Name, err)
		}
	}

	logger.Log.Debug("series pushed", "series", batch.Name, "rows", len(batch.Steps))
	return nil
}

// PushAll pushes every batch, continuing past individual failures.
func (fe *FlightExporter) PushAll(ctx context.Context, batches []SeriesBatch) error {
	var errs []error
	for _, b := range batches {
		if err := fe.Push(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
