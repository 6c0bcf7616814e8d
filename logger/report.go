package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type flowStat struct {
	messages int64
	bytes    int64
}

var (
	errorsSource     int64
	errorsSocket     int64
	errorsStream     int64
	warnsSource      int64
	warnsSocket      int64
	warnsStream      int64
	sourceFetches    int64
	socketEvents     int64
	streamTicks      int64
	socketReconnects int64
	streamClients    int64
	tokensAggregated int64
	flows            sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	switch {
	case strings.Contains(component, "source"):
		atomic.AddInt64(&warnsSource, 1)
	case strings.Contains(component, "ingester") || strings.Contains(component, "socket"):
		atomic.AddInt64(&warnsSocket, 1)
	case strings.Contains(component, "stream") || strings.Contains(component, "publisher"):
		atomic.AddInt64(&warnsStream, 1)
	}
}

func recordError(component string) {
	switch {
	case strings.Contains(component, "source"):
		atomic.AddInt64(&errorsSource, 1)
	case strings.Contains(component, "ingester") || strings.Contains(component, "socket"):
		atomic.AddInt64(&errorsSocket, 1)
	case strings.Contains(component, "stream") || strings.Contains(component, "publisher"):
		atomic.AddInt64(&errorsStream, 1)
	}
}

// IncrementSourceFetch records one successful adapter fetch of size bytes.
func IncrementSourceFetch(provider string, size int) {
	atomic.AddInt64(&sourceFetches, 1)
	recordFlow("source_"+provider, size)
}

// IncrementSocketEvent records one inbound message on the persistent socket.
func IncrementSocketEvent(size int) {
	atomic.AddInt64(&socketEvents, 1)
	recordFlow("socket_feed", size)
}

// IncrementStreamTick records one payload pushed to a streaming client.
func IncrementStreamTick(size int) {
	atomic.AddInt64(&streamTicks, 1)
	recordFlow("stream_out", size)
}

// IncrementSocketReconnect records one socket reconnect attempt.
func IncrementSocketReconnect() {
	atomic.AddInt64(&socketReconnects, 1)
}

// SetStreamClients records the current number of connected stream clients.
func SetStreamClients(n int64) {
	atomic.StoreInt64(&streamClients, n)
}

// SetTokensAggregated records the size of the most recent aggregation.
func SetTokensAggregated(n int64) {
	atomic.StoreInt64(&tokensAggregated, n)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and flow statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		flowData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_source":     atomic.LoadInt64(&errorsSource),
		"errors_socket":     atomic.LoadInt64(&errorsSocket),
		"errors_stream":     atomic.LoadInt64(&errorsStream),
		"warns_source":      atomic.LoadInt64(&warnsSource),
		"warns_socket":      atomic.LoadInt64(&warnsSocket),
		"warns_stream":      atomic.LoadInt64(&warnsStream),
		"source_fetches":    atomic.LoadInt64(&sourceFetches),
		"socket_events":     atomic.LoadInt64(&socketEvents),
		"stream_ticks":      atomic.LoadInt64(&streamTicks),
		"socket_reconnects": atomic.LoadInt64(&socketReconnects),
		"stream_clients":    atomic.LoadInt64(&streamClients),
		"tokens_aggregated": atomic.LoadInt64(&tokensAggregated),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memStats.Used) / 1024 / 1024,
		"disk_mb":           int64(diskStats.Used) / 1024 / 1024,
		"flows":             flowData,
		"net_bytes_sent":    int64(bytesSent),
		"net_bytes_recv":    int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsSource"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsSource)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsSocket"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsSocket)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsStream)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsSource"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsSource)))},
		cwtypes.MetricDatum{MetricName: aws.String("SourceFetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&sourceFetches)))},
		cwtypes.MetricDatum{MetricName: aws.String("SocketEvents"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&socketEvents)))},
		cwtypes.MetricDatum{MetricName: aws.String("StreamTicks"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&streamTicks)))},
		cwtypes.MetricDatum{MetricName: aws.String("SocketReconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&socketReconnects)))},
		cwtypes.MetricDatum{MetricName: aws.String("StreamClients"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&streamClients)))},
		cwtypes.MetricDatum{MetricName: aws.String("TokensAggregated"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&tokensAggregated)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range flowData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
