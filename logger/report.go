package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type feedStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream   int64
	errorsSnapshot int64
	warnsStream    int64
	warnsSnapshot  int64
	streamReads    int64
	snapshotReads  int64
	droppedFrames  int64
	reconnects     int64
	ordersOut      int64
	feeds          sync.Map // map[string]*feedStat
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") {
		atomic.AddInt64(&warnsStream, 1)
	} else if strings.Contains(component, "snapshot") || strings.Contains(component, "rest") {
		atomic.AddInt64(&warnsSnapshot, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") {
		atomic.AddInt64(&errorsStream, 1)
	} else if strings.Contains(component, "snapshot") || strings.Contains(component, "rest") {
		atomic.AddInt64(&errorsSnapshot, 1)
	}
}

// IncrementStreamRead records one validated frame received from a stream.
func IncrementStreamRead(feed string, size int) {
	atomic.AddInt64(&streamReads, 1)
	recordFeed(feed, size)
}

// IncrementSnapshotRead records one successful snapshot fetch.
func IncrementSnapshotRead(resource string, size int) {
	atomic.AddInt64(&snapshotReads, 1)
	recordFeed(resource, size)
}

// IncrementDroppedFrame records a frame rejected at decode or validation.
func IncrementDroppedFrame() {
	atomic.AddInt64(&droppedFrames, 1)
}

// IncrementReconnect records one scheduled reconnect attempt.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

// IncrementOrderSubmitted records one order submission command.
func IncrementOrderSubmitted() {
	atomic.AddInt64(&ordersOut, 1)
}

func recordFeed(name string, size int) {
	v, _ := feeds.LoadOrStore(name, &feedStat{})
	fs := v.(*feedStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and feed statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
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

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	feedData := map[string]map[string]int64{}
	feeds.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*feedStat)
		feedData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"errors_stream":    atomic.LoadInt64(&errorsStream),
		"errors_snapshot":  atomic.LoadInt64(&errorsSnapshot),
		"warns_stream":     atomic.LoadInt64(&warnsStream),
		"warns_snapshot":   atomic.LoadInt64(&warnsSnapshot),
		"stream_reads":     atomic.LoadInt64(&streamReads),
		"snapshot_reads":   atomic.LoadInt64(&snapshotReads),
		"dropped_frames":   atomic.LoadInt64(&droppedFrames),
		"reconnects":       atomic.LoadInt64(&reconnects),
		"orders_submitted": atomic.LoadInt64(&ordersOut),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        memMB,
		"feeds":            feedData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
		{MetricName: aws.String("ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_stream"].(int64)))},
		{MetricName: aws.String("ErrorsSnapshot"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_snapshot"].(int64)))},
		{MetricName: aws.String("WarnsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_stream"].(int64)))},
		{MetricName: aws.String("WarnsSnapshot"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_snapshot"].(int64)))},
		{MetricName: aws.String("StreamReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["stream_reads"].(int64)))},
		{MetricName: aws.String("SnapshotReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["snapshot_reads"].(int64)))},
		{MetricName: aws.String("DroppedFrames"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["dropped_frames"].(int64)))},
		{MetricName: aws.String("Reconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["reconnects"].(int64)))},
		{MetricName: aws.String("OrdersSubmitted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["orders_submitted"].(int64)))},
	}

	for name, stats := range feedData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FeedMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Feed"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FeedBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Feed"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
